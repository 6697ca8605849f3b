package services

import (
	"os"
	"testing"

	"github.com/matrix-portfolio/portfolio-api/logger"
)

func TestMain(m *testing.M) {
	logger.IsTest = true
	os.Exit(m.Run())
}
