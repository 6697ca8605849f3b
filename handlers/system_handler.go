package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/matrix-portfolio/portfolio-api/errors"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/services"
	"github.com/matrix-portfolio/portfolio-api/types"
)

// SystemHandler serves the version, connectivity and test-email endpoints.
type SystemHandler struct {
	version string
	mailer  TestMailer
}

func NewSystemHandler(version string, mailer TestMailer) *SystemHandler {
	return &SystemHandler{version: version, mailer: mailer}
}

func (h *SystemHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, types.VersionInfo{
		Version:     h.version,
		Name:        "Matrix Portfolio API",
		Description: "Secure Backend API for Matrix Portfolio",
		Features:    []string{"Security Enhanced", "Rate Limited", "Spam Protected"},
	})
}

func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, types.MessageResponse{Message: "Backend is working!"})
}

// TestEmail sends a fixed message to the owner mailbox. AdminAuth guards it.
func (h *SystemHandler) TestEmail(c *gin.Context) {
	if h.mailer == nil || !h.mailer.Enabled() {
		_ = c.Error(apperrors.ServiceUnavailable("Email is not configured"))
		return
	}

	if err := h.mailer.SendTest(c.Request.Context()); err != nil {
		if errors.Is(err, services.ErrMailerDisabled) {
			_ = c.Error(apperrors.ServiceUnavailable("Email is not configured"))
			return
		}
		logger.GetLogger().Errorw("Test email failed", "error", err)
		_ = c.Error(apperrors.Wrap(err, apperrors.ServerError, "Failed to send test email"))
		return
	}

	c.JSON(http.StatusOK, types.MessageResponse{Message: "Test email sent successfully"})
}

// NotFound answers unknown routes.
func NotFound(c *gin.Context) {
	_ = c.Error(apperrors.NotFound("Endpoint not found"))
}
