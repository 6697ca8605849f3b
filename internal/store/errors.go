package store

import (
	"errors"

	"github.com/matrix-portfolio/portfolio-api/types"
)

// Predefined errors for the store layer.
var (
	// ErrInvalidSubmission indicates a record reached the store without its identity fields.
	ErrInvalidSubmission = errors.New("submission missing id or timestamp")

	// ErrClosed indicates an operation on a store that has already been closed.
	ErrClosed = errors.New("store closed")
)

// CheckSubmission verifies the fields every backend keys on are present.
func CheckSubmission(sub *types.Submission) error {
	if sub == nil || sub.ID == "" || sub.CreatedAt.IsZero() {
		return ErrInvalidSubmission
	}
	return nil
}
