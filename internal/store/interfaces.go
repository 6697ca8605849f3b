// Package store defines the persistence contract for contact submissions.
// Concrete backends live in the mongo, postgres and badger subpackages.
package store

import (
	"context"

	"github.com/matrix-portfolio/portfolio-api/types"
)

// SubmissionStore persists submissions and lists them newest first.
type SubmissionStore interface {
	// CreateSubmission durably records sub. sub.ID and sub.CreatedAt must be set.
	CreateSubmission(ctx context.Context, sub *types.Submission) error
	// ListSubmissions returns every stored submission ordered by CreatedAt
	// descending. OriginIP is never populated.
	ListSubmissions(ctx context.Context) ([]types.Submission, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend's resources.
	Close(ctx context.Context) error
	// Name identifies the backend in logs and health output.
	Name() string
}
