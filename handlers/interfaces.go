package handlers

import (
	"context"

	"github.com/matrix-portfolio/portfolio-api/types"
)

// SubmissionServiceInterface defines the pipeline methods needed by handlers
type SubmissionServiceInterface interface {
	Submit(ctx context.Context, raw types.ContactRequest, callerIP string) (types.Submission, error)
	List(ctx context.Context) ([]types.Submission, error)
}

// HealthChecker reports the state of the service and its backends.
type HealthChecker interface {
	CheckHealth(ctx context.Context) types.HealthCheck
}

// TestMailer sends the admin test email.
type TestMailer interface {
	Enabled() bool
	SendTest(ctx context.Context) error
}
