package types

import "time"

// Submission is one validated contact-form entry. It is immutable once stored.
type Submission struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
	// OriginIP is captured from the transport and never returned by the
	// listing operation.
	OriginIP  string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContactRequest is the raw body of POST /api/contact.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// NotificationKind distinguishes owner notifications from submitter receipts.
type NotificationKind string

const (
	NotificationOwner        NotificationKind = "owner"
	NotificationConfirmation NotificationKind = "confirmation"
	NotificationTest         NotificationKind = "test"
)
