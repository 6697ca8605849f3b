// Package intake normalizes raw contact-form input and rejects malformed or
// abusive submissions before they reach storage. Everything here is pure: no
// I/O, no clock, no shared mutable state.
package intake

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/matrix-portfolio/portfolio-api/errors"
	"github.com/matrix-portfolio/portfolio-api/types"
)

// Field length bounds, counted in characters after trim and sanitize.
const (
	MaxNameLength    = 100
	MaxEmailLength   = 254
	MaxMessageLength = 1000
)

var validate = validator.New()

// Validator applies the intake rules. The zero value skips the content policy.
type Validator struct {
	policy *ContentPolicy
}

// NewValidator returns a Validator. A nil policy disables the content check.
func NewValidator(policy *ContentPolicy) *Validator {
	return &Validator{policy: policy}
}

// Validate returns a normalized submission (trimmed, sanitized, email
// lower-cased) or a validation *errors.AppError. ID, OriginIP and CreatedAt are
// left for the caller to fill.
func (v *Validator) Validate(raw types.ContactRequest) (types.Submission, error) {
	name := strings.TrimSpace(stripControl(raw.Name))
	email := strings.ToLower(strings.TrimSpace(stripControl(raw.Email)))
	message := strings.TrimSpace(stripControl(raw.Message))

	if name == "" || email == "" || message == "" {
		return types.Submission{}, missingField(firstEmpty(name, email, message))
	}

	name = Sanitize(name)
	message = Sanitize(message)

	// Markup-only input sanitizes to nothing; stored records must never be blank.
	if name == "" || message == "" {
		return types.Submission{}, missingField(firstEmpty(name, email, message))
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return types.Submission{}, apperrors.ValidationFailed(apperrors.CodeFieldTooLong, "Name too long", "name")
	}
	if utf8.RuneCountInString(email) > MaxEmailLength {
		return types.Submission{}, apperrors.ValidationFailed(apperrors.CodeFieldTooLong, "Email too long", "email")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return types.Submission{}, apperrors.ValidationFailed(apperrors.CodeFieldTooLong, "Message too long", "message")
	}

	if !IsEmail(email) {
		return types.Submission{}, apperrors.ValidationFailed(apperrors.CodeInvalidEmail, "Invalid email format", "email")
	}

	if v != nil && v.policy != nil {
		if _, hit := v.policy.Match(message); hit {
			return types.Submission{}, prohibited("message")
		}
		if _, hit := v.policy.Match(name); hit {
			return types.Submission{}, prohibited("name")
		}
	}

	return types.Submission{
		Name:    name,
		Email:   email,
		Message: message,
	}, nil
}

// IsEmail reports whether s is a syntactically valid email address.
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

func firstEmpty(name, email, message string) string {
	switch {
	case name == "":
		return "name"
	case email == "":
		return "email"
	default:
		return "message"
	}
}

func missingField(field string) error {
	return apperrors.ValidationFailed(apperrors.CodeMissingField, "All fields are required", field)
}

func prohibited(field string) error {
	return apperrors.ValidationFailed(apperrors.CodeProhibitedContent, "Message contains prohibited content", field)
}
