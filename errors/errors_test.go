package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ValidationError, "invalid input", "field required")
	assert.Equal(t, ValidationError, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Equal(t, "field required", err.Detail)
	assert.Equal(t, 400, err.HTTPStatus)
}

func TestWrap(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	wrappedErr := Wrap(originalErr, StorageError, "insert failed")

	assert.Equal(t, StorageError, wrappedErr.Type)
	assert.Equal(t, "insert failed", wrappedErr.Message)
	assert.Equal(t, originalErr.Error(), wrappedErr.Detail)
	assert.Equal(t, 500, wrappedErr.HTTPStatus)
	assert.Equal(t, originalErr, wrappedErr.Raw)

	assert.Nil(t, Wrap(nil, StorageError, "ignored"))
}

func TestValidationFailed(t *testing.T) {
	err := ValidationFailed(CodeInvalidEmail, "Invalid email format", "email")
	assert.Equal(t, ValidationError, err.Type)
	assert.Equal(t, CodeInvalidEmail, err.Code)
	assert.Equal(t, "Invalid email format", err.Message)
	assert.Equal(t, "email", err.Detail)
	assert.Equal(t, 400, err.HTTPStatus)
}

func TestAuthenticationFailed(t *testing.T) {
	err := AuthenticationFailed("Unauthorized")
	assert.Equal(t, AuthError, err.Type)
	assert.Equal(t, "Unauthorized", err.Message)
	assert.Equal(t, 401, err.HTTPStatus)
}

func TestRateLimitExceeded(t *testing.T) {
	err := RateLimitExceeded("Too many requests", 90)
	assert.Equal(t, RateLimitError, err.Type)
	assert.Equal(t, 429, err.GetHTTPStatus())
	assert.Equal(t, 90, err.RetryAfter)

	// A zero retry hint is rounded up so clients never get Retry-After: 0.
	assert.Equal(t, 1, RateLimitExceeded("Too many requests", 0).RetryAfter)
}

func TestStorageUnavailable(t *testing.T) {
	originalErr := fmt.Errorf("connection refused")
	err := StorageUnavailable(originalErr)
	assert.Equal(t, StorageError, err.Type)
	assert.Equal(t, "Internal server error", err.Message)
	assert.NotContains(t, err.Message, "connection refused")
	assert.Equal(t, 500, err.HTTPStatus)
	assert.ErrorIs(t, err, originalErr)
}

func TestAsAndIsType(t *testing.T) {
	wrapped := fmt.Errorf("pipeline: %w", ValidationFailed(CodeMissingField, "All fields are required", "name"))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeMissingField, appErr.Code)
	assert.True(t, IsType(wrapped, ValidationError))
	assert.False(t, IsType(wrapped, StorageError))

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "with detail",
			err: &AppError{
				Type:    ValidationError,
				Message: "invalid input",
				Detail:  "field required",
			},
			expected: "VALIDATION_ERROR: invalid input (field required)",
		},
		{
			name: "without detail",
			err: &AppError{
				Type:    AuthError,
				Message: "unauthorized",
			},
			expected: "AUTHENTICATION_ERROR: unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		errType  ErrorType
		expected int
	}{
		{ValidationError, 400},
		{AuthError, 401},
		{NotFoundError, 404},
		{RateLimitError, 429},
		{StorageError, 500},
		{ServiceUnavailableError, 503},
		{ServerError, 500},
		{ErrorType("UNKNOWN"), 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			assert.Equal(t, tt.expected, (&AppError{Type: tt.errType}).GetHTTPStatus())
		})
	}
}

func TestPayloadTooLarge(t *testing.T) {
	err := PayloadTooLarge(1024)
	assert.Equal(t, ValidationError, err.Type)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", err.Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, err.GetHTTPStatus())
	assert.Contains(t, err.Detail, "1024")
}
