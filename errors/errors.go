package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ValidationError         ErrorType = "VALIDATION_ERROR"
	AuthError               ErrorType = "AUTHENTICATION_ERROR"
	RateLimitError          ErrorType = "RATE_LIMIT_EXCEEDED"
	StorageError            ErrorType = "STORAGE_UNAVAILABLE"
	NotFoundError           ErrorType = "NOT_FOUND"
	ServiceUnavailableError ErrorType = "SERVICE_UNAVAILABLE"
	ServerError             ErrorType = "SERVER_ERROR"
)

// Validation error codes, one per intake rule.
const (
	CodeMissingField      = "MISSING_FIELD"
	CodeFieldTooLong      = "FIELD_TOO_LONG"
	CodeInvalidEmail      = "INVALID_EMAIL"
	CodeProhibitedContent = "PROHIBITED_CONTENT"
	CodeInvalidBody       = "INVALID_BODY"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	// RetryAfter is the number of seconds a rate-limited caller should wait.
	RetryAfter int   `json:"-"`
	Raw        error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Raw
}

// GetHTTPStatus returns the status recorded on the error, falling back to the
// default status of its type.
func (e *AppError) GetHTTPStatus() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return getHTTPStatus(e.Type)
}

// As extracts an *AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == errType
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// ValidationFailed builds a caller-fixable error. message is shown to the
// caller verbatim, so it must not contain internal detail.
func ValidationFailed(code, message, field string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Code:       code,
		Message:    message,
		Detail:     field,
		HTTPStatus: http.StatusBadRequest,
	}
}

func AuthenticationFailed(message string) *AppError {
	return &AppError{
		Type:       AuthError,
		Code:       "UNAUTHORIZED",
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func RateLimitExceeded(message string, retryAfterSeconds int) *AppError {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return &AppError{
		Type:       RateLimitError,
		Code:       "TOO_MANY_REQUESTS",
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfterSeconds,
	}
}

// StorageUnavailable wraps a persistence failure. The raw error is kept for
// server-side logging only.
func StorageUnavailable(err error) *AppError {
	return &AppError{
		Type:       StorageError,
		Code:       "STORAGE_UNAVAILABLE",
		Message:    "Internal server error",
		Detail:     "Please try again later",
		HTTPStatus: http.StatusInternalServerError,
		Raw:        err,
	}
}

// PayloadTooLarge rejects a request body over the configured limit.
func PayloadTooLarge(limit int64) *AppError {
	return &AppError{
		Type:       ValidationError,
		Code:       "PAYLOAD_TOO_LARGE",
		Message:    "Request body too large",
		Detail:     fmt.Sprintf("limit is %d bytes", limit),
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
}

func NotFound(message string) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Code:       "NOT_FOUND",
		Message:    message,
		HTTPStatus: http.StatusNotFound,
	}
}

func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Type:       ServiceUnavailableError,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Code:       "INTERNAL",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case AuthError:
		return http.StatusUnauthorized
	case RateLimitError:
		return http.StatusTooManyRequests
	case NotFoundError:
		return http.StatusNotFound
	case ServiceUnavailableError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
