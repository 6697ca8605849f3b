package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/matrix-portfolio/portfolio-api/errors"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/types"
)

const genericServerError = "Internal server error"

// ErrorHandler renders the last error pushed with c.Error. A 500 is logged in
// full and reaches the caller only as a generic message.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		last := c.Errors.Last()
		err := last.Err

		if appErr, ok := apperrors.As(err); ok {
			writeAppError(c, appErr)
			return
		}

		if last.Type == gin.ErrorTypeBind {
			writeAppError(c, apperrors.ValidationFailed(apperrors.CodeInvalidBody, "Invalid request body", ""))
			return
		}

		logger.LogHTTPError(c, err, http.StatusInternalServerError, "Unexpected server error")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   genericServerError,
			Type:    string(apperrors.ServerError),
			Code:    "INTERNAL",
			Message: genericServerError,
		})
	}
}

func writeAppError(c *gin.Context, appErr *apperrors.AppError) {
	status := appErr.GetHTTPStatus()

	logged := error(appErr)
	if appErr.Raw != nil {
		logged = appErr.Raw
	}
	logger.LogHTTPError(c, logged, status, string(appErr.Type)+" error")

	if appErr.Type == apperrors.RateLimitError && appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}

	resp := types.ErrorResponse{
		Error:   appErr.Message,
		Type:    string(appErr.Type),
		Code:    appErr.Code,
		Message: appErr.Message,
	}
	if status == http.StatusInternalServerError {
		resp.Error = genericServerError
		resp.Message = genericServerError
	} else {
		resp.Details = appErr.Detail
	}

	c.JSON(status, resp)
}
