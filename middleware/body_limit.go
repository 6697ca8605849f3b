package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/matrix-portfolio/portfolio-api/errors"
)

// BodyLimit caps request bodies at limit bytes. Requests that declare a
// larger Content-Length are rejected up front; others fail while reading.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			_ = c.Error(apperrors.PayloadTooLarge(limit))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
