package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/matrix-portfolio/portfolio-api/errors"
)

// AdminAuth admits requests whose bearer token equals token. An empty token
// rejects everything, so an unconfigured deployment never exposes the listing.
func AdminAuth(token string) gin.HandlerFunc {
	expected := []byte(token)

	return func(c *gin.Context) {
		if !bearerMatches(expected, c.GetHeader("Authorization")) {
			_ = c.Error(apperrors.AuthenticationFailed("Unauthorized"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerMatches(expected []byte, header string) bool {
	if len(expected) == 0 {
		return false
	}
	scheme, credential, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(credential)), expected) == 1
}
