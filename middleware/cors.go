package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/matrix-portfolio/portfolio-api/config"
	"github.com/samber/lo"
)

// CORSMiddleware admits cross-origin calls only from cfg.AllowedOrigins.
// Requests from any other origin are answered with 403. "*" allows every
// origin but then credentials are not allowed.
func CORSMiddleware(cfg *config.ServerConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		AllowWildcard:    true,
		MaxAge:           12 * time.Hour,
	}

	origins := lo.Compact(cfg.AllowedOrigins)
	switch {
	case lo.Contains(origins, "*"):
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	case len(origins) == 0:
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	default:
		corsConfig.AllowOrigins = origins
	}

	return cors.New(corsConfig)
}
