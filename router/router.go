package router

import (
	"github.com/gin-gonic/gin"
	"github.com/matrix-portfolio/portfolio-api/config"
	"github.com/matrix-portfolio/portfolio-api/handlers"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/middleware"
	"github.com/matrix-portfolio/portfolio-api/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies struct holds all dependencies required for setting up routes.
type Dependencies struct {
	Config         *config.Config
	RateLimiter    services.RateLimiter
	ContactHandler *handlers.ContactHandler
	HealthHandler  *handlers.HealthHandler
	SystemHandler  *handlers.SystemHandler
}

// SetupRouter configures and returns the main Gin engine with all routes defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	r := gin.New()
	r.Use(gin.Recovery())

	// Without trusted proxies ClientIP is the socket address; X-Forwarded-For
	// is only honoured from the listed ranges.
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.GetLogger().Warnw("Invalid trusted proxies, ignoring forwarded headers", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	// Global Middleware
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.SecurityHeadersMiddleware(cfg))
	r.Use(middleware.CORSMiddleware(&cfg.Server))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(handlers.NotFound)

	adminAuth := middleware.AdminAuth(cfg.Server.AdminToken)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(deps.RateLimiter,
		middleware.GeneralRateLimitPolicy(cfg.RateLimit.GeneralRequests, cfg.RateLimit.GeneralWindow())))
	{
		api.GET("/health", deps.HealthHandler.DetailedHealth)
		api.GET("/health/live", deps.HealthHandler.LivenessCheck)
		api.GET("/health/ready", deps.HealthHandler.ReadinessCheck)
		api.GET("/version", deps.SystemHandler.Version)
		api.GET("/test", deps.SystemHandler.Ping)
		api.POST("/test-email", adminAuth, deps.SystemHandler.TestEmail)

		api.POST("/contact",
			middleware.RateLimit(deps.RateLimiter,
				middleware.ContactRateLimitPolicy(cfg.RateLimit.ContactRequests, cfg.RateLimit.ContactWindow())),
			deps.ContactHandler.SubmitContact)
		api.GET("/contacts", adminAuth, deps.ContactHandler.ListContacts)
	}

	return r
}
