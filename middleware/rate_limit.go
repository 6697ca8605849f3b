package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/matrix-portfolio/portfolio-api/errors"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RateLimitPolicy is one per-IP admission window.
type RateLimitPolicy struct {
	// Name prefixes the counter key so windows are independent.
	Name    string
	Limit   int
	Window  time.Duration
	Message string
}

var (
	rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_rate_limit_rejections_total",
		Help: "Requests rejected by admission control",
	}, []string{"policy"})

	rateLimitBackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_rate_limit_backend_errors_total",
		Help: "Admission checks skipped because the counter backend failed",
	}, []string{"policy"})
)

// GeneralRateLimitPolicy bounds all API traffic per IP.
func GeneralRateLimitPolicy(limit int, window time.Duration) RateLimitPolicy {
	return RateLimitPolicy{
		Name:    "general",
		Limit:   limit,
		Window:  window,
		Message: "Too many requests from this IP, please try again later.",
	}
}

// ContactRateLimitPolicy bounds contact-form submissions per IP.
func ContactRateLimitPolicy(limit int, window time.Duration) RateLimitPolicy {
	return RateLimitPolicy{
		Name:    "contact",
		Limit:   limit,
		Window:  window,
		Message: "Too many contact form submissions, please try again later.",
	}
}

// RateLimit rejects a caller once it exceeds policy within the window. The
// check runs before the handler, so rejected submissions are never
// validated. A failing backend lets the request through.
func RateLimit(limiter services.RateLimiter, policy RateLimitPolicy) gin.HandlerFunc {
	if limiter == nil || policy.Limit <= 0 || policy.Window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	log := logger.GetLogger().Named("rate-limit")
	limitHeader := strconv.Itoa(policy.Limit)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		key := policy.Name + ":" + ip

		allowed, retryAfter, err := limiter.CheckLimit(c.Request.Context(), key, policy.Limit, policy.Window)
		if err != nil {
			rateLimitBackendErrors.WithLabelValues(policy.Name).Inc()
			log.Warnw("Rate limit check failed, allowing request",
				"policy", policy.Name,
				"backend", limiter.Name(),
				"error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limitHeader)
		if !allowed {
			rateLimitRejections.WithLabelValues(policy.Name).Inc()
			log.Infow("Rate limit exceeded", "policy", policy.Name, "ip", ip)
			_ = c.Error(apperrors.RateLimitExceeded(policy.Message, int(math.Ceil(retryAfter.Seconds()))))
			c.Abort()
			return
		}

		c.Next()
	}
}
