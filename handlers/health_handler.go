package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matrix-portfolio/portfolio-api/types"
)

// HealthHandler serves the liveness, readiness and detailed health probes.
// None of the responses may be cached by intermediaries.
type HealthHandler struct {
	checker HealthChecker
	now     func() time.Time
}

func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker, now: time.Now}
}

// LivenessCheck never touches a backend: it answers as long as the process
// can serve requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"status":    types.HealthStatusUp,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck returns 503 only when the store is unreachable. A degraded
// rate limiter keeps the instance ready since admission fails open.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	health := h.checker.CheckHealth(c.Request.Context())
	c.Header("Cache-Control", "no-store")
	c.JSON(readinessCode(health.Status), health)
}

// DetailedHealth is the public {status, uptime, timestamp} report. It is
// always 200; monitors read the status field.
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	health := h.checker.CheckHealth(c.Request.Context())
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, health)
}

func readinessCode(status types.HealthStatus) int {
	if status == types.HealthStatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
