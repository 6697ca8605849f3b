package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/matrix-portfolio/portfolio-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLimiter struct{}

func (failingLimiter) CheckLimit(context.Context, string, int, time.Duration) (bool, time.Duration, error) {
	return false, 0, errors.New("redis: connection refused")
}

func (failingLimiter) Ping(context.Context) error { return errors.New("down") }

func (failingLimiter) Name() string { return "failing" }

func newRateLimitedRouter(limiter services.RateLimiter, policies ...RateLimitPolicy) (*gin.Engine, *int) {
	handled := 0
	router := gin.New()
	router.Use(ErrorHandler())
	api := router.Group("/api")
	for _, p := range policies {
		api.Use(RateLimit(limiter, p))
	}
	api.POST("/contact", func(c *gin.Context) {
		handled++
		c.JSON(http.StatusCreated, gin.H{"message": "Contact saved successfully"})
	})
	return router, &handled
}

func postContact(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{}`))
	req.RemoteAddr = ip + ":1234"
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_ContactWindow(t *testing.T) {
	router, handled := newRateLimitedRouter(services.NewMemoryRateLimiter(), ContactRateLimitPolicy(5, time.Hour))

	for i := 0; i < 5; i++ {
		w := postContact(router, "192.168.1.2")
		require.Equal(t, http.StatusCreated, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := postContact(router, "192.168.1.2")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Too many contact form submissions")
	assert.Equal(t, 5, *handled, "the rejected request never reaches the handler")

	// Another caller has its own window.
	assert.Equal(t, http.StatusCreated, postContact(router, "192.168.1.3").Code)
}

func TestRateLimit_WindowsAreIndependent(t *testing.T) {
	limiter := services.NewMemoryRateLimiter()
	router, _ := newRateLimitedRouter(limiter,
		GeneralRateLimitPolicy(3, 15*time.Minute),
		ContactRateLimitPolicy(10, time.Hour),
	)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, postContact(router, "10.0.0.1").Code)
	}
	w := postContact(router, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many requests from this IP")
}

func TestRateLimit_Redis(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := services.NewRedisRateLimiter(client)
	router, handled := newRateLimitedRouter(limiter, ContactRateLimitPolicy(1, time.Hour))

	const key = "portfolio:rate_limit:contact:192.168.1.9"
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectExpireNX(key, time.Hour).SetVal(false)
	mock.ExpectTTL(key).SetVal(90 * time.Second)

	w := postContact(router, "192.168.1.9")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
	assert.Zero(t, *handled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimit_FailsOpen(t *testing.T) {
	router, handled := newRateLimitedRouter(failingLimiter{}, ContactRateLimitPolicy(1, time.Hour))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, postContact(router, "192.168.1.2").Code)
	}
	assert.Equal(t, 3, *handled)
}

func TestRateLimit_DisabledPolicy(t *testing.T) {
	router, handled := newRateLimitedRouter(services.NewMemoryRateLimiter(), ContactRateLimitPolicy(0, time.Hour))

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusCreated, postContact(router, "192.168.1.2").Code)
	}
	assert.Equal(t, 20, *handled)
}
