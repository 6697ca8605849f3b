package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/matrix-portfolio/portfolio-api/middleware"
	"github.com/matrix-portfolio/portfolio-api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSystemHandler_VersionAndPing(t *testing.T) {
	handler := NewSystemHandler("2.0.0", nil)
	router := gin.New()
	router.GET("/api/version", handler.Version)
	router.GET("/api/test", handler.Ping)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var info types.VersionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "Matrix Portfolio API", info.Name)
	assert.Len(t, info.Features, 3)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	assert.JSONEq(t, `{"message":"Backend is working!"}`, w.Body.String())
}

func TestSystemHandler_TestEmail(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(m *MockTestMailer)
		wantStatus int
		wantBody   string
	}{
		{
			name: "sent",
			setup: func(m *MockTestMailer) {
				m.On("Enabled").Return(true)
				m.On("SendTest", mock.Anything).Return(nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "Test email sent successfully",
		},
		{
			name: "not configured",
			setup: func(m *MockTestMailer) {
				m.On("Enabled").Return(false)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "Email is not configured",
		},
		{
			name: "transport failure",
			setup: func(m *MockTestMailer) {
				m.On("Enabled").Return(true)
				m.On("SendTest", mock.Anything).Return(errors.New("535 5.7.8 bad credentials"))
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := new(MockTestMailer)
			tt.setup(mailer)

			router := gin.New()
			router.Use(middleware.ErrorHandler())
			router.POST("/api/test-email", middleware.AdminAuth(testAdminToken), NewSystemHandler("2.0.0", mailer).TestEmail)

			req := httptest.NewRequest(http.MethodPost, "/api/test-email", nil)
			req.Header.Set("Authorization", "Bearer "+testAdminToken)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.NotContains(t, w.Body.String(), "bad credentials")
			mailer.AssertExpectations(t)
		})
	}
}

func TestSystemHandler_TestEmailRequiresAdmin(t *testing.T) {
	mailer := new(MockTestMailer)

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.POST("/api/test-email", middleware.AdminAuth(testAdminToken), NewSystemHandler("2.0.0", mailer).TestEmail)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/test-email", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mailer.AssertNotCalled(t, "SendTest", mock.Anything)
}

func TestNotFound(t *testing.T) {
	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.NoRoute(NotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Endpoint not found", resp.Error)
}
