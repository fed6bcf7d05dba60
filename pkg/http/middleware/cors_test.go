package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsRecorder(t *testing.T, cfg CORSConfig, method, origin string, preflight bool) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(CORS(cfg))
	e.Any("/api/forecasts", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(method, "/api/forecasts", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	if preflight {
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORSListedOriginIsEchoed(t *testing.T) {
	cfg := CORSConfig{AllowOrigins: []string{"https://dash.example.com/"}}
	rec := corsRecorder(t, cfg, http.MethodGet, "https://dash.example.com", false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))
}

func TestCORSUnlistedOriginGetsNoHeaders(t *testing.T) {
	cfg := CORSConfig{AllowOrigins: []string{"https://dash.example.com"}}

	rec := corsRecorder(t, cfg, http.MethodGet, "https://evil.example.com", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = corsRecorder(t, cfg, http.MethodOptions, "https://evil.example.com", true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	cfg := CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       10 * time.Minute,
	}
	rec := corsRecorder(t, cfg, http.MethodOptions, "https://any.example.com", true)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, echo.HeaderContentType, rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
	assert.Empty(t, rec.Body.String())
}

func TestCORSWithoutOriginPassesThrough(t *testing.T) {
	rec := corsRecorder(t, CORSConfig{}, http.MethodGet, "", false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderVary))
	assert.Equal(t, "ok", rec.Body.String())
}
