package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serve(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	chDown := errors.New("dial tcp: connection refused")
	s := NewServer(nil,
		WithMetrics("", nil),
		WithReadinessCheck("redis", func(context.Context) error { return nil }),
		WithReadinessCheck("clickhouse", func(context.Context) error { return chDown }),
	)

	rec := serve(s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)
	assert.Contains(t, rec.Body.String(), "connection refused")

	assert.Equal(t, http.StatusOK, serve(s, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, "/metrics").Code)
}

func TestReadinessWithoutChecksIsReady(t *testing.T) {
	s := NewServer(nil, WithoutCORS())
	assert.Equal(t, http.StatusOK, serve(s, "/readyz").Code)
}
