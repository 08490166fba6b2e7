package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MicahParks/keyfunc/v3"

	"github.com/bigkaa/tbc-ingest/internal/api/handlers"
	"github.com/bigkaa/tbc-ingest/internal/api/middleware"
)

func testRouter(t *testing.T, withAuth bool) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var jwtAuth *middleware.JWTAuth
	if withAuth {
		kf, err := keyfunc.NewJWKSetJSON([]byte(`{"keys":[]}`))
		if err != nil {
			t.Fatalf("keyfunc: %v", err)
		}
		jwtAuth = middleware.NewJWTAuthWithKeyfunc(kf, "", 0, logger)
	}

	health := handlers.NewHealthHandler(
		map[string]handlers.ReadinessChecker{},
		func(context.Context) (string, error) { return "PostgreSQL 16", nil },
		logger,
	)
	return NewRouter(logger, Handlers{Health: health}, jwtAuth)
}

func TestRouter_JWTExclusions(t *testing.T) {
	r := testRouter(t, true)

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/health", http.StatusOK},
		{"/api/db-status", http.StatusOK},
		{"/api/groups/", http.StatusUnauthorized},
		{"/api/importer/status/abc", http.StatusUnauthorized},
		{"/api/books/1", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("GET %s: код %d, ожидали %d", tt.path, rec.Code, tt.wantCode)
			}
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	r := testRouter(t, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("код %d, ожидали 404", rec.Code)
	}
}
