package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"storyforge-api/internal/config"
	"storyforge-api/internal/interfaces/http/middleware"
)

func TestAuthConfigIsEnforcedOnV1(t *testing.T) {
	r := New(&config.Config{}, Handlers{}, nil, middleware.AuthConfig{
		Secret:    "test-secret",
		Issuer:    "storyforge",
		SkipPaths: middleware.DefaultSkipPaths,
		Enabled:   true,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated v1 request should be rejected, got %d", w.Code)
	}
}

func TestAuthConfigDisabledSkipsAuth(t *testing.T) {
	r := New(&config.Config{}, Handlers{}, nil, middleware.AuthConfig{Enabled: false})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stories", nil)
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Fatalf("disabled auth must not reject requests, got %d", w.Code)
	}
}
