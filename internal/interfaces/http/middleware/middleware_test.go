package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rag-knowledge-hub/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, int, error) {
	if l.err != nil {
		return false, 0, l.err
	}
	l.seen[key]++
	if l.seen[key] > limit {
		return false, 0, nil
	}
	return true, limit - l.seen[key], nil
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/api/v1/stats", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.DELETE("/api/v1/documents", RequireWrite(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthScopes(t *testing.T) {
	cfg := AuthConfig{Enabled: true, Secret: "s3cret", Issuer: "rag-hub", SkipPaths: DefaultSkipPaths}
	r := newEngine(Auth(cfg))
	jm := utils.NewJWTManager(cfg.Secret, cfg.Issuer)
	reader, _ := jm.GenerateToken("u1", utils.ScopeRead, time.Minute)
	writer, _ := jm.GenerateToken("u2", utils.ScopeWrite, time.Minute)

	if w := do(r, http.MethodGet, "/api/v1/stats", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("expected health to skip auth, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/stats", "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/stats", reader); w.Code != http.StatusOK {
		t.Fatalf("expected read token to query, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/v1/documents", reader); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for read scope mutation, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/v1/documents", writer); w.Code != http.StatusNoContent {
		t.Fatalf("expected write scope to mutate, got %d", w.Code)
	}
}

func TestAuthDisabledGrantsWrite(t *testing.T) {
	r := newEngine(Auth(AuthConfig{Enabled: false}))
	if w := do(r, http.MethodDelete, "/api/v1/documents", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected mutation allowed without auth, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	l := &countingLimiter{seen: map[string]int{}}
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true, RequestsPerSecond: 2}, l, nil))

	for i := 0; i < 2; i++ {
		if w := do(r, http.MethodGet, "/api/v1/stats", ""); w.Code != http.StatusOK {
			t.Fatalf("expected request %d allowed, got %d", i, w.Code)
		}
	}
	w := do(r, http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After header")
	}

	l.err = errors.New("redis down")
	if w := do(r, http.MethodGet, "/api/v1/stats", ""); w.Code != http.StatusOK {
		t.Fatalf("expected fail-open on limiter error, got %d", w.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	r := newEngine(RequestID())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	w = do(r, http.MethodGet, "/health", "")
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	if w := do(r, http.MethodGet, "/boom", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", w.Code)
	}
}
