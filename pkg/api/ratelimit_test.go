package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TheEntropyCollective/mediavault/pkg/access"
)

func TestNewRateLimiter(t *testing.T) {
	config := DefaultRateLimitConfig()
	rl := NewRateLimiter(config)
	defer rl.Shutdown()

	if rl.clients == nil {
		t.Error("Expected clients map to be initialized")
	}
	if rl.config.RequestsPerMinute != config.RequestsPerMinute {
		t.Errorf("Expected requests per minute %d, got %d", config.RequestsPerMinute, rl.config.RequestsPerMinute)
	}

	// Shutdown is safe to call twice.
	rl.Shutdown()
}

func TestAcquire_RequestsPerMinute(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 2, CleanupInterval: time.Minute})
	defer rl.Shutdown()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if !rl.acquire("user:alice") {
			t.Fatalf("Request %d should pass", i+1)
		}
		rl.release("user:alice")
	}
	if rl.acquire("user:alice") {
		t.Error("Expected third request in the window to be limited")
	}

	// The window resets after a minute.
	now = now.Add(61 * time.Second)
	if !rl.acquire("user:alice") {
		t.Error("Expected request in a new window to pass")
	}
}

func TestAcquire_ConcurrentLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxConcurrent: 2, CleanupInterval: time.Minute})
	defer rl.Shutdown()

	if !rl.acquire("user:bob") || !rl.acquire("user:bob") {
		t.Fatal("Expected first two concurrent requests to pass")
	}
	if rl.acquire("user:bob") {
		t.Error("Expected third concurrent request to be limited")
	}

	rl.release("user:bob")
	if !rl.acquire("user:bob") {
		t.Error("Expected request to pass after a release")
	}
}

func TestRelease_UnknownClient(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	defer rl.Shutdown()

	rl.release("user:nobody")
	if rl.TrackedClients() != 0 {
		t.Errorf("Expected no tracked clients, got %d", rl.TrackedClients())
	}
}

func TestCleanupIdle(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	defer rl.Shutdown()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.acquire("user:idle")
	rl.release("user:idle")
	rl.acquire("user:busy")

	now = now.Add(10 * time.Minute)
	rl.cleanupIdle()

	if rl.TrackedClients() != 1 {
		t.Errorf("Expected only the busy client to remain, got %d", rl.TrackedClients())
	}
}

func TestLimiterKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/resources", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	if key := limiterKey(req); key != "addr:192.168.1.100" {
		t.Errorf("Expected address key, got %s", key)
	}

	req = req.WithContext(withIdentity(req.Context(), access.Identity{UserID: "alice"}))
	if key := limiterKey(req); key != "user:alice" {
		t.Errorf("Expected user key, got %s", key)
	}
}

func TestMiddleware_Limits(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, CleanupInterval: time.Minute})
	defer rl.Shutdown()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.1.1:4000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}
}
