package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig holds per-user request limits. A zero limit disables that check.
type RateLimitConfig struct {
	RequestsPerMinute int
	MaxConcurrent     int
	CleanupInterval   time.Duration
}

// DefaultRateLimitConfig returns default rate limiting parameters
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 600,
		MaxConcurrent:     16,
		CleanupInterval:   5 * time.Minute,
	}
}

// clientLimiter tracks one caller's window and in-flight requests
type clientLimiter struct {
	requestsThisMinute int
	windowStart        time.Time
	lastRequest        time.Time
	concurrent         int
}

// RateLimiter limits requests per caller. Callers are keyed by user ID when
// the request is authenticated and by remote address otherwise.
type RateLimiter struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	config  RateLimitConfig
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimitConfig().CleanupInterval
	}
	rl := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		config:  config,
		cleanup: time.NewTicker(config.CleanupInterval),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanupLoop()
	return rl
}

// acquire admits one request for key, or reports false when a limit is hit.
func (rl *RateLimiter) acquire(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, exists := rl.clients[key]
	if !exists {
		client = &clientLimiter{windowStart: now}
		rl.clients[key] = client
	}

	if now.Sub(client.windowStart) >= time.Minute {
		client.requestsThisMinute = 0
		client.windowStart = now
	}

	if rl.config.MaxConcurrent > 0 && client.concurrent >= rl.config.MaxConcurrent {
		return false
	}
	if rl.config.RequestsPerMinute > 0 && client.requestsThisMinute >= rl.config.RequestsPerMinute {
		return false
	}

	client.requestsThisMinute++
	client.concurrent++
	client.lastRequest = now
	return true
}

func (rl *RateLimiter) release(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if client, exists := rl.clients[key]; exists && client.concurrent > 0 {
		client.concurrent--
	}
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanup.C:
			rl.cleanupIdle()
		case <-rl.done:
			return
		}
	}
}

// cleanupIdle forgets callers with nothing in flight and no recent requests.
func (rl *RateLimiter) cleanupIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * time.Minute)
	for key, client := range rl.clients {
		if client.concurrent == 0 && client.lastRequest.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Shutdown stops the cleanup loop.
func (rl *RateLimiter) Shutdown() {
	rl.once.Do(func() {
		rl.cleanup.Stop()
		close(rl.done)
	})
}

// TrackedClients returns the number of callers currently tracked.
func (rl *RateLimiter) TrackedClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func limiterKey(r *http.Request) string {
	if identity, ok := IdentityFrom(r.Context()); ok {
		return "user:" + identity.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := limiterKey(r)
		if !rl.acquire(key) {
			w.Header().Set("Retry-After", "60")
			sendJSON(w, http.StatusTooManyRequests, APIResponse{Success: false, Error: "rate limit exceeded"})
			return
		}
		defer rl.release(key)
		next.ServeHTTP(w, r)
	})
}
