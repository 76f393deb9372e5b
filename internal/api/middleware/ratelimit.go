package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-source rate limiting for webhook routes.
type RateLimitConfig struct {
	// Rate is the number of requests allowed per second per source address.
	Rate rate.Limit
	// Burst is the maximum burst size per source address.
	Burst int
	// CleanupInterval is how often stale entries are removed.
	CleanupInterval time.Duration
	// MaxAge is how long an idle limiter is kept before eviction.
	MaxAge time.Duration
}

// WebhookRateLimitConfig sizes the limiter for telephony webhook traffic at
// the configured steady rate. The burst is double the rate: a provider
// retrying failed status callbacks delivers them in a clump.
func WebhookRateLimitConfig(rps int) RateLimitConfig {
	return RateLimitConfig{
		Rate:            rate.Limit(rps),
		Burst:           rps * 2,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// sourceEntry tracks one source address's limiter and when it last sent.
type sourceEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter rate limits HTTP requests per source address. Providers
// deliver webhooks from a small set of egress addresses, so the entry map
// stays small in practice; anything else hitting the webhook routes is
// what the limiter is for.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*sourceEntry
	cfg     RateLimitConfig
	logger  *slog.Logger
	stopCh  chan struct{}
}

// NewIPRateLimiter creates a per-source limiter and starts background
// eviction of idle entries.
func NewIPRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *IPRateLimiter {
	rl := &IPRateLimiter{
		entries: make(map[string]*sourceEntry),
		cfg:     cfg,
		logger:  logger.With("subsystem", "rate-limit"),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from the given source address may proceed.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.entries[ip]
	if !ok {
		entry = &sourceEntry{
			limiter: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst),
		}
		rl.entries[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// Stop terminates the background cleanup goroutine.
func (rl *IPRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup evicts sources that have been idle longer than MaxAge.
func (rl *IPRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.cfg.MaxAge)
	removed := 0
	for ip, entry := range rl.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.entries, ip)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.Debug("evicted idle sources", "removed", removed, "remaining", len(rl.entries))
	}
}

// RateLimit returns middleware that rejects requests over the per-source
// limit with 429 and a Retry-After hint, in the API's error envelope.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r)

			if !limiter.Allow(ip) {
				limiter.logger.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				writeMWError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractIP returns the source address of the request, without the port.
// chi's RealIP middleware runs first, so behind a proxy RemoteAddr already
// carries the X-Forwarded-For / X-Real-IP value.
func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
