package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"roomres/pkg/auth"
	apperrors "roomres/pkg/errors"
	"roomres/pkg/logger"
)

type KeyExtractor func(r *http.Request) string

// CallerRateLimiter is a sliding-window limiter keyed per caller.
type CallerRateLimiter struct {
	mu           sync.Mutex
	requests     map[string][]time.Time
	limit        int
	window       time.Duration
	keyExtractor KeyExtractor
	log          *logger.Logger
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewCallerRateLimiter(limit int, window time.Duration, extractor KeyExtractor, log *logger.Logger) *CallerRateLimiter {
	if extractor == nil {
		extractor = DefaultCallerExtractor
	}
	limiter := &CallerRateLimiter{
		requests:     make(map[string][]time.Time),
		limit:        limit,
		window:       window,
		keyExtractor: extractor,
		log:          log,
		stopCh:       make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *CallerRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for key, timestamps := range rl.requests {
				if len(timestamps) == 0 || time.Since(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *CallerRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *CallerRateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.requests[key]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

func CallerRateLimit(limiter *CallerRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiter.keyExtractor(r)

			if !limiter.Allow(key) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", RequestIDFromContext(r.Context()),
					"key", key,
					"path", r.URL.Path,
				)
				_ = apperrors.WriteError(w, apperrors.New("RATE_LIMITED", "Rate limit exceeded", http.StatusTooManyRequests))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DefaultCallerExtractor keys authenticated requests by username and
// anonymous ones by client address.
func DefaultCallerExtractor(r *http.Request) string {
	if caller := auth.CallerFromContext(r.Context()); caller != nil {
		return "user:" + caller.Username
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
