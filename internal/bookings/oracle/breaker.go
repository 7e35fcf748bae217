package oracle

import (
	"context"
	"errors"
	"time"

	"roomres/pkg/client"
	"roomres/pkg/logger"

	"github.com/sony/gobreaker"
)

const (
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 60 * time.Second
	breakerHalfOpenProbes  = 2
)

// BreakerConfig controls the circuit breaker in front of an upstream
// service. After Failures consecutive failures the breaker opens and calls
// fail fast until Timeout has passed.
type BreakerConfig struct {
	Failures uint32
	Timeout  time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Failures == 0 {
		c.Failures = DefaultBreakerFailures
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultBreakerTimeout
	}
	return c
}

func newBreaker(name string, cfg BreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker {
	cfg = cfg.withDefaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenProbes,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		IsSuccessful: upstreamHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// upstreamHealthy reports whether err still proves the upstream answered.
// A 404 is a valid answer and a caller that gave up says nothing about the
// upstream.
func upstreamHealthy(err error) bool {
	return err == nil || errors.Is(err, client.ErrNotFound) || errors.Is(err, context.Canceled)
}

func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
