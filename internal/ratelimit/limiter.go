// Package ratelimit provides a fixed-window rate limiter shared across
// worker processes through an external atomic counter store.
package ratelimit

import (
	"context"
	"time"

	"github.com/ekemper/leadGen-sub001/internal/counter"
	"github.com/ekemper/leadGen-sub001/internal/logger"
)

// Config holds the per-service window settings.
type Config struct {
	// MaxRequests is the number of requests admitted per window.
	MaxRequests int
	// Period is the window length. The window starts at the first acquire
	// and is not sliding: a burst at a window boundary can admit up to
	// 2x MaxRequests within a short span.
	Period time.Duration
}

// Limiter gates outbound calls per service name. When the counter store is
// unreachable it fails open: the request is treated as allowed and the full
// budget is reported as remaining. A limiter outage must never block
// legitimate traffic; the cost is a temporarily unenforced limit.
type Limiter struct {
	store    counter.Store
	services map[string]Config
	log      logger.Logger
}

// New creates a Limiter with per-service window configuration.
func New(store counter.Store, services map[string]Config, log logger.Logger) *Limiter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Limiter{
		store:    store,
		services: services,
		log:      log,
	}
}

// defaultConfig is used for service names without explicit configuration.
var defaultConfig = Config{MaxRequests: 60, Period: time.Minute}

func (l *Limiter) config(service string) Config {
	if cfg, ok := l.services[service]; ok {
		return cfg
	}
	return defaultConfig
}

func key(service string) string {
	return "ratelimit:" + service
}

// Acquire atomically consumes one slot from the service's current window.
// It returns true iff the post-increment count is within the configured
// budget. The first acquire of a window arms the window expiry.
func (l *Limiter) Acquire(ctx context.Context, service string) bool {
	cfg := l.config(service)

	count, err := l.store.IncrementWithExpiry(ctx, key(service), cfg.Period)
	if err != nil {
		l.log.Warn("counter store unavailable, failing open",
			logger.String("service", service),
			logger.Error(err),
		)
		return true
	}

	allowed := count <= int64(cfg.MaxRequests)
	if !allowed {
		l.log.Debug("rate limit exceeded",
			logger.String("service", service),
			logger.Int64("count", count),
			logger.Int("max_requests", cfg.MaxRequests),
		)
	}
	return allowed
}

// Remaining reports how many requests are left in the service's current
// window without consuming a slot.
func (l *Limiter) Remaining(ctx context.Context, service string) int {
	cfg := l.config(service)

	count, err := l.store.Get(ctx, key(service))
	if err != nil {
		l.log.Warn("counter store unavailable, reporting full budget",
			logger.String("service", service),
			logger.Error(err),
		)
		return cfg.MaxRequests
	}

	remaining := cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// IsAllowed is a non-mutating probe: it reports whether an Acquire would
// currently succeed, without consuming a slot.
func (l *Limiter) IsAllowed(ctx context.Context, service string) bool {
	return l.Remaining(ctx, service) > 0
}

// MaxRequests exposes the configured budget for a service, for reporting.
func (l *Limiter) MaxRequests(service string) int {
	return l.config(service).MaxRequests
}
