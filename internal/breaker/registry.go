package breaker

import (
	"context"
	"sync"

	"github.com/ekemper/leadGen-sub001/internal/logger"
)

// OpenHook is invoked when a service's breaker transitions to open. Hooks
// run on the goroutine that recorded the tripping failure; long-running
// work (such as the campaign pause cascade) should be dispatched from the
// hook, not executed inline.
type OpenHook func(service, reason string)

// StateHook is invoked on every breaker state change.
type StateHook func(service string, from, to State)

// Registry holds one breaker per third-party service, all sharing one record
// store. Breaker state is independent across services but shared across
// processes: a state change fires hooks only in the process whose write moved
// it.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	store    Store
	defaults Config
	log      logger.Logger

	hookMu        sync.RWMutex
	onOpen        []OpenHook
	onStateChange []StateHook
}

// NewRegistry creates a registry on the given store with per-service
// configuration. Services not present in configs get the default
// configuration on first use.
func NewRegistry(store Store, configs map[string]Config, defaults Config, log logger.Logger) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logger.NewNop()
	}
	r := &Registry{
		breakers: make(map[string]*Breaker),
		store:    store,
		defaults: defaults,
		log:      log,
	}
	for service, cfg := range configs {
		r.breakers[service] = r.newBreaker(service, cfg)
	}
	return r
}

func (r *Registry) newBreaker(service string, cfg Config) *Breaker {
	b := New(service, r.store, cfg)
	b.log = r.log
	b.onStateChange = func(from, to State, reason string) {
		r.log.Info("circuit breaker state change",
			logger.String("service", service),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
			logger.String("reason", reason),
		)
		r.fanOutStateChange(service, from, to)
		if to == StateOpen {
			r.fanOutOpen(service, reason)
		}
	}
	return b
}

// OnOpen registers a hook invoked whenever any service's breaker opens.
func (r *Registry) OnOpen(hook OpenHook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onOpen = append(r.onOpen, hook)
}

// OnStateChange registers a hook invoked on every breaker state change.
func (r *Registry) OnStateChange(hook StateHook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onStateChange = append(r.onStateChange, hook)
}

func (r *Registry) fanOutStateChange(service string, from, to State) {
	r.hookMu.RLock()
	hooks := make([]StateHook, len(r.onStateChange))
	copy(hooks, r.onStateChange)
	r.hookMu.RUnlock()

	for _, hook := range hooks {
		hook(service, from, to)
	}
}

func (r *Registry) fanOutOpen(service, reason string) {
	r.hookMu.RLock()
	hooks := make([]OpenHook, len(r.onOpen))
	copy(hooks, r.onOpen)
	r.hookMu.RUnlock()

	for _, hook := range hooks {
		hook(service, reason)
	}
}

// Get returns the breaker for a service, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[service]; ok {
		return b
	}
	b = r.newBreaker(service, r.defaults)
	r.breakers[service] = b
	return b
}

// ShouldAllowRequest reports whether a call to the service may proceed.
func (r *Registry) ShouldAllowRequest(ctx context.Context, service string) (bool, string) {
	return r.Get(service).ShouldAllowRequest(ctx)
}

// RecordSuccess records a successful call to the service.
func (r *Registry) RecordSuccess(ctx context.Context, service string) {
	r.Get(service).RecordSuccess(ctx)
}

// RecordFailure records a failed call to the service.
func (r *Registry) RecordFailure(ctx context.Context, service, detail string, kind FailureKind) {
	if kind == KindRateLimit {
		r.log.Warn("third-party rate limit recorded",
			logger.String("service", service),
			logger.String("detail", detail),
		)
	}
	r.Get(service).RecordFailure(ctx, detail, kind)
}

// IsOpen reports whether the service's breaker currently blocks requests.
// Unlike ShouldAllowRequest this is a pure probe: it never starts a
// half-open trial. An open breaker past its cooldown still counts as open
// for start/resume prerequisite checks.
func (r *Registry) IsOpen(ctx context.Context, service string) bool {
	return r.Get(service).State(ctx) == StateOpen
}

// StatsSnapshot returns per-service stats for reporting.
func (r *Registry) StatsSnapshot(ctx context.Context) map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.breakers))
	for service, b := range r.breakers {
		out[service] = b.GetStats(ctx)
	}
	return out
}
