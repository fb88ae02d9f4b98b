// Package breaker provides per-service circuit breakers for third-party
// calls, backed by a shared record store so every orchestrator process sees
// the same state, with a registry that fans open-transitions out to
// interested components.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/ekemper/leadGen-sub001/internal/logger"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed means the circuit is closed and requests are allowed.
	StateClosed State = iota
	// StateOpen means the circuit is open and requests are blocked.
	StateOpen
	// StateHalfOpen means the circuit allows one trial request to test recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// FailureKind classifies a recorded failure. Rate-limit failures weigh the
// same as exceptions for opening the circuit but are reported distinctly.
type FailureKind string

const (
	KindException FailureKind = "exception"
	KindRateLimit FailureKind = "rate_limit"
)

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures inside the
	// trailing FailureWindow before the circuit opens.
	FailureThreshold int
	// FailureWindow is the trailing window over which consecutive failures
	// are counted. A failure older than the window restarts the count.
	FailureWindow time.Duration
	// Cooldown is how long the circuit stays open before a half-open trial.
	Cooldown time.Duration
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureWindow:    5 * time.Minute,
		Cooldown:         5 * time.Minute,
	}
}

// applyAttempts bounds the optimistic-concurrency retry loop.
const applyAttempts = 4

var errRecordContention = errors.New("breaker record contention")

// Breaker tracks the health of one third-party service. All state lives in
// the Store; the Breaker itself only carries configuration, so any number of
// processes may operate on the same service record concurrently.
type Breaker struct {
	service string
	store   Store
	config  Config
	now     func() time.Time
	log     logger.Logger

	// onStateChange fires on the instance whose write moved the state, which
	// is exactly one process fleet-wide. Keep callbacks fast and
	// non-reentrant.
	onStateChange func(from, to State, reason string)
}

// New creates a breaker for one service on the given store. A nil store gets
// a private in-memory one.
func New(service string, store Store, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if store == nil {
		store = NewMemoryStore()
	}

	return &Breaker{
		service: service,
		store:   store,
		config:  cfg,
		now:     time.Now,
		log:     logger.NewNop(),
	}
}

// step mutates a loaded record. It reports whether the record changed and,
// when the state moved, the transition reason.
type step func(rec *Record) (dirty bool, reason string)

// apply loads the record, runs fn on it, and saves it back, retrying when
// another process won the version race in between.
func (b *Breaker) apply(ctx context.Context, fn step) (Record, error) {
	for attempt := 0; attempt < applyAttempts; attempt++ {
		rec, version, err := b.store.Load(ctx, b.service)
		if err != nil {
			return Record{}, err
		}

		from := rec.State
		dirty, reason := fn(&rec)
		if !dirty {
			return rec, nil
		}

		won, err := b.store.Save(ctx, b.service, rec, version)
		if err != nil {
			return Record{}, err
		}
		if won {
			if rec.State != from && b.onStateChange != nil {
				b.onStateChange(from, rec.State, reason)
			}
			return rec, nil
		}
	}
	return Record{}, errRecordContention
}

// ShouldAllowRequest reports whether a call may proceed, with a
// human-readable reason when it may not. An open circuit whose cooldown has
// elapsed transitions to half-open and admits exactly one trial request
// across all processes. When the store is unreachable the breaker fails
// open: services are presumed operational.
func (b *Breaker) ShouldAllowRequest(ctx context.Context) (bool, string) {
	allowed, reason := true, ""
	_, err := b.apply(ctx, func(rec *Record) (bool, string) {
		switch rec.State {
		case StateOpen:
			if b.now().Sub(msToTime(rec.LastChangeMs)) < b.config.Cooldown {
				allowed, reason = false, "circuit open: "+rec.FailureReason
				return false, ""
			}
			b.transition(rec, StateHalfOpen)
			rec.TrialInFlight = true
			allowed, reason = true, "half-open trial"
			return true, "cooldown elapsed"

		case StateHalfOpen:
			if rec.TrialInFlight {
				allowed, reason = false, "half-open trial already in flight"
				return false, ""
			}
			rec.TrialInFlight = true
			allowed, reason = true, "half-open trial"
			return true, ""

		default:
			allowed, reason = true, ""
			return false, ""
		}
	})
	if err != nil {
		b.storeError("allow check", err)
		return true, ""
	}
	return allowed, reason
}

// RecordSuccess records a successful call. A single success in half-open
// closes the circuit and resets the failure counter.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	_, err := b.apply(ctx, func(rec *Record) (bool, string) {
		dirty := rec.TrialInFlight || rec.FailureCount != 0
		rec.TrialInFlight = false
		rec.FailureCount = 0

		if rec.State == StateHalfOpen || rec.State == StateOpen {
			b.transition(rec, StateClosed)
			return true, "trial succeeded"
		}
		return dirty, ""
	})
	if err != nil {
		b.storeError("record success", err)
	}
}

// RecordFailure records a failed call with its cause. A failure in half-open
// reopens the circuit with the cooldown restarted; repeated failures inside
// the trailing window open a closed circuit.
func (b *Breaker) RecordFailure(ctx context.Context, detail string, kind FailureKind) {
	_, err := b.apply(ctx, func(rec *Record) (bool, string) {
		now := b.now()

		// Failures outside the trailing window no longer count as consecutive.
		if rec.LastFailureMs > 0 && now.Sub(msToTime(rec.LastFailureMs)) > b.config.FailureWindow {
			rec.FailureCount = 0
		}

		rec.FailureCount++
		rec.LastFailureMs = now.UnixMilli()
		rec.FailureReason = detail
		rec.FailureKind = kind
		rec.TrialInFlight = false

		switch rec.State {
		case StateClosed:
			if rec.FailureCount >= b.config.FailureThreshold {
				b.transition(rec, StateOpen)
				return true, detail
			}
		case StateHalfOpen:
			// Any failure during the trial reopens immediately.
			b.transition(rec, StateOpen)
			return true, detail
		}
		return true, ""
	})
	if err != nil {
		b.storeError("record failure", err)
	}
}

// transition moves the record to a new state.
func (b *Breaker) transition(rec *Record, to State) {
	rec.State = to
	rec.LastChangeMs = b.now().UnixMilli()
	if to == StateClosed {
		rec.FailureCount = 0
		rec.FailureReason = ""
	}
}

// State returns the current state. A store failure reads as closed, matching
// the fail-open posture of ShouldAllowRequest.
func (b *Breaker) State(ctx context.Context) State {
	rec, _, err := b.store.Load(ctx, b.service)
	if err != nil {
		b.storeError("state probe", err)
		return StateClosed
	}
	return rec.State
}

// Stats is a point-in-time snapshot of breaker internals.
type Stats struct {
	State           State       `json:"state"`
	FailureCount    int         `json:"failure_count"`
	LastFailureTime time.Time   `json:"last_failure_time"`
	LastStateChange time.Time   `json:"last_state_change"`
	FailureReason   string      `json:"failure_reason,omitempty"`
	FailureKind     FailureKind `json:"failure_kind,omitempty"`
}

// GetStats returns current statistics.
func (b *Breaker) GetStats(ctx context.Context) Stats {
	rec, _, err := b.store.Load(ctx, b.service)
	if err != nil {
		b.storeError("stats probe", err)
		return Stats{}
	}
	return Stats{
		State:           rec.State,
		FailureCount:    rec.FailureCount,
		LastFailureTime: msToTime(rec.LastFailureMs),
		LastStateChange: msToTime(rec.LastChangeMs),
		FailureReason:   rec.FailureReason,
		FailureKind:     rec.FailureKind,
	}
}

// Reset forces the breaker back to closed. Intended for operator use.
func (b *Breaker) Reset(ctx context.Context) {
	_, err := b.apply(ctx, func(rec *Record) (bool, string) {
		rec.TrialInFlight = false
		if rec.State == StateClosed {
			rec.FailureCount = 0
			rec.FailureReason = ""
			return true, ""
		}
		b.transition(rec, StateClosed)
		return true, "manual reset"
	})
	if err != nil {
		b.storeError("reset", err)
	}
}

func (b *Breaker) storeError(op string, err error) {
	b.log.Warn("breaker store unavailable, treating service as operational",
		logger.String("service", b.service),
		logger.String("op", op),
		logger.Error(err),
	)
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
