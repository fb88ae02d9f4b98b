package breaker

import (
	"context"
	"sync"
)

// Record is the shared per-service breaker state. Every orchestrator process
// reads and writes the same record, so a failure observed by one process
// blocks requests from all of them.
type Record struct {
	State         State       `json:"state"`
	FailureCount  int         `json:"failure_count"`
	LastFailureMs int64       `json:"last_failure_ms"`
	LastChangeMs  int64       `json:"last_change_ms"`
	FailureReason string      `json:"failure_reason,omitempty"`
	FailureKind   FailureKind `json:"failure_kind,omitempty"`
	TrialInFlight bool        `json:"trial_in_flight"`
}

// Store persists breaker records with optimistic concurrency. Load returns
// the record and its version; an absent service yields a zero record at
// version 0. Save writes the record only when the stored version still
// matches and reports whether the write won.
type Store interface {
	Load(ctx context.Context, service string) (Record, int64, error)
	Save(ctx context.Context, service string, rec Record, version int64) (bool, error)
}

// MemoryStore keeps breaker records in process memory. Production wiring uses
// RedisStore so state is shared fleet-wide; MemoryStore serves tests and
// single-process runs.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	versions map[string]int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]Record),
		versions: make(map[string]int64),
	}
}

// Load returns the service's record and version.
func (s *MemoryStore) Load(_ context.Context, service string) (Record, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[service], s.versions[service], nil
}

// Save writes the record when the version still matches.
func (s *MemoryStore) Save(_ context.Context, service string, rec Record, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[service] != version {
		return false, nil
	}
	s.records[service] = rec
	s.versions[service] = version + 1
	return true, nil
}
