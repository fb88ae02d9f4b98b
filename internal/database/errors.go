package database

import "errors"

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleTransition is returned when a status transition was attempted
	// against state that changed underneath the caller. The caller must
	// re-read and retry; the repository never retries on its own.
	ErrStaleTransition = errors.New("stale status transition")
)
