// Package campaign implements the campaign lifecycle state machine and its
// interaction with service health.
package campaign

import (
	"fmt"
	"strings"
)

// ValidationError reports bad campaign input. It is never retried and is
// surfaced verbatim to the caller of Start.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "campaign validation failed: " + strings.Join(e.Reasons, "; ")
}

// CriticalServiceError is returned when the lead-source service's breaker is
// open: the campaign cannot start at all.
type CriticalServiceError struct {
	Service string
}

func (e *CriticalServiceError) Error() string {
	return fmt.Sprintf("critical service %s is unavailable", e.Service)
}

// ServicesUnavailableError is returned when required (non-critical)
// services have open breakers. Distinguishable from the critical case for
// error reporting.
type ServicesUnavailableError struct {
	Services []string
}

func (e *ServicesUnavailableError) Error() string {
	return "required services unavailable: " + strings.Join(e.Services, ", ")
}

// InvalidStateError reports an operation attempted from a status that does
// not permit it. It is an error, not a state change.
type InvalidStateError struct {
	Operation string
	Status    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign in status %s", e.Operation, e.Status)
}
