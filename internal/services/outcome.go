package services

// OutcomeKind is the closed set of results an adapter can produce.
type OutcomeKind string

const (
	// OutcomeSuccess means the call succeeded and Payload holds the raw result.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeRateLimited means the service reported a rate limit. Recoverable:
	// the enclosing job pauses rather than fails.
	OutcomeRateLimited OutcomeKind = "rate_limited"
	// OutcomeFailed means an unexpected error. Counted toward the breaker.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the tagged result of one third-party call. Pipeline logic
// switches on Kind instead of probing response dictionaries.
type Outcome struct {
	Kind    OutcomeKind
	Payload map[string]any
	Detail  string
}

// Success builds a success outcome carrying the raw payload.
func Success(payload map[string]any) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

// RateLimited builds a rate-limited outcome with the service's detail.
func RateLimited(detail string) Outcome {
	return Outcome{Kind: OutcomeRateLimited, Detail: detail}
}

// Failed builds a failure outcome with the error detail.
func Failed(detail string) Outcome {
	return Outcome{Kind: OutcomeFailed, Detail: detail}
}
