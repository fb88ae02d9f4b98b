package pipeline

import (
	"context"
	"encoding/json"

	"github.com/ekemper/leadGen-sub001/internal/breaker"
	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// gateDenied describes a call that never went out because a gate blocked it.
// A denied call is recoverable: the enclosing job pauses instead of failing.
type gateDenied struct {
	service string
	reason  string
}

// callService runs one third-party call behind the rate limiter and circuit
// breaker. The limiter is consulted first, then the breaker. Every completed
// call is reported back to the breaker with its outcome kind.
func (h *Handler) callService(ctx context.Context, service string, call func(context.Context) services.Outcome) (services.Outcome, *gateDenied) {
	if !h.limiter.Acquire(ctx, service) {
		h.obs.RecordLimiterDenial(service)
		h.obs.RecordJobPaused(service)
		return services.Outcome{}, &gateDenied{
			service: service,
			reason:  "rate limit exceeded for " + service,
		}
	}

	allowed, reason := h.breakers.ShouldAllowRequest(ctx, service)
	if !allowed {
		h.obs.RecordJobPaused(service)
		return services.Outcome{}, &gateDenied{service: service, reason: reason}
	}

	out := call(ctx)
	h.obs.RecordStageOutcome(service, string(out.Kind))
	switch out.Kind {
	case services.OutcomeSuccess:
		h.breakers.RecordSuccess(ctx, service)
	case services.OutcomeRateLimited:
		h.breakers.RecordFailure(ctx, service, out.Detail, breaker.KindRateLimit)
	default:
		h.breakers.RecordFailure(ctx, service, out.Detail, breaker.KindException)
	}

	return out, nil
}

// successResult builds a stage result from a successful call's raw payload.
func successResult(payload map[string]any) domain.JSONBMap {
	result := domain.JSONBMap{domain.StageKeyStatus: domain.StageStatusSuccess}
	for k, v := range payload {
		if k == domain.StageKeyStatus {
			continue
		}
		result[k] = v
	}
	return result
}

// errorResult builds a stage result recording a failed call.
func errorResult(detail string) domain.JSONBMap {
	return domain.JSONBMap{domain.StageKeyError: detail}
}

// skipResult builds a stage result recording that the stage was not attempted.
func skipResult(reason string, missing []string) domain.JSONBMap {
	result := domain.JSONBMap{
		domain.StageKeySkipped: true,
		domain.StageKeyReason:  reason,
	}
	if len(missing) > 0 {
		result["missing"] = missing
	}
	return result
}

// sanitizeResult guards persistence against payloads JSON cannot represent.
// Third-party responses are duck-typed; a payload that fails to serialize is
// replaced with a minimal error record so the row write always succeeds.
func sanitizeResult(result domain.JSONBMap) domain.JSONBMap {
	if result == nil {
		return domain.JSONBMap{}
	}
	if _, err := json.Marshal(result); err != nil {
		return domain.JSONBMap{
			domain.StageKeyError: "result could not be serialized: " + err.Error(),
		}
	}
	return result
}
