package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/logger"
	"github.com/ekemper/leadGen-sub001/internal/queue"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// Completion summary keys written into an enrichment job's result.
const (
	summaryVerification = "email_verification"
	summaryEnrichment   = "enrichment"
	summaryEmailCopy    = "email_copy"
	summaryOutbound     = "outbound_created"
)

// stageVerdict classifies how one gated stage call ended.
type stageVerdict int

const (
	stageSucceeded stageVerdict = iota
	stageFailed
	stagePaused
)

// runEnrichment executes the four-stage pipeline for one lead. Stages run in
// order: email verification, profile enrichment, copy generation, outbound
// creation. Verification is advisory; the later stages gate on their
// prerequisites. A rate limit or open breaker anywhere pauses the job so it
// can be re-queued once the service recovers; everything already persisted
// stays persisted.
func (h *Handler) runEnrichment(ctx context.Context, task queue.Task) error {
	if err := h.jobs.Transition(ctx, task.JobID, domain.JobStatusPending, domain.JobStatusProcessing, nil, nil); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			h.log.Warn("enrichment task dropped, job no longer pending",
				logger.String("jobId", task.JobID))
			return nil
		}
		return fmt.Errorf("start enrichment job %s: %w", task.JobID, err)
	}

	lead, err := h.leads.GetByID(ctx, task.LeadID)
	if err != nil {
		return h.failJob(ctx, task.JobID, fmt.Errorf("load lead %s: %w", task.LeadID, err))
	}

	campaign, err := h.campaigns.GetByID(ctx, lead.CampaignID)
	if err != nil {
		return h.failJob(ctx, task.JobID, fmt.Errorf("load campaign %s: %w", lead.CampaignID, err))
	}

	summary := domain.JSONBMap{
		summaryVerification: false,
		summaryEnrichment:   false,
		summaryEmailCopy:    false,
		summaryOutbound:     false,
	}

	// Stage 1: email verification. The deliverability verdict is recorded but
	// never blocks the remaining stages.
	if lead.Email == "" {
		h.obs.RecordStageOutcome(services.MillionVerifier, "skipped")
		if err := h.persistStage(ctx, lead.ID, database.StageEmailVerification,
			skipResult("missing email address", nil)); err != nil {
			return h.failJob(ctx, task.JobID, err)
		}
	} else {
		_, verdict, err := h.runStage(ctx, task.JobID, lead.ID,
			database.StageEmailVerification, services.MillionVerifier,
			func(ctx context.Context) services.Outcome {
				return h.verifier.Verify(ctx, lead.Email)
			})
		if verdict == stagePaused || err != nil {
			return err
		}
		summary[summaryVerification] = verdict == stageSucceeded
	}

	// Stage 2: profile enrichment. Requires name, headline, and company; a
	// lead missing any of them fails fast without spending an API call.
	var enrichmentContent string
	if missing := missingProfileFields(lead); len(missing) > 0 {
		h.obs.RecordStageOutcome(services.Perplexity, "skipped")
		result := errorResult("missing required fields: " + strings.Join(missing, ", "))
		result["missing_fields"] = missing
		if err := h.persistStage(ctx, lead.ID, database.StageEnrichmentResults, result); err != nil {
			return h.failJob(ctx, task.JobID, err)
		}
	} else {
		payload, verdict, err := h.runStage(ctx, task.JobID, lead.ID,
			database.StageEnrichmentResults, services.Perplexity,
			func(ctx context.Context) services.Outcome {
				return h.enricher.Enrich(ctx, services.EnrichProfile{
					FirstName: lead.FirstName,
					LastName:  lead.LastName,
					Headline:  lead.Headline(),
					Company:   lead.Company,
				})
			})
		if verdict == stagePaused || err != nil {
			return err
		}
		if verdict == stageSucceeded {
			summary[summaryEnrichment] = true
			enrichmentContent, _ = payload["content"].(string)
		}
	}

	// Stage 3: email copy generation, gated on a successful enrichment. A
	// successful enrichment implies name and company are present, so the
	// required-field pre-check is subsumed by the gate.
	var copyContent string
	if summary[summaryEnrichment] != true {
		h.obs.RecordStageOutcome(services.OpenAI, "skipped")
		if err := h.persistStage(ctx, lead.ID, database.StageEmailCopyResult,
			skipResult("enrichment failed", nil)); err != nil {
			return h.failJob(ctx, task.JobID, err)
		}
	} else {
		payload, verdict, err := h.runStage(ctx, task.JobID, lead.ID,
			database.StageEmailCopyResult, services.OpenAI,
			func(ctx context.Context) services.Outcome {
				return h.copygen.GenerateCopy(ctx, services.CopyRequest{
					FirstName:         lead.FirstName,
					LastName:          lead.LastName,
					Company:           lead.Company,
					EnrichmentContent: enrichmentContent,
				})
			})
		if verdict == stagePaused || err != nil {
			return err
		}
		if verdict == stageSucceeded {
			summary[summaryEmailCopy] = true
			copyContent, _ = payload["content"].(string)
		}
	}

	// Stage 4: outbound lead creation, gated on email, first name, generated
	// copy, and a provisioned outbound campaign.
	var missing []string
	if lead.Email == "" {
		missing = append(missing, "email")
	}
	if lead.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if summary[summaryEmailCopy] != true {
		missing = append(missing, "email_copy_gen_results")
	}
	outboundRef := ""
	if campaign.OutboundCampaignID != nil {
		outboundRef = *campaign.OutboundCampaignID
	}
	if outboundRef == "" {
		missing = append(missing, "outbound_campaign_id")
	}

	if len(missing) > 0 {
		h.obs.RecordStageOutcome(services.Instantly, "skipped")
		if err := h.persistStage(ctx, lead.ID, database.StageOutboundLeadRecord,
			skipResult("missing prerequisites", missing)); err != nil {
			return h.failJob(ctx, task.JobID, err)
		}
	} else {
		_, verdict, err := h.runStage(ctx, task.JobID, lead.ID,
			database.StageOutboundLeadRecord, services.Instantly,
			func(ctx context.Context) services.Outcome {
				return h.outbound.CreateLead(ctx, outboundRef, lead.Email, lead.FirstName, copyContent)
			})
		if verdict == stagePaused || err != nil {
			return err
		}
		summary[summaryOutbound] = verdict == stageSucceeded
	}

	if err := h.jobs.Transition(ctx, task.JobID, domain.JobStatusProcessing, domain.JobStatusCompleted,
		sanitizeResult(summary), nil); err != nil {
		return fmt.Errorf("complete enrichment job %s: %w", task.JobID, err)
	}

	h.log.Info("enrichment pipeline finished",
		logger.String("jobId", task.JobID),
		logger.String("leadId", lead.ID),
		logger.String("campaignId", lead.CampaignID),
		logger.Bool("outboundCreated", summary[summaryOutbound] == true))
	return nil
}

// runStage performs one gated service call and persists its result under the
// given stage field. On stagePaused the job has already been moved to paused;
// a non-nil error means the job has been marked failed (or the pause itself
// failed) and the worker should record the task as errored.
func (h *Handler) runStage(ctx context.Context, jobID, leadID string, field database.StageField, service string, call func(context.Context) services.Outcome) (map[string]any, stageVerdict, error) {
	out, denied := h.callService(ctx, service, call)
	if denied != nil {
		return nil, stagePaused, h.pauseJob(ctx, jobID, denied.reason)
	}

	switch out.Kind {
	case services.OutcomeSuccess:
		if err := h.persistStage(ctx, leadID, field, successResult(out.Payload)); err != nil {
			return nil, stageFailed, h.failJob(ctx, jobID, err)
		}
		return out.Payload, stageSucceeded, nil

	case services.OutcomeRateLimited:
		if err := h.persistStage(ctx, leadID, field, errorResult(out.Detail)); err != nil {
			return nil, stageFailed, h.failJob(ctx, jobID, err)
		}
		// The pause reason must name the limiting service, not just echo the
		// provider's detail string.
		return nil, stagePaused, h.pauseJob(ctx, jobID, fmt.Sprintf("rate limited by %s: %s", service, out.Detail))

	default:
		if err := h.persistStage(ctx, leadID, field, errorResult(out.Detail)); err != nil {
			return nil, stageFailed, h.failJob(ctx, jobID, err)
		}
		return nil, stageFailed, nil
	}
}

// missingProfileFields returns the names of required profile fields the lead
// does not carry, in a stable order.
func missingProfileFields(lead *domain.Lead) []string {
	var missing []string
	if strings.TrimSpace(lead.FirstName) == "" {
		missing = append(missing, "first_name")
	}
	if strings.TrimSpace(lead.LastName) == "" {
		missing = append(missing, "last_name")
	}
	if strings.TrimSpace(lead.Headline()) == "" {
		missing = append(missing, "headline")
	}
	if strings.TrimSpace(lead.Company) == "" {
		missing = append(missing, "company_name")
	}
	return missing
}

// persistStage writes one stage result onto the lead row.
func (h *Handler) persistStage(ctx context.Context, leadID string, field database.StageField, result domain.JSONBMap) error {
	if err := h.leads.SetStageResult(ctx, leadID, field, sanitizeResult(result)); err != nil {
		return fmt.Errorf("persist %s result for lead %s: %w", field, leadID, err)
	}
	return nil
}

// pauseJob moves a processing job to paused with the blocking reason. Paused
// jobs are re-queued by campaign resume once the blocking service recovers.
func (h *Handler) pauseJob(ctx context.Context, jobID, reason string) error {
	h.log.Info("pausing job",
		logger.String("jobId", jobID),
		logger.String("reason", reason))
	if err := h.jobs.Transition(ctx, jobID, domain.JobStatusProcessing, domain.JobStatusPaused, nil, &reason); err != nil {
		return fmt.Errorf("pause job %s: %w", jobID, err)
	}
	return nil
}

// failJob marks a processing job failed with the causing error and returns
// that error so the worker records the task as failed too.
func (h *Handler) failJob(ctx context.Context, jobID string, cause error) error {
	msg := cause.Error()
	if err := h.jobs.Transition(ctx, jobID, domain.JobStatusProcessing, domain.JobStatusFailed, nil, &msg); err != nil {
		h.log.Error("failed to mark job failed",
			logger.String("jobId", jobID),
			logger.Error(err))
	}
	return cause
}
