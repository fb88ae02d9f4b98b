package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekemper/leadGen-sub001/internal/breaker"
	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/logger"
	"github.com/ekemper/leadGen-sub001/internal/queue"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// runFetch executes a FETCH_LEADS job: pull candidate leads from the lead
// source, persist them, and fan out one enrichment job per lead. The lead
// source is critical, so an unrecoverable fetch error fails the whole
// campaign, while a rate limit or open breaker only pauses the job.
func (h *Handler) runFetch(ctx context.Context, task queue.Task) error {
	if err := h.jobs.Transition(ctx, task.JobID, domain.JobStatusPending, domain.JobStatusProcessing, nil, nil); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			h.log.Warn("fetch task dropped, job no longer pending",
				logger.String("jobId", task.JobID))
			return nil
		}
		return fmt.Errorf("start fetch job %s: %w", task.JobID, err)
	}

	campaign, err := h.campaigns.GetByID(ctx, task.CampaignID)
	if err != nil {
		return h.failJob(ctx, task.JobID, fmt.Errorf("load campaign %s: %w", task.CampaignID, err))
	}

	if campaign.Status != domain.CampaignStatusRunning {
		h.log.Warn("fetch task for non-running campaign, cancelling",
			logger.String("campaignId", campaign.ID),
			logger.String("status", string(campaign.Status)))
		reason := fmt.Sprintf("campaign is %s", campaign.Status)
		return h.jobs.Transition(ctx, task.JobID, domain.JobStatusProcessing, domain.JobStatusCancelled, nil, &reason)
	}

	if !h.limiter.Acquire(ctx, services.Apollo) {
		h.obs.RecordLimiterDenial(services.Apollo)
		h.obs.RecordJobPaused(services.Apollo)
		return h.pauseJob(ctx, task.JobID, "rate limit exceeded for "+services.Apollo)
	}
	if allowed, reason := h.breakers.ShouldAllowRequest(ctx, services.Apollo); !allowed {
		h.obs.RecordJobPaused(services.Apollo)
		return h.pauseJob(ctx, task.JobID, reason)
	}

	result, err := h.source.FetchLeads(ctx, services.FetchParams{
		SourceURL: campaign.SourceURL,
		Count:     campaign.TotalRecords,
	})
	if err != nil {
		h.breakers.RecordFailure(ctx, services.Apollo, err.Error(), breaker.KindException)
		h.obs.RecordStageOutcome(services.Apollo, string(services.OutcomeFailed))
		h.failCampaign(ctx, campaign, "lead fetch failed", err)
		return h.failJob(ctx, task.JobID, fmt.Errorf("fetch leads: %w", err))
	}
	h.breakers.RecordSuccess(ctx, services.Apollo)
	h.obs.RecordStageOutcome(services.Apollo, string(services.OutcomeSuccess))

	// Per-lead fan-out. One lead failing to persist or enqueue must not sink
	// the rest of the batch.
	created := 0
	for _, record := range result.Leads {
		lead := leadFromRecord(campaign.ID, record)
		if err := h.leads.Create(ctx, lead); err != nil {
			h.log.Error("failed to persist lead",
				logger.String("campaignId", campaign.ID),
				logger.Error(err))
			continue
		}

		job := &domain.Job{
			ID:         uuid.NewString(),
			CampaignID: campaign.ID,
			Type:       domain.JobTypeEnrichLead,
			Status:     domain.JobStatusPending,
		}
		if err := h.jobs.Create(ctx, job); err != nil {
			h.log.Error("failed to create enrichment job",
				logger.String("leadId", lead.ID),
				logger.Error(err))
			continue
		}
		if err := h.leads.SetEnrichmentJobID(ctx, lead.ID, job.ID); err != nil {
			h.log.Error("failed to link enrichment job to lead",
				logger.String("leadId", lead.ID),
				logger.String("jobId", job.ID),
				logger.Error(err))
			continue
		}

		taskID, err := h.producer.Enqueue(ctx, queue.Task{
			Type:       domain.JobTypeEnrichLead,
			JobID:      job.ID,
			CampaignID: campaign.ID,
			LeadID:     lead.ID,
		})
		if err != nil {
			h.log.Error("failed to enqueue enrichment task",
				logger.String("jobId", job.ID),
				logger.Error(err))
			continue
		}
		if err := h.jobs.SetTaskID(ctx, job.ID, taskID); err != nil {
			h.log.Error("failed to record task handle",
				logger.String("jobId", job.ID),
				logger.Error(err))
		}
		created++
	}

	// The fetched count is recorded on the job, never on the campaign:
	// total_records stays the operator's requested count so a restart
	// re-validates against the original input.
	summary := domain.JSONBMap{
		"leads_fetched":       len(result.Leads),
		"enrich_jobs_created": created,
	}
	if err := h.jobs.Transition(ctx, task.JobID, domain.JobStatusProcessing, domain.JobStatusCompleted, summary, nil); err != nil {
		return fmt.Errorf("complete fetch job %s: %w", task.JobID, err)
	}

	h.log.Info("lead fetch finished",
		logger.String("campaignId", campaign.ID),
		logger.Int("leadsFetched", len(result.Leads)),
		logger.Int("enrichJobsCreated", created))
	return nil
}

// failCampaign moves a running campaign to failed, logging rather than
// propagating transition errors since the job failure is the primary outcome.
func (h *Handler) failCampaign(ctx context.Context, campaign *domain.Campaign, message string, cause error) {
	detail := cause.Error()
	if err := h.campaigns.Transition(ctx, campaign.ID, domain.CampaignStatusRunning, domain.CampaignStatusFailed, &message, &detail); err != nil {
		h.log.Error("failed to mark campaign failed",
			logger.String("campaignId", campaign.ID),
			logger.Error(err))
	}
}

// leadFromRecord maps one raw lead-source record onto a lead row. Field names
// follow the lead source's people schema with a fallback for flattened
// exports; the full record is retained in raw_data.
func leadFromRecord(campaignID string, record map[string]any) *domain.Lead {
	company := recordString(record, "organization_name")
	if company == "" {
		if org, ok := record["organization"].(map[string]any); ok {
			company = recordString(org, "name")
		}
	}
	if company == "" {
		company = recordString(record, "company")
	}

	return &domain.Lead{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Email:      recordString(record, "email"),
		FirstName:  recordString(record, "first_name"),
		LastName:   recordString(record, "last_name"),
		Company:    company,
		Title:      recordString(record, "title"),
		RawData:    domain.JSONBMap(record),
	}
}

func recordString(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return s
}
