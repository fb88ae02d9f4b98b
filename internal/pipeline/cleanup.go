package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/logger"
	"github.com/ekemper/leadGen-sub001/internal/queue"
)

// runCleanup executes a CLEANUP job for one campaign: cancel any jobs left in
// a non-terminal resting state and, when an outbound campaign exists, capture
// its analytics snapshot into the job result.
func (h *Handler) runCleanup(ctx context.Context, task queue.Task) error {
	if err := h.jobs.Transition(ctx, task.JobID, domain.JobStatusPending, domain.JobStatusProcessing, nil, nil); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			h.log.Warn("cleanup task dropped, job no longer pending",
				logger.String("jobId", task.JobID))
			return nil
		}
		return fmt.Errorf("start cleanup job %s: %w", task.JobID, err)
	}

	campaign, err := h.campaigns.GetByID(ctx, task.CampaignID)
	if err != nil {
		return h.failJob(ctx, task.JobID, fmt.Errorf("load campaign %s: %w", task.CampaignID, err))
	}

	jobs, err := h.jobs.ListByCampaign(ctx, campaign.ID, "")
	if err != nil {
		return h.failJob(ctx, task.JobID, fmt.Errorf("list campaign jobs: %w", err))
	}

	reason := "campaign cleanup"
	cancelled := 0
	for _, job := range jobs {
		if job.ID == task.JobID {
			continue
		}
		if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusPaused {
			continue
		}
		if err := h.jobs.Transition(ctx, job.ID, job.Status, domain.JobStatusCancelled, nil, &reason); err != nil {
			h.log.Error("failed to cancel orphaned job",
				logger.String("jobId", job.ID),
				logger.Error(err))
			continue
		}
		cancelled++
	}

	result := domain.JSONBMap{"jobs_cancelled": cancelled}
	if campaign.OutboundCampaignID != nil && *campaign.OutboundCampaignID != "" {
		overview, err := h.outbound.GetAnalyticsOverview(ctx, *campaign.OutboundCampaignID)
		if err != nil {
			h.log.Warn("analytics snapshot unavailable",
				logger.String("campaignId", campaign.ID),
				logger.Error(err))
		} else {
			result["analytics"] = overview
		}
	}

	if err := h.jobs.Transition(ctx, task.JobID, domain.JobStatusProcessing, domain.JobStatusCompleted,
		sanitizeResult(result), nil); err != nil {
		return fmt.Errorf("complete cleanup job %s: %w", task.JobID, err)
	}

	h.log.Info("campaign cleanup finished",
		logger.String("campaignId", campaign.ID),
		logger.Int("jobsCancelled", cancelled))
	return nil
}

// Sweeper periodically completes finished campaigns. A running campaign whose
// jobs have all reached a terminal state is moved to completed and gets a
// cleanup job; failed campaigns get a cleanup job once so their leftover
// pending work is cancelled.
type Sweeper struct {
	campaigns CampaignStore
	jobs      JobStore
	producer  TaskProducer
	log       logger.Logger
}

// NewSweeper creates a campaign completion sweeper.
func NewSweeper(campaigns CampaignStore, jobs JobStore, producer TaskProducer, log logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		campaigns: campaigns,
		jobs:      jobs,
		producer:  producer,
		log:       log,
	}
}

// RunOnce performs a single sweep. Per-campaign errors are logged and
// skipped; only listing failures abort the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	running, err := s.campaigns.ListByStatus(ctx, domain.CampaignStatusRunning)
	if err != nil {
		return fmt.Errorf("list running campaigns: %w", err)
	}

	for _, c := range running {
		active, err := s.jobs.CountActiveByCampaign(ctx, c.ID)
		if err != nil {
			s.log.Error("sweep: failed to count active jobs",
				logger.String("campaignId", c.ID),
				logger.Error(err))
			continue
		}
		if active > 0 {
			continue
		}

		all, err := s.jobs.ListByCampaign(ctx, c.ID, "")
		if err != nil {
			s.log.Error("sweep: failed to list jobs",
				logger.String("campaignId", c.ID),
				logger.Error(err))
			continue
		}
		if len(all) == 0 {
			// Fetch job not created yet; nothing has run.
			continue
		}

		message := "all jobs finished"
		if err := s.campaigns.Transition(ctx, c.ID, domain.CampaignStatusRunning, domain.CampaignStatusCompleted, &message, nil); err != nil {
			if !errors.Is(err, database.ErrStaleTransition) {
				s.log.Error("sweep: failed to complete campaign",
					logger.String("campaignId", c.ID),
					logger.Error(err))
			}
			continue
		}
		s.log.Info("campaign completed",
			logger.String("campaignId", c.ID))
		s.enqueueCleanup(ctx, c.ID)
	}

	failed, err := s.campaigns.ListByStatus(ctx, domain.CampaignStatusFailed)
	if err != nil {
		return fmt.Errorf("list failed campaigns: %w", err)
	}

	for _, c := range failed {
		swept, err := s.hasCleanupJob(ctx, c.ID)
		if err != nil {
			s.log.Error("sweep: failed to check cleanup state",
				logger.String("campaignId", c.ID),
				logger.Error(err))
			continue
		}
		if swept {
			continue
		}
		s.enqueueCleanup(ctx, c.ID)
	}

	return nil
}

func (s *Sweeper) hasCleanupJob(ctx context.Context, campaignID string) (bool, error) {
	jobs, err := s.jobs.ListByCampaign(ctx, campaignID, domain.JobTypeCleanup)
	if err != nil {
		return false, err
	}
	return len(jobs) > 0, nil
}

func (s *Sweeper) enqueueCleanup(ctx context.Context, campaignID string) {
	job := &domain.Job{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Type:       domain.JobTypeCleanup,
		Status:     domain.JobStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.log.Error("sweep: failed to create cleanup job",
			logger.String("campaignId", campaignID),
			logger.Error(err))
		return
	}

	taskID, err := s.producer.Enqueue(ctx, queue.Task{
		Type:       domain.JobTypeCleanup,
		JobID:      job.ID,
		CampaignID: campaignID,
	})
	if err != nil {
		s.log.Error("sweep: failed to enqueue cleanup task",
			logger.String("jobId", job.ID),
			logger.Error(err))
		return
	}
	if err := s.jobs.SetTaskID(ctx, job.ID, taskID); err != nil {
		s.log.Error("sweep: failed to record task handle",
			logger.String("jobId", job.ID),
			logger.Error(err))
	}
}
