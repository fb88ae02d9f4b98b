package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/logger"
	"github.com/ekemper/leadGen-sub001/internal/queue"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// CampaignStore is the persistence contract the service depends on.
// Campaign status is mutated only through Transition, never by direct field
// assignment.
type CampaignStore interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Campaign, error)
	ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error)
	Transition(ctx context.Context, id string, from, to domain.CampaignStatus, message, statusError *string) error
	SetOutboundCampaignID(ctx context.Context, id, outboundID string) error
}

// JobStore is the job persistence contract the service depends on.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	SetTaskID(ctx context.Context, id, taskID string) error
	ListResumableByCampaign(ctx context.Context, campaignID string) ([]*domain.Job, error)
	Transition(ctx context.Context, id string, from, to domain.JobStatus, result domain.JSONBMap, errMsg *string) error
}

// LeadStore resolves leads from their enrichment jobs during resume.
type LeadStore interface {
	GetByEnrichmentJobID(ctx context.Context, jobID string) (*domain.Lead, error)
}

// BreakerChecker probes service health without starting half-open trials.
type BreakerChecker interface {
	IsOpen(ctx context.Context, service string) bool
}

// TaskProducer enqueues asynchronous tasks.
type TaskProducer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

// OutboundPlatform creates the outbound campaign counterpart.
type OutboundPlatform interface {
	CreateCampaign(ctx context.Context, name string) (string, error)
}

// Service governs campaign lifecycle transitions and their interaction with
// global service health.
type Service struct {
	campaigns CampaignStore
	jobs      JobStore
	leads     LeadStore
	breakers  BreakerChecker
	producer  TaskProducer
	outbound  OutboundPlatform
	log       logger.Logger

	maxRecords   int
	allowedHosts []string
}

// Config holds campaign service settings.
type Config struct {
	MaxRecords         int
	AllowedSourceHosts []string
}

// NewService creates the campaign service.
func NewService(
	campaigns CampaignStore,
	jobs JobStore,
	leads LeadStore,
	breakers BreakerChecker,
	producer TaskProducer,
	outbound OutboundPlatform,
	cfg Config,
	log logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	maxRecords := cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &Service{
		campaigns:    campaigns,
		jobs:         jobs,
		leads:        leads,
		breakers:     breakers,
		producer:     producer,
		outbound:     outbound,
		log:          log,
		maxRecords:   maxRecords,
		allowedHosts: cfg.AllowedSourceHosts,
	}
}

// Start validates prerequisites and moves a CREATED campaign to RUNNING,
// creating and enqueueing its FETCH_LEADS job. Gating failures are returned
// synchronously; nothing is mutated unless validation passes.
func (s *Service) Start(ctx context.Context, campaignID string) error {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	if !c.CanStart() {
		return &InvalidStateError{Operation: "start", Status: string(c.Status)}
	}

	report := s.ValidateStartPrerequisites(ctx, c)
	if !report.Valid {
		return &ValidationError{Reasons: report.Errors}
	}
	if report.CriticalOpen {
		return &CriticalServiceError{Service: services.Critical}
	}
	if len(report.OpenServices) > 0 {
		return &ServicesUnavailableError{Services: report.OpenServices}
	}

	if c.OutboundCampaignID == nil {
		outboundID, createErr := s.outbound.CreateCampaign(ctx, c.Name)
		if createErr != nil {
			return fmt.Errorf("create outbound campaign: %w", createErr)
		}
		if err = s.campaigns.SetOutboundCampaignID(ctx, c.ID, outboundID); err != nil {
			return err
		}
	}

	message := "campaign started"
	if err = s.campaigns.Transition(ctx, c.ID, domain.CampaignStatusCreated, domain.CampaignStatusRunning, &message, nil); err != nil {
		return err
	}

	job := &domain.Job{
		ID:         uuid.NewString(),
		CampaignID: c.ID,
		Type:       domain.JobTypeFetchLeads,
		Status:     domain.JobStatusPending,
	}
	if err = s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create fetch job: %w", err)
	}

	taskID, err := s.producer.Enqueue(ctx, queue.Task{
		Type:       domain.JobTypeFetchLeads,
		JobID:      job.ID,
		CampaignID: c.ID,
	})
	if err != nil {
		// The campaign is RUNNING with a job that will never execute; fail
		// it so the state is not silently wedged.
		detail := fmt.Sprintf("enqueue fetch task: %v", err)
		if tErr := s.campaigns.Transition(ctx, c.ID, domain.CampaignStatusRunning, domain.CampaignStatusFailed, nil, &detail); tErr != nil {
			s.log.Error("failed to mark campaign failed after enqueue error",
				logger.String("campaign_id", c.ID),
				logger.Error(tErr),
			)
		}
		return fmt.Errorf("enqueue fetch task: %w", err)
	}

	if err = s.jobs.SetTaskID(ctx, job.ID, taskID); err != nil {
		s.log.Warn("failed to record task id on fetch job",
			logger.String("job_id", job.ID),
			logger.Error(err),
		)
	}

	s.log.Info("campaign started",
		logger.String("campaign_id", c.ID),
		logger.String("fetch_job_id", job.ID),
	)
	return nil
}

// Pause moves a RUNNING campaign to PAUSED with a human-readable reason.
// Calling it from any other status is an error, not a state change.
func (s *Service) Pause(ctx context.Context, campaignID, reason string) error {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	if !c.CanPause() {
		return &InvalidStateError{Operation: "pause", Status: string(c.Status)}
	}

	if err = s.campaigns.Transition(ctx, c.ID, domain.CampaignStatusRunning, domain.CampaignStatusPaused, &reason, nil); err != nil {
		return err
	}

	s.log.Info("campaign paused",
		logger.String("campaign_id", c.ID),
		logger.String("reason", reason),
	)
	return nil
}

// Resume moves a PAUSED campaign back to RUNNING after re-checking that no
// required service's breaker is open. An open breaker rejects the resume;
// it is not silently deferred. Paused jobs are re-queued.
func (s *Service) Resume(ctx context.Context, campaignID string) error {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	if !c.CanResume() {
		return &InvalidStateError{Operation: "resume", Status: string(c.Status)}
	}

	var open []string
	critical := false
	for _, service := range services.Required() {
		if s.breakers.IsOpen(ctx, service) {
			open = append(open, service)
			if service == services.Critical {
				critical = true
			}
		}
	}
	if critical {
		return &CriticalServiceError{Service: services.Critical}
	}
	if len(open) > 0 {
		return &ServicesUnavailableError{Services: open}
	}

	message := "campaign resumed"
	if err = s.campaigns.Transition(ctx, c.ID, domain.CampaignStatusPaused, domain.CampaignStatusRunning, &message, nil); err != nil {
		return err
	}

	if err = s.requeuePausedJobs(ctx, c.ID); err != nil {
		s.log.Error("failed to requeue paused jobs",
			logger.String("campaign_id", c.ID),
			logger.Error(err),
		)
	}

	s.log.Info("campaign resumed", logger.String("campaign_id", c.ID))
	return nil
}

// requeuePausedJobs re-queues every paused job of the campaign.
func (s *Service) requeuePausedJobs(ctx context.Context, campaignID string) error {
	jobs, err := s.jobs.ListResumableByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err = s.jobs.Transition(ctx, job.ID, domain.JobStatusPaused, domain.JobStatusPending, nil, nil); err != nil {
			s.log.Warn("failed to reset paused job",
				logger.String("job_id", job.ID),
				logger.Error(err),
			)
			continue
		}

		task := queue.Task{
			Type:       job.Type,
			JobID:      job.ID,
			CampaignID: job.CampaignID,
		}
		if job.Type == domain.JobTypeEnrichLead {
			lead, leadErr := s.leads.GetByEnrichmentJobID(ctx, job.ID)
			if leadErr != nil {
				s.log.Warn("no lead found for paused enrichment job",
					logger.String("job_id", job.ID),
					logger.Error(leadErr),
				)
				continue
			}
			task.LeadID = lead.ID
		}

		taskID, enqErr := s.producer.Enqueue(ctx, task)
		if enqErr != nil {
			s.log.Warn("failed to requeue job",
				logger.String("job_id", job.ID),
				logger.Error(enqErr),
			)
			continue
		}
		if err = s.jobs.SetTaskID(ctx, job.ID, taskID); err != nil {
			s.log.Warn("failed to record task id",
				logger.String("job_id", job.ID),
				logger.Error(err),
			)
		}
	}

	return nil
}

// PauseAllRunning proactively pauses every RUNNING campaign in response to a
// service breaker opening. The pause is transactional per campaign: one
// campaign's failure never blocks the others. Returns the number of
// campaigns paused.
func (s *Service) PauseAllRunning(ctx context.Context, service, reason string) int {
	running, err := s.campaigns.ListByStatus(ctx, domain.CampaignStatusRunning)
	if err != nil {
		s.log.Error("failed to list running campaigns for cascade pause",
			logger.String("service", service),
			logger.Error(err),
		)
		return 0
	}

	message := fmt.Sprintf("paused: %s circuit breaker opened (%s)", service, reason)

	paused := 0
	for _, c := range running {
		if err = s.campaigns.Transition(ctx, c.ID, domain.CampaignStatusRunning, domain.CampaignStatusPaused, &message, nil); err != nil {
			s.log.Error("cascade pause failed for campaign",
				logger.String("campaign_id", c.ID),
				logger.String("service", service),
				logger.Error(err),
			)
			continue
		}
		paused++
	}

	if paused > 0 {
		s.log.Warn("cascade paused running campaigns",
			logger.String("service", service),
			logger.Int("count", paused),
		)
	}
	return paused
}
