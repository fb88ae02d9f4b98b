// Package pipeline implements the per-lead enrichment pipeline and the
// campaign-level fetch and cleanup tasks that surround it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ekemper/leadGen-sub001/internal/breaker"
	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/logger"
	"github.com/ekemper/leadGen-sub001/internal/queue"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// Limiter gates outbound calls per service.
type Limiter interface {
	Acquire(ctx context.Context, service string) bool
}

// Breakers is the breaker contract the pipeline consults before and reports
// to after every third-party call.
type Breakers interface {
	ShouldAllowRequest(ctx context.Context, service string) (allowed bool, reason string)
	RecordSuccess(ctx context.Context, service string)
	RecordFailure(ctx context.Context, service, detail string, kind breaker.FailureKind)
}

// LeadSource fetches candidate leads for a campaign.
type LeadSource interface {
	FetchLeads(ctx context.Context, params services.FetchParams) (*services.FetchResult, error)
}

// Verifier checks email deliverability.
type Verifier interface {
	Verify(ctx context.Context, email string) services.Outcome
}

// EnrichmentAPI researches a lead's background.
type EnrichmentAPI interface {
	Enrich(ctx context.Context, profile services.EnrichProfile) services.Outcome
}

// CopyGenerator writes personalized outreach copy.
type CopyGenerator interface {
	GenerateCopy(ctx context.Context, req services.CopyRequest) services.Outcome
}

// OutboundPlatform registers leads on the outbound campaign.
type OutboundPlatform interface {
	CreateLead(ctx context.Context, campaignRef, email, firstName, personalization string) services.Outcome
	GetAnalyticsOverview(ctx context.Context, campaignRef string) (map[string]any, error)
}

// CampaignStore is the campaign persistence contract.
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error)
	Transition(ctx context.Context, id string, from, to domain.CampaignStatus, message, statusError *string) error
}

// JobStore is the job persistence contract.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	ListByCampaign(ctx context.Context, campaignID string, jobType domain.JobType) ([]*domain.Job, error)
	CountActiveByCampaign(ctx context.Context, campaignID string) (int, error)
	Transition(ctx context.Context, id string, from, to domain.JobStatus, result domain.JSONBMap, errMsg *string) error
	SetTaskID(ctx context.Context, id, taskID string) error
}

// LeadStore is the lead persistence contract.
type LeadStore interface {
	Create(ctx context.Context, lead *domain.Lead) error
	GetByID(ctx context.Context, id string) (*domain.Lead, error)
	SetStageResult(ctx context.Context, id string, field database.StageField, payload domain.JSONBMap) error
	SetEnrichmentJobID(ctx context.Context, id, jobID string) error
}

// TaskProducer enqueues follow-up tasks.
type TaskProducer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

// Observer receives pipeline events for metrics export.
type Observer interface {
	RecordTask(taskType, result string, duration time.Duration)
	RecordStageOutcome(service, outcome string)
	RecordLimiterDenial(service string)
	RecordJobPaused(service string)
}

type nopObserver struct{}

func (nopObserver) RecordTask(string, string, time.Duration) {}
func (nopObserver) RecordStageOutcome(string, string)        {}
func (nopObserver) RecordLimiterDenial(string)               {}
func (nopObserver) RecordJobPaused(string)                   {}

// Handler dispatches consumed tasks to their pipeline implementations.
// It satisfies the worker pool's Handler interface.
type Handler struct {
	campaigns CampaignStore
	jobs      JobStore
	leads     LeadStore
	limiter   Limiter
	breakers  Breakers
	producer  TaskProducer

	source   LeadSource
	verifier Verifier
	enricher EnrichmentAPI
	copygen  CopyGenerator
	outbound OutboundPlatform

	obs Observer
	log logger.Logger
}

// HandlerDeps bundles the handler's collaborators.
type HandlerDeps struct {
	Campaigns CampaignStore
	Jobs      JobStore
	Leads     LeadStore
	Limiter   Limiter
	Breakers  Breakers
	Producer  TaskProducer

	Source   LeadSource
	Verifier Verifier
	Enricher EnrichmentAPI
	CopyGen  CopyGenerator
	Outbound OutboundPlatform

	Observer Observer
	Logger   logger.Logger
}

// NewHandler creates the task handler.
func NewHandler(deps HandlerDeps) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	obs := deps.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Handler{
		campaigns: deps.Campaigns,
		jobs:      deps.Jobs,
		leads:     deps.Leads,
		limiter:   deps.Limiter,
		breakers:  deps.Breakers,
		producer:  deps.Producer,
		source:    deps.Source,
		verifier:  deps.Verifier,
		enricher:  deps.Enricher,
		copygen:   deps.CopyGen,
		outbound:  deps.Outbound,
		obs:       obs,
		log:       log,
	}
}

// Handle executes one consumed task.
func (h *Handler) Handle(ctx context.Context, task *queue.ConsumedTask) error {
	start := time.Now()

	var err error
	switch task.Task.Type {
	case domain.JobTypeFetchLeads:
		err = h.runFetch(ctx, task.Task)
	case domain.JobTypeEnrichLead:
		err = h.runEnrichment(ctx, task.Task)
	case domain.JobTypeCleanup:
		err = h.runCleanup(ctx, task.Task)
	default:
		err = fmt.Errorf("unknown task type: %s", task.Task.Type)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	h.obs.RecordTask(string(task.Task.Type), result, time.Since(start))
	return err
}
