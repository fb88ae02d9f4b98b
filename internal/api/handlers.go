// Package api exposes the orchestrator's HTTP surface: campaign operations,
// health and status probes, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ekemper/leadGen-sub001/internal/breaker"
	"github.com/ekemper/leadGen-sub001/internal/campaign"
	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/logger"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// CampaignService is the campaign lifecycle contract the handlers call.
type CampaignService interface {
	Create(ctx context.Context, params campaign.CreateParams) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Campaign, error)
	Start(ctx context.Context, id string) error
	Pause(ctx context.Context, id, reason string) error
	Resume(ctx context.Context, id string) error
}

// JobLister lists a campaign's jobs.
type JobLister interface {
	ListByCampaign(ctx context.Context, campaignID string, jobType domain.JobType) ([]*domain.Job, error)
}

// LeadLister lists a campaign's leads.
type LeadLister interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]*domain.Lead, error)
}

// LimiterStatus reports remaining rate limit budget per service.
type LimiterStatus interface {
	Remaining(ctx context.Context, service string) int
	MaxRequests(service string) int
}

// BreakerStatus reports breaker state per service.
type BreakerStatus interface {
	StatsSnapshot(ctx context.Context) map[string]breaker.Stats
}

// Handler handles HTTP requests for the orchestrator API.
type Handler struct {
	campaigns CampaignService
	jobs      JobLister
	leads     LeadLister
	limiter   LimiterStatus
	breakers  BreakerStatus
	log       logger.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	campaigns CampaignService,
	jobs JobLister,
	leads LeadLister,
	limiter LimiterStatus,
	breakers BreakerStatus,
	log logger.Logger,
) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		campaigns: campaigns,
		jobs:      jobs,
		leads:     leads,
		limiter:   limiter,
		breakers:  breakers,
		log:       log,
	}
}

// CreateCampaign handles POST /api/v1/campaigns.
func (h *Handler) CreateCampaign(c *gin.Context) {
	var params campaign.CreateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.campaigns.Create(c.Request.Context(), params)
	if err != nil {
		h.renderCampaignError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// ListCampaigns handles GET /api/v1/campaigns.
func (h *Handler) ListCampaigns(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	campaigns, err := h.campaigns.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error("failed to list campaigns", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list campaigns"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaigns": campaigns,
		"count":     len(campaigns),
	})
}

// GetCampaign handles GET /api/v1/campaigns/:id.
func (h *Handler) GetCampaign(c *gin.Context) {
	found, err := h.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// ListCampaignJobs handles GET /api/v1/campaigns/:id/jobs.
func (h *Handler) ListCampaignJobs(c *gin.Context) {
	jobs, err := h.jobs.ListByCampaign(c.Request.Context(), c.Param("id"), domain.JobType(c.Query("type")))
	if err != nil {
		h.log.Error("failed to list jobs", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// ListCampaignLeads handles GET /api/v1/campaigns/:id/leads.
func (h *Handler) ListCampaignLeads(c *gin.Context) {
	leads, err := h.leads.ListByCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Error("failed to list leads", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list leads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads, "count": len(leads)})
}

// StartCampaign handles POST /api/v1/campaigns/:id/start.
func (h *Handler) StartCampaign(c *gin.Context) {
	id := c.Param("id")
	if err := h.campaigns.Start(c.Request.Context(), id); err != nil {
		h.renderCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.CampaignStatusRunning)})
}

// PauseRequest carries the optional operator-supplied pause reason.
type PauseRequest struct {
	Reason string `json:"reason"`
}

// PauseCampaign handles POST /api/v1/campaigns/:id/pause.
func (h *Handler) PauseCampaign(c *gin.Context) {
	var req PauseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "paused by operator"
	}

	if err := h.campaigns.Pause(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		h.renderCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.CampaignStatusPaused)})
}

// ResumeCampaign handles POST /api/v1/campaigns/:id/resume.
func (h *Handler) ResumeCampaign(c *gin.Context) {
	if err := h.campaigns.Resume(c.Request.Context(), c.Param("id")); err != nil {
		h.renderCampaignError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.CampaignStatusRunning)})
}

// BreakerStatusHandler handles GET /status/breakers.
func (h *Handler) BreakerStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": h.breakers.StatsSnapshot(c.Request.Context())})
}

// RateLimitStatusHandler handles GET /status/ratelimits.
func (h *Handler) RateLimitStatusHandler(c *gin.Context) {
	ctx := c.Request.Context()
	out := make(map[string]gin.H, len(services.Required()))
	for _, service := range services.Required() {
		out[service] = gin.H{
			"remaining":    h.limiter.Remaining(ctx, service),
			"max_requests": h.limiter.MaxRequests(service),
		}
	}
	c.JSON(http.StatusOK, gin.H{"ratelimits": out})
}

// renderCampaignError maps campaign service errors onto HTTP statuses.
func (h *Handler) renderCampaignError(c *gin.Context, err error) {
	var (
		validationErr  *campaign.ValidationError
		criticalErr    *campaign.CriticalServiceError
		unavailableErr *campaign.ServicesUnavailableError
		stateErr       *campaign.InvalidStateError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"reasons": validationErr.Reasons,
		})
	case errors.As(err, &criticalErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   err.Error(),
			"service": criticalErr.Service,
		})
	case errors.As(err, &unavailableErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    err.Error(),
			"services": unavailableErr.Services,
		})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrStaleTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
	default:
		h.log.Error("campaign operation failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
