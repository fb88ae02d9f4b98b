package campaign

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/logger"
)

// CreateParams holds the inputs for a new campaign.
type CreateParams struct {
	Name         string `json:"name"`
	SourceURL    string `json:"source_url"`
	TotalRecords int    `json:"total_records"`
}

// Create validates inputs and persists a new campaign in the CREATED state.
// No work runs until the campaign is explicitly started.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Campaign, error) {
	var reasons []string
	if strings.TrimSpace(params.Name) == "" {
		reasons = append(reasons, "campaign name is required")
	}
	reasons = append(reasons, s.validateSourceURL(params.SourceURL)...)
	if params.TotalRecords <= 0 || params.TotalRecords > s.maxRecords {
		reasons = append(reasons, fmt.Sprintf(
			"record count must be between 1 and %d, got %d", s.maxRecords, params.TotalRecords,
		))
	}
	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	c := &domain.Campaign{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(params.Name),
		Status:       domain.CampaignStatusCreated,
		SourceURL:    params.SourceURL,
		TotalRecords: params.TotalRecords,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	s.log.Info("campaign created",
		logger.String("campaignId", c.ID),
		logger.String("name", c.Name),
		logger.Int("totalRecords", c.TotalRecords))
	return c, nil
}

// Get returns one campaign by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// List returns campaigns newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*domain.Campaign, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.campaigns.List(ctx, limit, offset)
}
