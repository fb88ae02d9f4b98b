package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ekemper/leadGen-sub001/internal/domain"
)

const leadColumns = `
	id, campaign_id, email, first_name, last_name, company, title, raw_data,
	email_verification, enrichment_results, email_copy_result,
	outbound_lead_record, enrichment_job_id, created_at, updated_at
`

// StageField identifies one of the four per-lead stage result columns.
type StageField string

const (
	StageEmailVerification  StageField = "email_verification"
	StageEnrichmentResults  StageField = "enrichment_results"
	StageEmailCopyResult    StageField = "email_copy_result"
	StageOutboundLeadRecord StageField = "outbound_lead_record"
)

// stageFields whitelists the columns SetStageResult may touch.
var stageFields = map[StageField]struct{}{
	StageEmailVerification:  {},
	StageEnrichmentResults:  {},
	StageEmailCopyResult:    {},
	StageOutboundLeadRecord: {},
}

// LeadRepository handles database operations for leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create inserts a new lead.
func (r *LeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	query := `
		INSERT INTO leads (id, campaign_id, email, first_name, last_name, company, title, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		lead.ID, lead.CampaignID, lead.Email, lead.FirstName,
		lead.LastName, lead.Company, lead.Title, lead.RawData,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}

	return nil
}

// GetByID retrieves a lead by its ID.
func (r *LeadRepository) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	var lead domain.Lead
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	err := r.db.GetContext(ctx, &lead, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return &lead, nil
}

// GetByEnrichmentJobID retrieves the lead driven by the given ENRICH_LEAD job.
func (r *LeadRepository) GetByEnrichmentJobID(ctx context.Context, jobID string) (*domain.Lead, error) {
	var lead domain.Lead
	query := `SELECT ` + leadColumns + ` FROM leads WHERE enrichment_job_id = $1`

	err := r.db.GetContext(ctx, &lead, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lead for job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get lead by job: %w", err)
	}

	return &lead, nil
}

// ListByCampaign retrieves all leads for a campaign.
func (r *LeadRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*domain.Lead, error) {
	var leads []*domain.Lead
	query := `SELECT ` + leadColumns + ` FROM leads WHERE campaign_id = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &leads, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	if leads == nil {
		leads = []*domain.Lead{}
	}
	return leads, nil
}

// SetStageResult persists the raw result of one pipeline stage on the lead.
// Stage results are written as each stage finishes so partial progress
// survives a worker crash.
func (r *LeadRepository) SetStageResult(ctx context.Context, id string, field StageField, payload domain.JSONBMap) error {
	if _, ok := stageFields[field]; !ok {
		return fmt.Errorf("unknown stage field: %s", field)
	}

	query := fmt.Sprintf(`UPDATE leads SET %s = $1, updated_at = NOW() WHERE id = $2`, field)

	result, err := r.db.ExecContext(ctx, query, payload, id)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", field, err)
	}
	return expectOneRow(result, id)
}

// SetEnrichmentJobID links the lead to its ENRICH_LEAD job.
func (r *LeadRepository) SetEnrichmentJobID(ctx context.Context, id, jobID string) error {
	query := `UPDATE leads SET enrichment_job_id = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, jobID, id)
	if err != nil {
		return fmt.Errorf("failed to set enrichment job id: %w", err)
	}
	return expectOneRow(result, id)
}
