package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ekemper/leadGen-sub001/internal/domain"
)

const campaignColumns = `
	id, name, status, status_message, status_error, source_url,
	total_records, outbound_campaign_id, created_at, updated_at
`

// CampaignRepository handles database operations for campaigns.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository creates a new campaign repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	query := `
		INSERT INTO campaigns (id, name, status, source_url, total_records)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		c.ID, c.Name, c.Status, c.SourceURL, c.TotalRecords,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by its ID.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	err := r.db.GetContext(ctx, &c, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &c, nil
}

// ListByStatus retrieves all campaigns in a given status.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error) {
	var campaigns []*domain.Campaign
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &campaigns, query, status); err != nil {
		return nil, fmt.Errorf("failed to list campaigns by status: %w", err)
	}

	if campaigns == nil {
		campaigns = []*domain.Campaign{}
	}
	return campaigns, nil
}

// List retrieves campaigns ordered by creation time.
func (r *CampaignRepository) List(ctx context.Context, limit, offset int) ([]*domain.Campaign, error) {
	var campaigns []*domain.Campaign
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	if err := r.db.SelectContext(ctx, &campaigns, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	if campaigns == nil {
		campaigns = []*domain.Campaign{}
	}
	return campaigns, nil
}

// Transition moves a campaign from one status to another under a row lock.
// The row is re-read with FOR UPDATE inside a transaction; if its status no
// longer matches the expected from status, ErrStaleTransition is returned
// and nothing is written.
func (r *CampaignRepository) Transition(
	ctx context.Context,
	id string,
	from, to domain.CampaignStatus,
	message, statusError *string,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var current domain.CampaignStatus
	lockQuery := `SELECT status FROM campaigns WHERE id = $1 FOR UPDATE`
	if err = tx.QueryRowContext(ctx, lockQuery, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to lock campaign: %w", err)
	}

	if current != from {
		return fmt.Errorf("campaign %s is %s, expected %s: %w", id, current, from, ErrStaleTransition)
	}

	if err = domain.ValidateCampaignTransition(from, to); err != nil {
		return err
	}

	updateQuery := `
		UPDATE campaigns
		SET status = $1, status_message = $2, status_error = $3, updated_at = NOW()
		WHERE id = $4
	`
	if _, err = tx.ExecContext(ctx, updateQuery, to, message, statusError, id); err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit campaign transition: %w", err)
	}

	return nil
}

// SetOutboundCampaignID records the outbound platform campaign reference.
func (r *CampaignRepository) SetOutboundCampaignID(ctx context.Context, id, outboundID string) error {
	query := `UPDATE campaigns SET outbound_campaign_id = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, outboundID, id)
	if err != nil {
		return fmt.Errorf("failed to set outbound campaign id: %w", err)
	}
	return expectOneRow(result, id)
}

// expectOneRow returns ErrNotFound when an update touched no rows.
func expectOneRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}
