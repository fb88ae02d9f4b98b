package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ekemper/leadGen-sub001/internal/domain"
)

const jobColumns = `
	id, campaign_id, type, status, result, error, task_id,
	created_at, updated_at, started_at, completed_at
`

// JobRepository handles database operations for jobs.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, campaign_id, type, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		job.ID, job.CampaignID, job.Type, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ListByCampaign retrieves all jobs for a campaign, optionally filtered by type.
func (r *JobRepository) ListByCampaign(ctx context.Context, campaignID string, jobType domain.JobType) ([]*domain.Job, error) {
	var jobs []*domain.Job
	var query string
	var args []any

	if jobType != "" {
		query = `SELECT ` + jobColumns + ` FROM jobs WHERE campaign_id = $1 AND type = $2 ORDER BY created_at`
		args = []any{campaignID, jobType}
	} else {
		query = `SELECT ` + jobColumns + ` FROM jobs WHERE campaign_id = $1 ORDER BY created_at`
		args = []any{campaignID}
	}

	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}

// CountActiveByCampaign returns the number of non-terminal jobs for a campaign.
func (r *JobRepository) CountActiveByCampaign(ctx context.Context, campaignID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM jobs
		WHERE campaign_id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`

	if err := r.db.GetContext(ctx, &count, query, campaignID); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

// Transition moves a job from one status to another under a row lock,
// optionally writing the result payload and error message. A job whose
// status no longer matches from is rejected with ErrStaleTransition.
func (r *JobRepository) Transition(
	ctx context.Context,
	id string,
	from, to domain.JobStatus,
	result domain.JSONBMap,
	errMsg *string,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var current domain.JobStatus
	lockQuery := `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`
	if err = tx.QueryRowContext(ctx, lockQuery, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to lock job: %w", err)
	}

	if current != from {
		return fmt.Errorf("job %s is %s, expected %s: %w", id, current, from, ErrStaleTransition)
	}

	if err = domain.ValidateJobTransition(from, to); err != nil {
		return err
	}

	updateQuery := `
		UPDATE jobs
		SET status = $1,
		    result = COALESCE($2, result),
		    error = $3,
		    updated_at = NOW(),
		    started_at = CASE WHEN $1 = 'processing' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE completed_at END
		WHERE id = $4
	`

	var resultArg any
	if result != nil {
		resultArg = result
	}

	if _, err = tx.ExecContext(ctx, updateQuery, to, resultArg, errMsg, id); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job transition: %w", err)
	}

	return nil
}

// SetTaskID stores the scheduler handle for the queued task.
func (r *JobRepository) SetTaskID(ctx context.Context, id, taskID string) error {
	query := `UPDATE jobs SET task_id = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, taskID, id)
	if err != nil {
		return fmt.Errorf("failed to set task id: %w", err)
	}
	return expectOneRow(result, id)
}

// ListResumableByCampaign retrieves paused jobs for a campaign so they can
// be re-queued on resume.
func (r *JobRepository) ListResumableByCampaign(ctx context.Context, campaignID string) ([]*domain.Job, error) {
	var jobs []*domain.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE campaign_id = $1 AND status = 'paused' ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &jobs, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list resumable jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}
