package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/domain"
)

func TestJobCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs("job-1", "camp-1", domain.JobTypeFetchLeads, domain.JobStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job := &domain.Job{
		ID:         "job-1",
		CampaignID: "camp-1",
		Type:       domain.JobTypeFetchLeads,
		Status:     domain.JobStatusPending,
	}

	require.NoError(t, repo.Create(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobTransitionWithResult(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	result := domain.JSONBMap{"leads_fetched": 5}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(domain.JobStatusCompleted, sqlmock.AnyArg(), nil, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), "job-1",
		domain.JobStatusProcessing, domain.JobStatusCompleted, result, nil)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobTransitionStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)

	// A redelivered task races a worker that already processed the job.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), "job-1",
		domain.JobStatusPending, domain.JobStatusProcessing, nil, nil)

	assert.ErrorIs(t, err, database.ErrStaleTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobTransitionInvalidMove(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), "job-1",
		domain.JobStatusPending, domain.JobStatusCompleted, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job transition")
}

func TestJobSetTaskIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)

	mock.ExpectExec(`UPDATE jobs SET task_id`).
		WithArgs("task-1", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetTaskID(context.Background(), "missing", "task-1")

	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestLeadSetStageResultRejectsUnknownField(t *testing.T) {
	db, _ := newMockDB(t)
	repo := database.NewLeadRepository(db)

	err := repo.SetStageResult(context.Background(), "lead-1",
		database.StageField("status"), domain.JSONBMap{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage field")
}
