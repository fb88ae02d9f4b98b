package domain

import (
	"fmt"
	"time"
)

// JobType identifies the kind of asynchronous work a job record tracks.
type JobType string

const (
	JobTypeFetchLeads JobType = "fetch_leads"
	JobTypeEnrichLead JobType = "enrich_lead"
	JobTypeCleanup    JobType = "cleanup"
)

// JobStatus represents a job lifecycle state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCancelled  JobStatus = "cancelled"
)

// jobTransitions is the adjacency table of legal job status moves.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {
		JobStatusProcessing, // Picked up by a worker
		JobStatusCancelled,  // Campaign stopped before the task ran
	},
	JobStatusProcessing: {
		JobStatusCompleted, // Pipeline finished
		JobStatusFailed,    // Unexpected exception
		JobStatusPaused,    // Rate limit or open breaker mid-pipeline
		JobStatusCancelled, // Manual cancellation
	},
	JobStatusPaused: {
		JobStatusPending,   // Re-queued once services recover
		JobStatusCancelled, // Campaign abandoned
	},
	JobStatusFailed:    {},
	JobStatusCompleted: {},
	JobStatusCancelled: {},
}

// ValidateJobTransition checks if a job status transition is valid.
func ValidateJobTransition(from, to JobStatus) error {
	allowed, exists := jobTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("invalid job transition from %s to %s", from, to)
}

// IsTerminalJobStatus checks if a job status admits no further transitions.
func IsTerminalJobStatus(s JobStatus) bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents one unit of asynchronous work tied to a campaign.
// FETCH_LEADS jobs are created once per campaign start; ENRICH_LEAD jobs are
// created per lead as its enrichment begins.
type Job struct {
	ID         string    `db:"id"          json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	Type       JobType   `db:"type"        json:"type"`
	Status     JobStatus `db:"status"      json:"status"`
	Result     JSONBMap  `db:"result"      json:"result,omitempty"`
	Error      *string   `db:"error"       json:"error,omitempty"`
	// TaskID is the scheduler handle for the queued task, kept for cancellation.
	TaskID      *string    `db:"task_id"      json:"task_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
