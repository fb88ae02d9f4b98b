package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekemper/leadGen-sub001/internal/domain"
)

func TestValidateJobTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.JobStatus
		to      domain.JobStatus
		wantErr bool
	}{
		{"pending to processing", domain.JobStatusPending, domain.JobStatusProcessing, false},
		{"pending to cancelled", domain.JobStatusPending, domain.JobStatusCancelled, false},
		{"processing to completed", domain.JobStatusProcessing, domain.JobStatusCompleted, false},
		{"processing to failed", domain.JobStatusProcessing, domain.JobStatusFailed, false},
		{"processing to paused", domain.JobStatusProcessing, domain.JobStatusPaused, false},
		{"processing to cancelled", domain.JobStatusProcessing, domain.JobStatusCancelled, false},
		{"paused to pending", domain.JobStatusPaused, domain.JobStatusPending, false},
		{"paused to cancelled", domain.JobStatusPaused, domain.JobStatusCancelled, false},

		{"pending to completed", domain.JobStatusPending, domain.JobStatusCompleted, true},
		{"pending to paused", domain.JobStatusPending, domain.JobStatusPaused, true},
		{"paused to processing", domain.JobStatusPaused, domain.JobStatusProcessing, true},
		{"completed to processing", domain.JobStatusCompleted, domain.JobStatusProcessing, true},
		{"failed to pending", domain.JobStatusFailed, domain.JobStatusPending, true},
		{"cancelled to pending", domain.JobStatusCancelled, domain.JobStatusPending, true},
		{"unknown source", domain.JobStatus("bogus"), domain.JobStatusPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateJobTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTerminalJobStatus(t *testing.T) {
	assert.True(t, domain.IsTerminalJobStatus(domain.JobStatusCompleted))
	assert.True(t, domain.IsTerminalJobStatus(domain.JobStatusFailed))
	assert.True(t, domain.IsTerminalJobStatus(domain.JobStatusCancelled))
	assert.False(t, domain.IsTerminalJobStatus(domain.JobStatusPending))
	assert.False(t, domain.IsTerminalJobStatus(domain.JobStatusProcessing))
	assert.False(t, domain.IsTerminalJobStatus(domain.JobStatusPaused))
}
