// Package domain provides the entity models shared across the application.
package domain

import (
	"fmt"
	"time"
)

// CampaignStatus represents a campaign lifecycle state.
type CampaignStatus string

const (
	CampaignStatusCreated   CampaignStatus = "created"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// campaignTransitions is the adjacency table of legal campaign status moves.
// Progress through a running campaign is tracked on job records, not here,
// so the lifecycle stays coarse.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusCreated: {
		CampaignStatusRunning, // Start accepted
		CampaignStatusFailed,  // Lead fetch failed before any work ran
	},
	CampaignStatusRunning: {
		CampaignStatusCompleted, // All jobs reached a terminal state
		CampaignStatusFailed,    // Unrecoverable error
		CampaignStatusPaused,    // Manual pause or breaker-open cascade
	},
	CampaignStatusPaused: {
		CampaignStatusRunning, // Resume after services recover
		CampaignStatusFailed,  // Operator abandons a paused campaign
	},
	CampaignStatusFailed: {
		CampaignStatusCreated, // Restart from scratch
	},
	// Completed is terminal.
	CampaignStatusCompleted: {},
}

// ValidateCampaignTransition checks if a campaign status transition is valid.
// Returns an error if the transition is not allowed.
func ValidateCampaignTransition(from, to CampaignStatus) error {
	allowed, exists := campaignTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("invalid campaign transition from %s to %s", from, to)
}

// Campaign represents a lead-generation campaign.
type Campaign struct {
	ID                 string         `db:"id"                   json:"id"`
	Name               string         `db:"name"                 json:"name"`
	Status             CampaignStatus `db:"status"               json:"status"`
	StatusMessage      *string        `db:"status_message"       json:"status_message,omitempty"`
	StatusError        *string        `db:"status_error"         json:"status_error,omitempty"`
	SourceURL          string         `db:"source_url"           json:"source_url"`
	TotalRecords       int            `db:"total_records"        json:"total_records"`
	OutboundCampaignID *string        `db:"outbound_campaign_id" json:"outbound_campaign_id,omitempty"`
	CreatedAt          time.Time      `db:"created_at"           json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"           json:"updated_at"`
}

// CanPause reports whether the campaign can be paused in its current state.
func (c *Campaign) CanPause() bool {
	return c.Status == CampaignStatusRunning
}

// CanResume reports whether the campaign can be resumed from its current state.
func (c *Campaign) CanResume() bool {
	return c.Status == CampaignStatusPaused
}

// CanStart reports whether the campaign can be started from its current state.
func (c *Campaign) CanStart() bool {
	return c.Status == CampaignStatusCreated
}

// IsTerminalCampaignStatus checks if a status has no further transitions
// other than a manual restart.
func IsTerminalCampaignStatus(s CampaignStatus) bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}
