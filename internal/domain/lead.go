package domain

import (
	"strings"
	"time"
)

// Stage result payload keys. Every pipeline stage writes a map containing
// either "status": "success" plus the raw third-party payload, or an "error"
// (failure) / "skipped" + "reason" (precondition not met) entry. Failures are
// data too: the raw result is persisted regardless of pipeline outcome.
const (
	StageKeyStatus  = "status"
	StageKeyError   = "error"
	StageKeySkipped = "skipped"
	StageKeyReason  = "reason"

	StageStatusSuccess = "success"
)

// Lead represents a single candidate contact fetched for a campaign.
// Pipeline progress is entirely inferable from which of the four stage result
// fields are populated and whether each indicates success; no separate
// progress enum is kept.
type Lead struct {
	ID         string `db:"id"          json:"id"`
	CampaignID string `db:"campaign_id" json:"campaign_id"`

	Email     string   `db:"email"      json:"email"`
	FirstName string   `db:"first_name" json:"first_name"`
	LastName  string   `db:"last_name"  json:"last_name"`
	Company   string   `db:"company"    json:"company"`
	Title     string   `db:"title"      json:"title"`
	RawData   JSONBMap `db:"raw_data"   json:"raw_data,omitempty"`

	EmailVerification  JSONBMap `db:"email_verification"   json:"email_verification,omitempty"`
	EnrichmentResults  JSONBMap `db:"enrichment_results"   json:"enrichment_results,omitempty"`
	EmailCopyResult    JSONBMap `db:"email_copy_result"    json:"email_copy_result,omitempty"`
	OutboundLeadRecord JSONBMap `db:"outbound_lead_record" json:"outbound_lead_record,omitempty"`

	// EnrichmentJobID links back to the ENRICH_LEAD job driving this lead.
	EnrichmentJobID *string `db:"enrichment_job_id" json:"enrichment_job_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Headline returns the lead's professional headline from the raw profile
// data, falling back to the title field when the raw payload carries none.
func (l *Lead) Headline() string {
	if l.RawData != nil {
		if h, ok := l.RawData["headline"].(string); ok && strings.TrimSpace(h) != "" {
			return h
		}
	}
	return l.Title
}

// StageSucceeded reports whether a persisted stage result indicates success.
// A nil result means the stage has not run.
func StageSucceeded(result JSONBMap) bool {
	if result == nil {
		return false
	}
	status, ok := result[StageKeyStatus].(string)
	return ok && status == StageStatusSuccess
}

// StageSkipped reports whether a persisted stage result records an explicit skip.
func StageSkipped(result JSONBMap) bool {
	if result == nil {
		return false
	}
	skipped, ok := result[StageKeySkipped].(bool)
	return ok && skipped
}
