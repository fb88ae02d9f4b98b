package pipeline_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/queue"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// seedFetch installs a running campaign with a pending fetch job.
func (f *pipelineFixture) seedFetch() queue.Task {
	f.campaigns.campaigns["camp-1"] = &domain.Campaign{
		ID:           "camp-1",
		Name:         "Q3 outreach",
		Status:       domain.CampaignStatusRunning,
		SourceURL:    "https://app.example.com/search?titles[]=ceo",
		TotalRecords: 2,
	}
	f.jobs.jobs["fetch-1"] = &domain.Job{
		ID:         "fetch-1",
		CampaignID: "camp-1",
		Type:       domain.JobTypeFetchLeads,
		Status:     domain.JobStatusPending,
	}
	return queue.Task{
		Type:       domain.JobTypeFetchLeads,
		JobID:      "fetch-1",
		CampaignID: "camp-1",
	}
}

func TestFetchFansOutEnrichmentJobs(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedFetch()
	f.source.result = &services.FetchResult{
		Leads: []map[string]any{
			{
				"email": "ada@example.com", "first_name": "Ada", "last_name": "Lovelace",
				"title": "CEO", "organization_name": "Analytical Engines",
			},
			{
				"email": "bob@example.com", "first_name": "Bob", "last_name": "Builder",
				"organization": map[string]any{"name": "Construction Co"},
			},
		},
		Count: 2,
	}

	require.NoError(t, f.handle(t, task))

	fetchJob := f.jobs.jobs["fetch-1"]
	assert.Equal(t, domain.JobStatusCompleted, fetchJob.Status)
	assert.Equal(t, domain.JSONBMap{
		"leads_fetched":       2,
		"enrich_jobs_created": 2,
	}, fetchJob.Result)

	// The requested count is never clobbered by the fetch outcome.
	assert.Equal(t, 2, f.campaigns.campaigns["camp-1"].TotalRecords)
	assert.Equal(t, "https://app.example.com/search?titles[]=ceo", f.source.params.SourceURL)

	require.Len(t, f.leads.leads, 2)
	var companies []string
	for _, lead := range f.leads.leads {
		companies = append(companies, lead.Company)
		require.NotNil(t, lead.EnrichmentJobID)
	}
	assert.ElementsMatch(t, []string{"Analytical Engines", "Construction Co"}, companies)

	enrichJobs := f.jobs.byType(domain.JobTypeEnrichLead)
	require.Len(t, enrichJobs, 2)
	for _, job := range enrichJobs {
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.NotNil(t, job.TaskID)
	}

	require.Len(t, f.producer.tasks, 2)
	for _, queued := range f.producer.tasks {
		assert.Equal(t, domain.JobTypeEnrichLead, queued.Type)
		assert.Equal(t, "camp-1", queued.CampaignID)
		assert.NotEmpty(t, queued.LeadID)
	}

	assert.Contains(t, f.breakers.successes, services.Apollo)
	assert.Equal(t, 1, f.obs.stageOutcomes["apollo/success"])
}

func TestFetchKeepsRequestedRecordCount(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedFetch()
	f.source.result = &services.FetchResult{Leads: nil, Count: 0}

	require.NoError(t, f.handle(t, task))

	fetchJob := f.jobs.jobs["fetch-1"]
	assert.Equal(t, domain.JobStatusCompleted, fetchJob.Status)
	assert.Equal(t, domain.JSONBMap{
		"leads_fetched":       0,
		"enrich_jobs_created": 0,
	}, fetchJob.Result)

	// A zero-lead fetch must leave the operator's requested count intact so
	// a failed-campaign restart still passes record count validation.
	assert.Equal(t, 2, f.campaigns.campaigns["camp-1"].TotalRecords)
}

func TestFetchErrorFailsCampaign(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedFetch()
	f.source.err = errors.New("search export failed")

	err := f.handle(t, task)

	require.Error(t, err)
	assert.Equal(t, domain.JobStatusFailed, f.jobs.jobs["fetch-1"].Status)

	campaign := f.campaigns.campaigns["camp-1"]
	assert.Equal(t, domain.CampaignStatusFailed, campaign.Status)
	require.NotNil(t, campaign.StatusMessage)
	assert.Equal(t, "lead fetch failed", *campaign.StatusMessage)
	require.NotNil(t, campaign.StatusError)
	assert.Contains(t, *campaign.StatusError, "search export failed")

	assert.Contains(t, f.breakers.failures, services.Apollo)
	assert.Equal(t, 1, f.obs.tasks["fetch_leads/error"])
}

func TestFetchLimiterDenialPausesJob(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedFetch()
	f.limiter.denied[services.Apollo] = true

	require.NoError(t, f.handle(t, task))

	job := f.jobs.jobs["fetch-1"]
	assert.Equal(t, domain.JobStatusPaused, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "rate limit exceeded for apollo", *job.Error)
	assert.Equal(t, 0, f.source.calls)
	assert.Equal(t, domain.CampaignStatusRunning, f.campaigns.campaigns["camp-1"].Status)
}

func TestFetchOpenBreakerPausesJob(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedFetch()
	f.breakers.open[services.Apollo] = true

	require.NoError(t, f.handle(t, task))

	job := f.jobs.jobs["fetch-1"]
	assert.Equal(t, domain.JobStatusPaused, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "circuit open")
	assert.Equal(t, 0, f.source.calls)
}

func TestFetchForPausedCampaignCancelsJob(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedFetch()
	f.campaigns.campaigns["camp-1"].Status = domain.CampaignStatusPaused

	require.NoError(t, f.handle(t, task))

	job := f.jobs.jobs["fetch-1"]
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "campaign is paused", *job.Error)
	assert.Equal(t, 0, f.source.calls)
}

func TestFetchReplayOfFinishedJobIsDropped(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedFetch()
	f.jobs.jobs["fetch-1"].Status = domain.JobStatusCancelled

	require.NoError(t, f.handle(t, task))

	assert.Equal(t, 0, f.source.calls)
	assert.Equal(t, domain.JobStatusCancelled, f.jobs.jobs["fetch-1"].Status)
}

func TestFetchContinuesPastPerLeadFailures(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedFetch()
	f.source.result = &services.FetchResult{
		Leads: []map[string]any{
			{"email": "ada@example.com", "first_name": "Ada"},
			{"email": "bob@example.com", "first_name": "Bob"},
		},
		Count: 2,
	}
	// First enrichment job insert fails; the second lead still goes through.
	f.jobs.createErr = errors.New("insert failed")

	require.NoError(t, f.handle(t, task))

	fetchJob := f.jobs.jobs["fetch-1"]
	assert.Equal(t, domain.JobStatusCompleted, fetchJob.Status)
	assert.Equal(t, domain.JSONBMap{
		"leads_fetched":       2,
		"enrich_jobs_created": 1,
	}, fetchJob.Result)
	assert.Len(t, f.producer.tasks, 1)
}
