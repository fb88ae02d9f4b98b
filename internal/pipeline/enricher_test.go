package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/pipeline"
	"github.com/ekemper/leadGen-sub001/internal/queue"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

type pipelineFixture struct {
	campaigns *fakeCampaignStore
	jobs      *fakeJobStore
	leads     *fakeLeadStore
	limiter   *fakeLimiter
	breakers  *fakeBreakers
	producer  *fakeProducer
	source    *fakeSource
	verifier  *fakeVerifier
	enricher  *fakeEnricher
	copygen   *fakeCopyGen
	outbound  *fakeOutbound
	obs       *recordingObserver
	handler   *pipeline.Handler
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		campaigns: newFakeCampaignStore(),
		jobs:      newFakeJobStore(),
		leads:     newFakeLeadStore(),
		limiter:   &fakeLimiter{denied: map[string]bool{}},
		breakers:  &fakeBreakers{open: map[string]bool{}},
		producer:  &fakeProducer{},
		source:    &fakeSource{},
		verifier:  &fakeVerifier{},
		enricher:  &fakeEnricher{},
		copygen:   &fakeCopyGen{},
		outbound:  &fakeOutbound{},
		obs:       newRecordingObserver(),
	}
	f.handler = pipeline.NewHandler(pipeline.HandlerDeps{
		Campaigns: f.campaigns,
		Jobs:      f.jobs,
		Leads:     f.leads,
		Limiter:   f.limiter,
		Breakers:  f.breakers,
		Producer:  f.producer,
		Source:    f.source,
		Verifier:  f.verifier,
		Enricher:  f.enricher,
		CopyGen:   f.copygen,
		Outbound:  f.outbound,
		Observer:  f.obs,
	})
	return f
}

// seedEnrichment installs a running campaign, a complete lead, and a pending
// enrichment job, returning the task that would be consumed for it.
func (f *pipelineFixture) seedEnrichment() queue.Task {
	outboundID := "ob-1"
	f.campaigns.campaigns["camp-1"] = &domain.Campaign{
		ID:                 "camp-1",
		Name:               "Q3 outreach",
		Status:             domain.CampaignStatusRunning,
		OutboundCampaignID: &outboundID,
	}
	f.leads.leads["lead-1"] = &domain.Lead{
		ID:         "lead-1",
		CampaignID: "camp-1",
		Email:      "ada@example.com",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Company:    "Analytical Engines",
		Title:      "Chief Mathematician",
		RawData:    domain.JSONBMap{"headline": "Chief Mathematician at Analytical Engines"},
	}
	f.jobs.jobs["job-1"] = &domain.Job{
		ID:         "job-1",
		CampaignID: "camp-1",
		Type:       domain.JobTypeEnrichLead,
		Status:     domain.JobStatusPending,
	}
	return queue.Task{
		Type:       domain.JobTypeEnrichLead,
		JobID:      "job-1",
		CampaignID: "camp-1",
		LeadID:     "lead-1",
	}
}

func (f *pipelineFixture) handle(t *testing.T, task queue.Task) error {
	t.Helper()
	return f.handler.Handle(context.Background(), &queue.ConsumedTask{
		MessageID: "msg-1",
		Task:      task,
	})
}

func allSuccessful(f *pipelineFixture) {
	f.verifier.out = services.Success(map[string]any{"result": "deliverable"})
	f.enricher.out = services.Success(map[string]any{"content": "research notes"})
	f.copygen.out = services.Success(map[string]any{"content": "Hi Ada, ..."})
	f.outbound.out = services.Success(map[string]any{"id": "il-1"})
}

func TestEnrichmentHappyPath(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)

	require.NoError(t, f.handle(t, task))

	job := f.jobs.jobs["job-1"]
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, domain.JSONBMap{
		"email_verification": true,
		"enrichment":         true,
		"email_copy":         true,
		"outbound_created":   true,
	}, job.Result)

	lead := f.leads.leads["lead-1"]
	assert.True(t, domain.StageSucceeded(lead.EmailVerification))
	assert.True(t, domain.StageSucceeded(lead.EnrichmentResults))
	assert.True(t, domain.StageSucceeded(lead.EmailCopyResult))
	assert.True(t, domain.StageSucceeded(lead.OutboundLeadRecord))
	assert.Equal(t, "research notes", lead.EnrichmentResults["content"])

	// Stage inputs flow forward.
	assert.Equal(t, "Chief Mathematician at Analytical Engines", f.enricher.profile.Headline)
	assert.Equal(t, "research notes", f.copygen.req.EnrichmentContent)
	assert.Equal(t, "ob-1", f.outbound.campaignRef)
	assert.Equal(t, "Hi Ada, ...", f.outbound.personalization)

	assert.ElementsMatch(t, []string{
		services.MillionVerifier, services.Perplexity, services.OpenAI, services.Instantly,
	}, f.breakers.successes)
	assert.Equal(t, 1, f.obs.tasks["enrich_lead/ok"])
}

func TestEnrichmentMissingProfileFieldsSkipsPaidStages(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)
	lead := f.leads.leads["lead-1"]
	lead.Company = ""
	lead.Title = ""
	lead.RawData = nil

	require.NoError(t, f.handle(t, task))

	assert.Equal(t, domain.JobStatusCompleted, f.jobs.jobs["job-1"].Status)
	assert.Equal(t, domain.JSONBMap{
		"email_verification": true,
		"enrichment":         false,
		"email_copy":         false,
		"outbound_created":   false,
	}, f.jobs.jobs["job-1"].Result)

	// The enrichment failure is persisted with the field list; the two
	// downstream stages record skips without spending API calls.
	assert.Contains(t, lead.EnrichmentResults[domain.StageKeyError], "missing required fields")
	assert.Equal(t, []string{"headline", "company_name"}, lead.EnrichmentResults["missing_fields"])
	assert.True(t, domain.StageSkipped(lead.EmailCopyResult))
	assert.True(t, domain.StageSkipped(lead.OutboundLeadRecord))
	assert.Contains(t, lead.OutboundLeadRecord["missing"], "email_copy_gen_results")

	assert.Equal(t, 0, f.enricher.calls)
	assert.Equal(t, 0, f.copygen.calls)
	assert.Equal(t, 0, f.outbound.calls)
	assert.Equal(t, 1, f.obs.stageOutcomes["perplexity/skipped"])
}

func TestEnrichmentMissingEmail(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)
	f.leads.leads["lead-1"].Email = ""

	require.NoError(t, f.handle(t, task))

	lead := f.leads.leads["lead-1"]
	assert.True(t, domain.StageSkipped(lead.EmailVerification))
	assert.Equal(t, "missing email address", lead.EmailVerification[domain.StageKeyReason])
	assert.Equal(t, 0, f.verifier.calls)

	// Enrichment and copy still run; outbound creation cannot.
	assert.True(t, domain.StageSucceeded(lead.EnrichmentResults))
	assert.True(t, domain.StageSucceeded(lead.EmailCopyResult))
	assert.True(t, domain.StageSkipped(lead.OutboundLeadRecord))
	assert.Contains(t, lead.OutboundLeadRecord["missing"], "email")
	assert.Equal(t, 0, f.outbound.calls)

	assert.Equal(t, domain.JSONBMap{
		"email_verification": false,
		"enrichment":         true,
		"email_copy":         true,
		"outbound_created":   false,
	}, f.jobs.jobs["job-1"].Result)
}

func TestEnrichmentRateLimitPausesJob(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)
	f.enricher.out = services.RateLimited("quota exceeded")

	require.NoError(t, f.handle(t, task))

	job := f.jobs.jobs["job-1"]
	assert.Equal(t, domain.JobStatusPaused, job.Status)
	require.NotNil(t, job.Error)
	// The pause reason names the limiting service alongside its detail.
	assert.Equal(t, "rate limited by perplexity: quota exceeded", *job.Error)

	// The failed result is persisted; nothing downstream ran.
	lead := f.leads.leads["lead-1"]
	assert.Equal(t, "quota exceeded", lead.EnrichmentResults[domain.StageKeyError])
	assert.Nil(t, lead.EmailCopyResult)
	assert.Equal(t, 0, f.copygen.calls)
	assert.Equal(t, 0, f.outbound.calls)

	assert.Contains(t, f.breakers.failures, services.Perplexity)
	assert.Equal(t, 1, f.obs.tasks["enrich_lead/ok"])
}

func TestEnrichmentUnserializableResultFallsBack(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)
	// Third-party payloads are duck-typed; a channel can never reach JSON.
	f.enricher.out = services.Success(map[string]any{
		"content": "research notes",
		"stream":  make(chan int),
	})

	require.NoError(t, f.handle(t, task))

	// The stage write survives with a minimal error record in place of the
	// unserializable payload.
	lead := f.leads.leads["lead-1"]
	require.NotNil(t, lead.EnrichmentResults)
	errMsg, _ := lead.EnrichmentResults[domain.StageKeyError].(string)
	assert.Contains(t, errMsg, "could not be serialized")
	assert.NotContains(t, lead.EnrichmentResults, "stream")
	assert.NotContains(t, lead.EnrichmentResults, domain.StageKeyStatus)

	assert.Equal(t, domain.JobStatusCompleted, f.jobs.jobs["job-1"].Status)
}

func TestEnrichmentLimiterDenialPausesJob(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)
	f.limiter.denied[services.MillionVerifier] = true

	require.NoError(t, f.handle(t, task))

	job := f.jobs.jobs["job-1"]
	assert.Equal(t, domain.JobStatusPaused, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "rate limit exceeded for millionverifier", *job.Error)

	assert.Equal(t, 0, f.verifier.calls)
	assert.Equal(t, 1, f.obs.limiterDenials[services.MillionVerifier])
	assert.Equal(t, 1, f.obs.jobsPaused[services.MillionVerifier])
}

func TestEnrichmentOpenBreakerPausesJob(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)
	f.breakers.open[services.OpenAI] = true

	require.NoError(t, f.handle(t, task))

	job := f.jobs.jobs["job-1"]
	assert.Equal(t, domain.JobStatusPaused, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "circuit open")

	// The first two stages completed and their results survive the pause.
	lead := f.leads.leads["lead-1"]
	assert.True(t, domain.StageSucceeded(lead.EmailVerification))
	assert.True(t, domain.StageSucceeded(lead.EnrichmentResults))
	assert.Equal(t, 0, f.copygen.calls)
}

func TestEnrichmentFailedStageDoesNotAbortPipeline(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)
	f.verifier.out = services.Failed("verification backend down")

	require.NoError(t, f.handle(t, task))

	job := f.jobs.jobs["job-1"]
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, false, job.Result["email_verification"])
	assert.Equal(t, true, job.Result["outbound_created"])

	lead := f.leads.leads["lead-1"]
	assert.Equal(t, "verification backend down", lead.EmailVerification[domain.StageKeyError])
	assert.Contains(t, f.breakers.failures, services.MillionVerifier)
}

func TestEnrichmentReplayOfFinishedJobIsDropped(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	allSuccessful(f)
	f.jobs.jobs["job-1"].Status = domain.JobStatusCompleted

	// A redelivered message for a finished job acks cleanly without side effects.
	require.NoError(t, f.handle(t, task))

	assert.Equal(t, domain.JobStatusCompleted, f.jobs.jobs["job-1"].Status)
	assert.Equal(t, 0, f.verifier.calls)
	assert.Equal(t, 0, f.enricher.calls)
}

func TestEnrichmentMissingLeadFailsJob(t *testing.T) {
	f := newPipelineFixture()
	task := f.seedEnrichment()
	delete(f.leads.leads, "lead-1")

	err := f.handle(t, task)

	require.Error(t, err)
	job := f.jobs.jobs["job-1"]
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "load lead")
	assert.Equal(t, 1, f.obs.tasks["enrich_lead/error"])
}

func TestHandleUnknownTaskType(t *testing.T) {
	f := newPipelineFixture()

	err := f.handle(t, queue.Task{Type: domain.JobType("mystery"), JobID: "job-x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task type")
	assert.Equal(t, 1, f.obs.tasks["mystery/error"])
}
