package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ekemper/leadGen-sub001/internal/breaker"
	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/queue"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// Stateful in-memory fakes for the pipeline's persistence and gating
// collaborators. Transitions enforce the same from-status guard as the real
// repositories so stale-transition paths are exercised faithfully.

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

func newFakeCampaignStore(campaigns ...*domain.Campaign) *fakeCampaignStore {
	s := &fakeCampaignStore{campaigns: make(map[string]*domain.Campaign)}
	for _, c := range campaigns {
		s.campaigns[c.ID] = c
	}
	return s
}

func (s *fakeCampaignStore) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %s: %w", id, database.ErrNotFound)
	}
	return c, nil
}

func (s *fakeCampaignStore) ListByStatus(_ context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Campaign
	for _, c := range s.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeCampaignStore) Transition(_ context.Context, id string, from, to domain.CampaignStatus, message, statusError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign %s: %w", id, database.ErrNotFound)
	}
	if c.Status != from {
		return fmt.Errorf("campaign %s is %s, expected %s: %w", id, c.Status, from, database.ErrStaleTransition)
	}
	if err := domain.ValidateCampaignTransition(from, to); err != nil {
		return err
	}
	c.Status = to
	c.StatusMessage = message
	c.StatusError = statusError
	return nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	// createErr, when set, fails the next Create call.
	createErr error
}

func newFakeJobStore(jobs ...*domain.Job) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		err := s.createErr
		s.createErr = nil
		return err
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) GetByID(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	return j, nil
}

func (s *fakeJobStore) ListByCampaign(_ context.Context, campaignID string, jobType domain.JobType) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.CampaignID != campaignID {
			continue
		}
		if jobType != "" && j.Type != jobType {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *fakeJobStore) CountActiveByCampaign(_ context.Context, campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, j := range s.jobs {
		if j.CampaignID == campaignID && !domain.IsTerminalJobStatus(j.Status) {
			count++
		}
	}
	return count, nil
}

func (s *fakeJobStore) Transition(_ context.Context, id string, from, to domain.JobStatus, result domain.JSONBMap, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	if j.Status != from {
		return fmt.Errorf("job %s is %s, expected %s: %w", id, j.Status, from, database.ErrStaleTransition)
	}
	if err := domain.ValidateJobTransition(from, to); err != nil {
		return err
	}
	j.Status = to
	if result != nil {
		j.Result = result
	}
	j.Error = errMsg
	return nil
}

func (s *fakeJobStore) SetTaskID(_ context.Context, id, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	j.TaskID = &taskID
	return nil
}

func (s *fakeJobStore) byType(jobType domain.JobType) []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

type fakeLeadStore struct {
	mu    sync.Mutex
	leads map[string]*domain.Lead
}

func newFakeLeadStore(leads ...*domain.Lead) *fakeLeadStore {
	s := &fakeLeadStore{leads: make(map[string]*domain.Lead)}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *fakeLeadStore) Create(_ context.Context, lead *domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ID] = lead
	return nil
}

func (s *fakeLeadStore) GetByID(_ context.Context, id string) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, fmt.Errorf("lead %s: %w", id, database.ErrNotFound)
	}
	return l, nil
}

func (s *fakeLeadStore) SetStageResult(_ context.Context, id string, field database.StageField, payload domain.JSONBMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead %s: %w", id, database.ErrNotFound)
	}
	switch field {
	case database.StageEmailVerification:
		l.EmailVerification = payload
	case database.StageEnrichmentResults:
		l.EnrichmentResults = payload
	case database.StageEmailCopyResult:
		l.EmailCopyResult = payload
	case database.StageOutboundLeadRecord:
		l.OutboundLeadRecord = payload
	default:
		return fmt.Errorf("unknown stage field %s", field)
	}
	return nil
}

func (s *fakeLeadStore) SetEnrichmentJobID(_ context.Context, id, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead %s: %w", id, database.ErrNotFound)
	}
	l.EnrichmentJobID = &jobID
	return nil
}

// fakeLimiter denies the services listed in denied.
type fakeLimiter struct {
	denied map[string]bool
}

func (l *fakeLimiter) Acquire(_ context.Context, service string) bool {
	return !l.denied[service]
}

// fakeBreakers blocks services listed in open and records all reports.
type fakeBreakers struct {
	mu        sync.Mutex
	open      map[string]bool
	successes []string
	failures  []string
}

func (b *fakeBreakers) ShouldAllowRequest(_ context.Context, service string) (bool, string) {
	if b.open[service] {
		return false, "circuit open: " + service + " unavailable"
	}
	return true, ""
}

func (b *fakeBreakers) RecordSuccess(_ context.Context, service string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = append(b.successes, service)
}

func (b *fakeBreakers) RecordFailure(_ context.Context, service, _ string, _ breaker.FailureKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, service)
}

// fakeProducer records enqueued tasks and hands out sequential task IDs.
type fakeProducer struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (p *fakeProducer) Enqueue(_ context.Context, task queue.Task) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.tasks = append(p.tasks, task)
	return fmt.Sprintf("task-%d", len(p.tasks)), nil
}

// scriptedOutcome is a canned response for one fake service adapter.
type scriptedOutcome struct {
	out   services.Outcome
	calls int
}

func (s *scriptedOutcome) invoke() services.Outcome {
	s.calls++
	return s.out
}

type fakeSource struct {
	result *services.FetchResult
	err    error
	calls  int
	params services.FetchParams
}

func (f *fakeSource) FetchLeads(_ context.Context, params services.FetchParams) (*services.FetchResult, error) {
	f.calls++
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeVerifier struct{ scriptedOutcome }

func (f *fakeVerifier) Verify(context.Context, string) services.Outcome {
	return f.invoke()
}

type fakeEnricher struct {
	scriptedOutcome
	profile services.EnrichProfile
}

func (f *fakeEnricher) Enrich(_ context.Context, profile services.EnrichProfile) services.Outcome {
	f.profile = profile
	return f.invoke()
}

type fakeCopyGen struct {
	scriptedOutcome
	req services.CopyRequest
}

func (f *fakeCopyGen) GenerateCopy(_ context.Context, req services.CopyRequest) services.Outcome {
	f.req = req
	return f.invoke()
}

type fakeOutbound struct {
	scriptedOutcome
	campaignRef     string
	email           string
	personalization string

	analytics    map[string]any
	analyticsErr error
}

func (f *fakeOutbound) CreateLead(_ context.Context, campaignRef, email, _, personalization string) services.Outcome {
	f.campaignRef = campaignRef
	f.email = email
	f.personalization = personalization
	return f.invoke()
}

func (f *fakeOutbound) GetAnalyticsOverview(context.Context, string) (map[string]any, error) {
	if f.analyticsErr != nil {
		return nil, f.analyticsErr
	}
	return f.analytics, nil
}

// recordingObserver counts pipeline events per label.
type recordingObserver struct {
	mu             sync.Mutex
	tasks          map[string]int // "type/result"
	stageOutcomes  map[string]int // "service/outcome"
	limiterDenials map[string]int
	jobsPaused     map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		tasks:          make(map[string]int),
		stageOutcomes:  make(map[string]int),
		limiterDenials: make(map[string]int),
		jobsPaused:     make(map[string]int),
	}
}

func (o *recordingObserver) RecordTask(taskType, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks[taskType+"/"+result]++
}

func (o *recordingObserver) RecordStageOutcome(service, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stageOutcomes[service+"/"+outcome]++
}

func (o *recordingObserver) RecordLimiterDenial(service string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.limiterDenials[service]++
}

func (o *recordingObserver) RecordJobPaused(service string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobsPaused[service]++
}
