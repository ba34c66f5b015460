package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/publora/publora/internal/domain/model"
	"github.com/publora/publora/internal/observability/notify"
	"github.com/publora/publora/internal/publish"
	"github.com/publora/publora/internal/service/failurenotifier"
)

// Mock implementations for testing.
type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) FetchDue(ctx context.Context, limit int) ([]*model.PublishJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PublishJob), args.Error(1)
}

func (m *mockJobStore) Claim(ctx context.Context, jobID string) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobStore) MarkSucceeded(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *mockJobStore) MarkFailedOrRetry(ctx context.Context, job *model.PublishJob, reason string) error {
	args := m.Called(ctx, job, reason)
	// Mimic the repository: spend one attempt and fail terminally once the
	// budget runs out, otherwise requeue.
	job.Attempts++
	job.LastError = &reason
	if job.Attempts >= job.MaxAttempts {
		job.Status = model.JobStatusFailed
	} else {
		job.Status = model.JobStatusPending
	}
	return args.Error(0)
}

type mockIntegrationSource struct {
	mock.Mock
}

func (m *mockIntegrationSource) ActiveForUser(ctx context.Context, userID string) (map[string]model.Integration, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.Integration), args.Error(1)
}

// fakeAdapter records publish requests and returns a fixed result.
type fakeAdapter struct {
	platform string
	result   publish.Result
	panics   bool

	mu       sync.Mutex
	requests []publish.Request
}

func (a *fakeAdapter) Platform() string { return a.platform }

func (a *fakeAdapter) Publish(_ context.Context, req publish.Request) publish.Result {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.panics {
		panic("adapter exploded")
	}
	return a.result
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// recordingSink captures failure notifications.
type recordingSink struct {
	mu       sync.Mutex
	payloads []notify.JobFailurePayload
}

func (s *recordingSink) SendJobFailure(_ context.Context, payload notify.JobFailurePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func testJob(id, userID, platform string) *model.PublishJob {
	return &model.PublishJob{
		ID:          id,
		UserID:      userID,
		Platform:    platform,
		Content:     "post content",
		RunAt:       time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Status:      model.JobStatusPending,
		Attempts:    0,
		MaxAttempts: 3,
	}
}

func newTestDispatcher(t *testing.T, jobs *mockJobStore, integrations *mockIntegrationSource, opts DispatcherOptions) *Dispatcher {
	t.Helper()
	opts.Jobs = jobs
	opts.Integrations = integrations
	if opts.Registry == nil {
		opts.Registry = publish.NewRegistry()
	}
	d, err := NewDispatcher(opts)
	require.NoError(t, err)
	return d
}

func TestNewDispatcher_RequiresDependencies(t *testing.T) {
	_, err := NewDispatcher(DispatcherOptions{})
	require.Error(t, err)

	_, err = NewDispatcher(DispatcherOptions{Jobs: &mockJobStore{}})
	require.Error(t, err)

	_, err = NewDispatcher(DispatcherOptions{
		Jobs:         &mockJobStore{},
		Integrations: &mockIntegrationSource{},
	})
	require.Error(t, err)
}

func TestRunCycle_EmptyQueue(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	jobs.On("FetchDue", mock.Anything, 20).Return([]*model.PublishJob{}, nil)

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{})

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	jobs.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
}

func TestRunCycle_PublishesClaimedJobs(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	adapter := &fakeAdapter{platform: "facebook", result: publish.Succeeded()}

	due := []*model.PublishJob{
		testJob("job-1", "user-1", "facebook"),
		testJob("job-2", "user-1", "facebook"),
	}
	jobs.On("FetchDue", mock.Anything, 20).Return(due, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(true, nil)
	jobs.On("Claim", mock.Anything, "job-2").Return(true, nil)
	jobs.On("MarkSucceeded", mock.Anything, "job-1").Return(nil)
	jobs.On("MarkSucceeded", mock.Anything, "job-2").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{
		"facebook": {ID: "int-1", UserID: "user-1", Platform: "facebook"},
	}, nil)

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry: publish.NewRegistry(adapter),
	})

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, adapter.callCount())
	// Integrations are resolved once per user, not once per job.
	integrations.AssertNumberOfCalls(t, "ActiveForUser", 1)
	jobs.AssertExpectations(t)
}

func TestRunCycle_ClaimRaceLoserIsDropped(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	adapter := &fakeAdapter{platform: "facebook", result: publish.Succeeded()}

	due := []*model.PublishJob{
		testJob("job-1", "user-1", "facebook"),
		testJob("job-2", "user-1", "facebook"),
	}
	jobs.On("FetchDue", mock.Anything, 20).Return(due, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(false, nil) // another run won
	jobs.On("Claim", mock.Anything, "job-2").Return(true, nil)
	jobs.On("MarkSucceeded", mock.Anything, "job-2").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{
		"facebook": {Platform: "facebook"},
	}, nil)

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry: publish.NewRegistry(adapter),
	})

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, adapter.callCount())
	jobs.AssertNotCalled(t, "MarkSucceeded", mock.Anything, "job-1")
	jobs.AssertNotCalled(t, "MarkFailedOrRetry", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_ClaimErrorIsReportedButCycleContinues(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	adapter := &fakeAdapter{platform: "facebook", result: publish.Succeeded()}

	due := []*model.PublishJob{
		testJob("job-1", "user-1", "facebook"),
		testJob("job-2", "user-1", "facebook"),
	}
	jobs.On("FetchDue", mock.Anything, 20).Return(due, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(false, errors.New("connection reset"))
	jobs.On("Claim", mock.Anything, "job-2").Return(true, nil)
	jobs.On("MarkSucceeded", mock.Anything, "job-2").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{
		"facebook": {Platform: "facebook"},
	}, nil)

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry: publish.NewRegistry(adapter),
	})

	result, err := d.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claim job job-1")
	assert.Equal(t, 1, result.Processed)
}

func TestRunCycle_UnsupportedPlatformConsumesAttempt(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}

	job := testJob("job-1", "user-1", "Myspace")
	jobs.On("FetchDue", mock.Anything, 20).Return([]*model.PublishJob{job}, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(true, nil)
	jobs.On("MarkFailedOrRetry", mock.Anything, job, "Unsupported platform Myspace").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{}, nil)

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{})

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	jobs.AssertExpectations(t)
}

func TestRunCycle_MissingIntegrationConsumesAttempt(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	adapter := &fakeAdapter{platform: "facebook", result: publish.Succeeded()}

	job := testJob("job-1", "user-1", "facebook")
	jobs.On("FetchDue", mock.Anything, 20).Return([]*model.PublishJob{job}, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(true, nil)
	jobs.On("MarkFailedOrRetry", mock.Anything, job, "no active integration for facebook").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{}, nil)

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry: publish.NewRegistry(adapter),
	})

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, adapter.callCount())
	jobs.AssertExpectations(t)
}

func TestRunCycle_CaseInsensitivePlatformMatching(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	adapter := &fakeAdapter{platform: "facebook", result: publish.Succeeded()}

	job := testJob("job-1", "user-1", "FaceBook")
	jobs.On("FetchDue", mock.Anything, 20).Return([]*model.PublishJob{job}, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(true, nil)
	jobs.On("MarkSucceeded", mock.Anything, "job-1").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{
		"facebook": {Platform: "facebook"},
	}, nil)

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry: publish.NewRegistry(adapter),
	})

	_, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.callCount())
	jobs.AssertExpectations(t)
}

func TestRunCycle_AdapterPanicDoesNotTakeDownBatch(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	panicky := &fakeAdapter{platform: "facebook", panics: true}
	healthy := &fakeAdapter{platform: "linkedin", result: publish.Succeeded()}

	jobA := testJob("job-1", "user-1", "facebook")
	jobB := testJob("job-2", "user-2", "linkedin")
	jobs.On("FetchDue", mock.Anything, 20).Return([]*model.PublishJob{jobA, jobB}, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(true, nil)
	jobs.On("Claim", mock.Anything, "job-2").Return(true, nil)
	jobs.On("MarkFailedOrRetry", mock.Anything, jobA, mock.MatchedBy(func(reason string) bool {
		return strings.HasPrefix(reason, "adapter panic")
	})).Return(nil)
	jobs.On("MarkSucceeded", mock.Anything, "job-2").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{
		"facebook": {Platform: "facebook"},
	}, nil)
	integrations.On("ActiveForUser", mock.Anything, "user-2").Return(map[string]model.Integration{
		"linkedin": {Platform: "linkedin"},
	}, nil)

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry: publish.NewRegistry(panicky, healthy),
	})

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, healthy.callCount())
	jobs.AssertExpectations(t)
}

func TestRunCycle_IntegrationLookupFailureFailsUserJobs(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	adapter := &fakeAdapter{platform: "facebook", result: publish.Succeeded()}

	job := testJob("job-1", "user-1", "facebook")
	jobs.On("FetchDue", mock.Anything, 20).Return([]*model.PublishJob{job}, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(true, nil)
	jobs.On("MarkFailedOrRetry", mock.Anything, job, "integration lookup failed: db down").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(nil, errors.New("db down"))

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry: publish.NewRegistry(adapter),
	})

	result, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, adapter.callCount())
	jobs.AssertExpectations(t)
}

func TestRunCycle_TerminalFailureNotifies(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	adapter := &fakeAdapter{platform: "facebook", result: publish.Failure("boom")}
	sink := &recordingSink{}

	job := testJob("job-1", "user-1", "facebook")
	job.Attempts = 2 // final attempt
	jobs.On("FetchDue", mock.Anything, 20).Return([]*model.PublishJob{job}, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(true, nil)
	jobs.On("MarkFailedOrRetry", mock.Anything, job, "boom").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{
		"facebook": {Platform: "facebook"},
	}, nil)

	notifier := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{Name: "test", Sink: sink}},
	})

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry:        publish.NewRegistry(adapter),
		FailureNotifier: notifier,
	})

	_, err := d.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.payloads, 1)
	assert.Equal(t, "job-1", sink.payloads[0].JobID)
	assert.Equal(t, "facebook", sink.payloads[0].Platform)
	assert.Equal(t, "boom", sink.payloads[0].Error)
	assert.Equal(t, 3, sink.payloads[0].Attempts)
}

func TestRunCycle_RetryableFailureDoesNotNotify(t *testing.T) {
	jobs := &mockJobStore{}
	integrations := &mockIntegrationSource{}
	adapter := &fakeAdapter{platform: "facebook", result: publish.Failure("flaky upstream")}
	sink := &recordingSink{}

	job := testJob("job-1", "user-1", "facebook") // attempts 0 of 3
	jobs.On("FetchDue", mock.Anything, 20).Return([]*model.PublishJob{job}, nil)
	jobs.On("Claim", mock.Anything, "job-1").Return(true, nil)
	jobs.On("MarkFailedOrRetry", mock.Anything, job, "flaky upstream").Return(nil)
	integrations.On("ActiveForUser", mock.Anything, "user-1").Return(map[string]model.Integration{
		"facebook": {Platform: "facebook"},
	}, nil)

	notifier := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{Name: "test", Sink: sink}},
	})

	d := newTestDispatcher(t, jobs, integrations, DispatcherOptions{
		Registry:        publish.NewRegistry(adapter),
		FailureNotifier: notifier,
	})

	_, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sink.payloads)
}

func TestGroupByUser_PreservesFetchOrder(t *testing.T) {
	jobs := []*model.PublishJob{
		testJob("job-1", "user-b", "facebook"),
		testJob("job-2", "user-a", "linkedin"),
		testJob("job-3", "user-b", "reddit"),
	}

	byUser, order := groupByUser(jobs)

	assert.Equal(t, []string{"user-b", "user-a"}, order)
	require.Len(t, byUser["user-b"], 2)
	assert.Equal(t, "job-1", byUser["user-b"][0].ID)
	assert.Equal(t, "job-3", byUser["user-b"][1].ID)
	require.Len(t, byUser["user-a"], 1)
}
