package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/publora/publora/internal/core"
	"github.com/publora/publora/internal/domain/model"
	"github.com/publora/publora/internal/observability/metrics"
	"github.com/publora/publora/internal/observability/notify"
	"github.com/publora/publora/internal/observability/statsd"
	"github.com/publora/publora/internal/publish"
	"github.com/publora/publora/internal/service/failurenotifier"
)

const defaultMaxBatch = 20

// DispatcherOptions configures the dispatcher.
type DispatcherOptions struct {
	Jobs         core.JobStore
	Integrations core.IntegrationSource
	Registry     *publish.Registry
	Logger       *slog.Logger
	Metrics      statsd.Sink

	// FailureNotifier, when set, is told about terminal failures.
	FailureNotifier *failurenotifier.Service

	// MaxBatch bounds per-cycle work; defaults to 20.
	MaxBatch int
	// UserConcurrency bounds how many users are processed in parallel;
	// <= 0 means unbounded.
	UserConcurrency int
}

// Dispatcher orchestrates one processing cycle of the publish queue: fetch
// due jobs, claim them, resolve integrations per user, invoke the matching
// platform adapter, and record the outcome. Multiple overlapping cycles are
// safe because Claim is a compare-and-swap.
type Dispatcher struct {
	jobs            core.JobStore
	integrations    core.IntegrationSource
	registry        *publish.Registry
	logger          *slog.Logger
	metrics         statsd.Sink
	failureNotifier *failurenotifier.Service
	maxBatch        int
	userConcurrency int
}

// CycleResult summarizes one dispatcher cycle.
type CycleResult struct {
	// Processed is the number of jobs this cycle claimed and attempted.
	Processed int `json:"processed"`
}

// NewDispatcher validates options and constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Integrations == nil {
		return nil, errors.New("integration source is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("adapter registry is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dispatcher")
	}
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}

	return &Dispatcher{
		jobs:            opts.Jobs,
		integrations:    opts.Integrations,
		registry:        opts.Registry,
		logger:          logger,
		metrics:         opts.Metrics,
		failureNotifier: opts.FailureNotifier,
		maxBatch:        maxBatch,
		userConcurrency: opts.UserConcurrency,
	}, nil
}

// RunCycle executes a single bounded processing cycle and reports the number
// of jobs it claimed. Per-job publish failures are routed into the
// retry/terminal path and never abort the batch; only job store failures are
// returned, joined, after the cycle has done what it could.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()

	due, err := d.jobs.FetchDue(ctx, d.maxBatch)
	if err != nil {
		return CycleResult{}, fmt.Errorf("fetch due jobs: %w", err)
	}
	if len(due) == 0 {
		d.logger.DebugContext(ctx, "no due publish jobs")
		return CycleResult{}, nil
	}

	claimed, claimErrs := d.claimBatch(ctx, due)
	if len(claimed) == 0 {
		return CycleResult{}, errors.Join(claimErrs...)
	}

	storeErrs := append([]error{}, claimErrs...)
	var mu sync.Mutex
	recordStoreErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		storeErrs = append(storeErrs, err)
	}

	byUser, userOrder := groupByUser(claimed)

	g, groupCtx := errgroup.WithContext(ctx)
	if d.userConcurrency > 0 {
		g.SetLimit(d.userConcurrency)
	}
	for _, userID := range userOrder {
		jobs := byUser[userID]
		g.Go(func() error {
			d.processUserJobs(groupCtx, userID, jobs, recordStoreErr)
			return nil
		})
	}
	// Workers never return errors; store failures are collected per job.
	_ = g.Wait()

	result := CycleResult{Processed: len(claimed)}
	cycleErr := errors.Join(storeErrs...)

	metrics.EmitDispatchCycle(d.metrics, metrics.DispatchCycle{
		Fetched:  len(due),
		Claimed:  len(claimed),
		Duration: time.Since(start),
		Err:      cycleErr,
	})
	d.logger.InfoContext(ctx, "dispatch cycle complete",
		"fetched", len(due),
		"claimed", len(claimed),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, cycleErr
}

// claimBatch attempts to claim every fetched job. Jobs that lose the claim
// race are silently dropped; claim transport errors are collected so the
// cycle can still report what it managed.
func (d *Dispatcher) claimBatch(ctx context.Context, due []*model.PublishJob) ([]*model.PublishJob, []error) {
	claimed := make([]*model.PublishJob, 0, len(due))
	var errs []error
	for _, job := range due {
		won, err := d.jobs.Claim(ctx, job.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim job %s: %w", job.ID, err))
			continue
		}
		if !won {
			continue
		}
		job.Status = model.JobStatusProcessing
		claimed = append(claimed, job)
	}
	return claimed, errs
}

// groupByUser partitions jobs by owner, preserving fetch order both across
// the user list and within each user's jobs.
func groupByUser(jobs []*model.PublishJob) (map[string][]*model.PublishJob, []string) {
	byUser := make(map[string][]*model.PublishJob)
	var order []string
	for _, job := range jobs {
		if _, seen := byUser[job.UserID]; !seen {
			order = append(order, job.UserID)
		}
		byUser[job.UserID] = append(byUser[job.UserID], job)
	}
	return byUser, order
}

// processUserJobs resolves the user's integrations once, then publishes each
// job sequentially in fetch order. Sequential processing per user bounds
// concurrent API usage against any one account.
func (d *Dispatcher) processUserJobs(
	ctx context.Context,
	userID string,
	jobs []*model.PublishJob,
	recordStoreErr func(error),
) {
	integrations, lookupErr := d.integrations.ActiveForUser(ctx, userID)
	if lookupErr != nil {
		d.logger.ErrorContext(ctx, "integration lookup failed",
			"user_id", userID,
			"error", lookupErr,
		)
	}

	for _, job := range jobs {
		var result publish.Result
		if lookupErr != nil {
			result = publish.Failure("integration lookup failed: %v", lookupErr)
		} else {
			result = d.publishJob(ctx, job, integrations)
		}
		d.recordOutcome(ctx, job, result, recordStoreErr)
	}
}

// publishJob picks the adapter and integration for the job and invokes the
// publish capability. Every failure mode comes back as a structured Result.
func (d *Dispatcher) publishJob(
	ctx context.Context,
	job *model.PublishJob,
	integrations map[string]model.Integration,
) publish.Result {
	platform := job.PlatformKey()

	adapter, ok := d.registry.Lookup(platform)
	if !ok {
		return publish.Failure("Unsupported platform %s", job.Platform)
	}

	integration, ok := integrations[platform]
	if !ok {
		return publish.Failure("no active integration for %s", platform)
	}

	return safePublish(ctx, adapter, publish.Request{
		Content:     job.Content,
		MediaURLs:   job.MediaURLs,
		Integration: integration,
	})
}

// safePublish converts an adapter panic into a failure result so one job can
// never take down the batch.
func safePublish(ctx context.Context, adapter publish.Adapter, req publish.Request) (result publish.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = publish.Failure("adapter panic: %v", r)
		}
	}()
	return adapter.Publish(ctx, req)
}

// recordOutcome persists the publish result. Store failures are collected,
// not thrown, so sibling jobs keep processing.
func (d *Dispatcher) recordOutcome(
	ctx context.Context,
	job *model.PublishJob,
	result publish.Result,
	recordStoreErr func(error),
) {
	if result.OK {
		if err := d.jobs.MarkSucceeded(ctx, job.ID); err != nil {
			recordStoreErr(fmt.Errorf("mark job %s succeeded: %w", job.ID, err))
		}
		metrics.EmitPublishOutcome(d.metrics, job.PlatformKey(), true)
		d.logger.InfoContext(ctx, "publish succeeded",
			"job_id", job.ID,
			"platform", job.PlatformKey(),
		)
		return
	}

	if err := d.jobs.MarkFailedOrRetry(ctx, job, result.Error); err != nil {
		recordStoreErr(fmt.Errorf("fail job %s: %w", job.ID, err))
		return
	}
	metrics.EmitPublishOutcome(d.metrics, job.PlatformKey(), false)
	d.logger.WarnContext(ctx, "publish failed",
		"job_id", job.ID,
		"platform", job.PlatformKey(),
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"terminal", job.Status == model.JobStatusFailed,
		"error", result.Error,
	)

	if job.Status == model.JobStatusFailed && d.failureNotifier != nil {
		d.failureNotifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:      job.ID,
			UserID:     job.UserID,
			Platform:   job.PlatformKey(),
			Attempts:   job.Attempts,
			MaxRetries: job.MaxAttempts,
			Error:      result.Error,
			OccurredAt: time.Now(),
		})
	}
}
