// Package dispatchrunner runs the publish dispatcher on a fixed interval.
package dispatchrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/publora/publora/internal/service"
)

const defaultInterval = 15 * time.Minute

// CycleRunner executes one dispatch cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (service.CycleResult, error)
}

// Runner ticks the dispatcher at a configurable interval until its context is
// cancelled. Overlapping cycles cannot double-publish because claiming is a
// compare-and-swap, so the runner makes no effort to serialize them.
type Runner struct {
	dispatcher CycleRunner
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Dispatcher CycleRunner
	Interval   time.Duration
	// RunOnStart triggers a cycle immediately instead of waiting out the
	// first interval.
	RunOnStart bool
	Logger     *slog.Logger
}

// NewRunner creates a dispatch runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dispatch_runner")
	}

	return &Runner{
		dispatcher: opts.Dispatcher,
		interval:   interval,
		runOnStart: opts.RunOnStart,
		logger:     logger,
	}, nil
}

// Run ticks the dispatcher until the context is cancelled. Cycle errors are
// logged and the loop keeps going; a queue worker that dies on a transient
// database error would strand claimed jobs.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "dispatch runner starting", "interval", r.interval)

	if r.runOnStart {
		r.tick(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "dispatch runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	result, err := r.dispatcher.RunCycle(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "dispatch cycle error",
			"processed", result.Processed,
			"error", err,
		)
		return
	}
	if result.Processed > 0 {
		r.logger.InfoContext(ctx, "dispatch cycle processed jobs", "processed", result.Processed)
	}
}
