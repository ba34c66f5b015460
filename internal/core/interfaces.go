// Package core defines the boundary interfaces consumed by the dispatcher so
// services stay decoupled from concrete storage implementations.
package core

import (
	"context"

	"github.com/publora/publora/internal/domain/model"
)

// JobStore is the durable queue of scheduled publish jobs. All mutations are
// single atomic storage operations; there is no read-modify-write spanning
// round trips.
type JobStore interface {
	// FetchDue returns up to limit pending jobs with run_at <= now, oldest
	// run_at first. Read-only.
	FetchDue(ctx context.Context, limit int) ([]*model.PublishJob, error)

	// Claim atomically transitions a job from pending to processing and
	// reports whether this caller won the transition. Exactly one of two
	// racing claims succeeds.
	Claim(ctx context.Context, jobID string) (bool, error)

	// MarkSucceeded records terminal success and clears the error field.
	// Calling it twice is a no-op on the second call.
	MarkSucceeded(ctx context.Context, jobID string) error

	// MarkFailedOrRetry increments attempts and either reschedules the job
	// (pending, run_at = now + backoff) or terminally fails it when the
	// attempt budget is spent. The reason is recorded as the last error.
	MarkFailedOrRetry(ctx context.Context, job *model.PublishJob, reason string) error
}

// IntegrationSource resolves a user's currently-active platform integrations.
type IntegrationSource interface {
	// ActiveForUser returns active integrations keyed by lower-cased
	// platform name. Pure read; duplicate active platforms resolve
	// last-write-wins.
	ActiveForUser(ctx context.Context, userID string) (map[string]model.Integration, error)
}

// JobEnqueuer creates publish jobs. Implemented by the job repository and
// consumed by the HTTP layer.
type JobEnqueuer interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.PublishJob, error)
}
