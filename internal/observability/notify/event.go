// Package notify defines the outbound failure notification contract.
package notify

import (
	"context"
	"time"
)

// JobFailurePayload describes a terminally failed publish job.
type JobFailurePayload struct {
	JobID      string
	UserID     string
	Platform   string
	Attempts   int
	MaxRetries int
	Error      string
	OccurredAt time.Time
}

// Sink delivers job failure notifications to one destination.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}
