// Package model defines the core data types shared across the publora publishing pipeline.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a publish job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to become due.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job has been claimed by a dispatcher cycle.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusSucceeded indicates the post was accepted by the platform.
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed indicates the retry budget is exhausted.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was withdrawn before publishing.
	JobStatusCancelled JobStatus = "cancelled"
)

// Valid returns true if the JobStatus is one of the defined states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transitions are defined for the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// ErrNoJobsDue is returned when a fetch finds no due jobs.
var ErrNoJobsDue = errors.New("no jobs due")

// PublishJob is one scheduled attempt to publish content to one platform for one user.
type PublishJob struct {
	ID             string         `json:"id"                        db:"id"`
	UserID         string         `json:"user_id"                   db:"user_id"`
	PostID         *string        `json:"post_id,omitempty"         db:"post_id"`
	Platform       string         `json:"platform"                  db:"platform"`
	Content        string         `json:"content"                   db:"content"`
	MediaURLs      []string       `json:"media_urls,omitempty"      db:"media_urls"`
	RunAt          time.Time      `json:"run_at"                    db:"run_at"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Status         JobStatus      `json:"status"                    db:"status"`
	Attempts       int            `json:"attempts"                  db:"attempts"`
	MaxAttempts    int            `json:"max_attempts"              db:"max_attempts"`
	LastError      *string        `json:"last_error,omitempty"      db:"last_error"`
	Payload        map[string]any `json:"payload,omitempty"         db:"payload"`
	CreatedAt      time.Time      `json:"created_at"                db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"                db:"updated_at"`
}

// PlatformKey returns the canonical lower-cased platform identifier used for
// adapter and integration matching.
func (j *PublishJob) PlatformKey() string {
	return strings.ToLower(strings.TrimSpace(j.Platform))
}

// CreateJobRequest represents a request to enqueue a new publish job.
type CreateJobRequest struct {
	UserID         string         `json:"user_id"`
	PostID         *string        `json:"post_id,omitempty"`
	Platform       string         `json:"platform"`
	Content        string         `json:"content"`
	MediaURLs      []string       `json:"media_urls,omitempty"`
	RunAt          *time.Time     `json:"run_at,omitempty"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	MaxAttempts    int            `json:"max_attempts"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(r.Platform) == "" {
		return errors.New("platform is required")
	}
	if r.Content == "" {
		return errors.New("content is required")
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be >= 0, got %d", r.MaxAttempts)
	}
	return nil
}

// JobStats represents counts of publish jobs per lifecycle state.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}
