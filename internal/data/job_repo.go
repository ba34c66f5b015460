package data

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrJobNotFound is returned when a publish job is not found.
	ErrJobNotFound = errors.New("publish job not found")
	// ErrJobNotCancellable is returned when attempting to cancel a job that
	// has already been claimed or finished.
	ErrJobNotCancellable = errors.New("publish job cannot be cancelled (must be pending)")
)

// BackoffFunc computes the retry delay for the given post-increment attempt count.
type BackoffFunc func(attempts int) time.Duration

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	// Backoff computes retry delays; defaults to a fixed 30s when nil.
	Backoff BackoffFunc
	// DefaultMaxAttempts is the attempt budget for jobs created without an
	// explicit one; defaults to 3.
	DefaultMaxAttempts int
	Logger             *slog.Logger
	TimeProvider       TimeProvider
}

// JobRepo provides database operations for the publish job queue.
type JobRepo struct {
	DB             *sql.DB
	backoff        BackoffFunc
	defaultRetries int
	timeProvider   TimeProvider
	logger         *slog.Logger
}

const (
	defaultRetryDelay  = 30 * time.Second
	defaultMaxAttempts = 3
)

// NewJobRepo creates a JobRepo with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = func(int) time.Duration { return defaultRetryDelay }
	}
	defaultRetries := cfg.DefaultMaxAttempts
	if defaultRetries <= 0 {
		defaultRetries = defaultMaxAttempts
	}

	return &JobRepo{
		DB:             db,
		backoff:        backoff,
		defaultRetries: defaultRetries,
		timeProvider:   tp,
		logger:         cfg.Logger,
	}
}

const jobColumns = `
  id,
  user_id,
  post_id,
  platform,
  content,
  media_urls,
  run_at,
  idempotency_key,
  status,
  attempts,
  max_attempts,
  last_error,
  payload,
  created_at,
  updated_at
`
