package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/publora/publora/internal/errors"

	"github.com/publora/publora/internal/domain/model"
)

// Create enqueues a new publish job in pending state.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.PublishJob, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid publish job")
	}

	mediaJSON, payloadJSON, err := encodeJobJSON(req.MediaURLs, req.Payload)
	if err != nil {
		return nil, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.defaultRetries
	}

	now := r.timeProvider.Now().UTC()
	runAt := now
	if req.RunAt != nil {
		runAt = req.RunAt.UTC()
	}

	row := r.DB.QueryRowContext(ctx, `
      INSERT INTO publish_jobs(id, user_id, post_id, platform, content, media_urls, run_at, idempotency_key, status, max_attempts, payload)
      VALUES ($1, $2, $3, lower($4), $5, $6, $7, $8, 'pending', $9, $10)
      RETURNING `+jobColumns,
		uuid.NewString(),
		req.UserID,
		req.PostID,
		strings.TrimSpace(req.Platform),
		req.Content,
		mediaJSON,
		runAt,
		req.IdempotencyKey,
		maxAttempts,
		payloadJSON,
	)

	job, scanErr := scanJobFromRow(row)
	if scanErr != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("insert publish job: %w", scanErr))
	}
	return job, nil
}

// FetchDue returns up to limit pending jobs whose run_at has passed, oldest
// run_at first. Read-only; claiming happens separately.
func (r *JobRepo) FetchDue(ctx context.Context, limit int) ([]*model.PublishJob, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	now := r.timeProvider.Now().UTC()
	rows, err := r.DB.QueryContext(ctx, `
      SELECT `+jobColumns+`
      FROM publish_jobs
      WHERE status = 'pending' AND run_at <= $1
      ORDER BY run_at ASC
      LIMIT $2
    `, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []*model.PublishJob
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan due job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate due jobs: %w", rowsErr)
	}
	return jobs, nil
}

// Claim atomically transitions a job from pending to processing. The WHERE
// clause on status is the sole concurrency-safety primitive: when two
// dispatcher runs race, exactly one UPDATE matches.
func (r *JobRepo) Claim(ctx context.Context, jobID string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
      UPDATE publish_jobs
      SET status = 'processing',
          updated_at = $2
      WHERE id = $1 AND status = 'pending'
    `, jobID, now)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkSucceeded records terminal success and clears the error field.
// A second call finds the job already succeeded and changes nothing.
func (r *JobRepo) MarkSucceeded(ctx context.Context, jobID string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
      UPDATE publish_jobs
      SET status = 'succeeded',
          last_error = NULL,
          updated_at = $2
      WHERE id = $1 AND status IN ('processing', 'succeeded')
    `, jobID, now)
	if err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}

	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "mark succeeded matched no rows", "job_id", jobID)
	}
	return nil
}

// MarkFailedOrRetry consumes one attempt in a single conditional UPDATE.
// When the new attempt count reaches the budget the job terminally fails and
// run_at is left untouched; otherwise it returns to pending with run_at
// pushed out by the backoff policy. The passed job is updated in place so
// callers can observe the resulting state.
func (r *JobRepo) MarkFailedOrRetry(ctx context.Context, job *model.PublishJob, reason string) error {
	if job == nil {
		return errors.New("job is required")
	}

	now := r.timeProvider.Now()
	retryAt := now.Add(r.backoff(job.Attempts + 1)).UTC()

	var (
		status   model.JobStatus
		attempts int
		runAt    time.Time
	)
	err := r.DB.QueryRowContext(ctx, `
      UPDATE publish_jobs
      SET
        last_error = $2,
        attempts = attempts + 1,
        status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
        run_at = CASE WHEN attempts + 1 >= max_attempts THEN run_at ELSE $3::timestamptz END,
        updated_at = $4
      WHERE id = $1 AND status = 'processing'
      RETURNING status, attempts, run_at
    `, job.ID, reason, retryAt, now.UTC()).Scan(&status, &attempts, &runAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("fail publish job: %w", err)
	}

	job.Status = status
	job.Attempts = attempts
	job.RunAt = runAt
	lastErr := reason
	job.LastError = &lastErr

	if r.logger != nil && status == model.JobStatusFailed {
		r.logger.WarnContext(ctx, "publish job terminally failed",
			"job_id", job.ID,
			"platform", job.Platform,
			"attempts", attempts,
			"error", reason,
		)
	}
	return nil
}

// Cancel withdraws a pending job before it is claimed.
func (r *JobRepo) Cancel(ctx context.Context, jobID string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
      UPDATE publish_jobs
      SET status = 'cancelled',
          updated_at = $2
      WHERE id = $1 AND status = 'pending'
    `, jobID, now)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.GetByID(ctx, jobID); getErr != nil {
			return getErr
		}
		return ErrJobNotCancellable
	}
	return nil
}

// GetByID retrieves a publish job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, jobID string) (*model.PublishJob, error) {
	row := r.DB.QueryRowContext(ctx, `
      SELECT `+jobColumns+`
      FROM publish_jobs
      WHERE id = $1
    `, jobID)

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get publish job: %w", err)
	}
	return job, nil
}

// Stats returns counts of publish jobs per lifecycle state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
      SELECT
        count(*) FILTER (WHERE status = 'pending')    AS pending,
        count(*) FILTER (WHERE status = 'processing') AS processing,
        count(*) FILTER (WHERE status = 'succeeded')  AS succeeded,
        count(*) FILTER (WHERE status = 'failed')     AS failed,
        count(*) FILTER (WHERE status = 'cancelled')  AS cancelled
      FROM publish_jobs
    `).Scan(&s.Pending, &s.Processing, &s.Succeeded, &s.Failed, &s.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("publish job stats: %w", err)
	}
	return &s, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJobFromRow(scanner jobRowScanner) (*model.PublishJob, error) {
	job := &model.PublishJob{}
	var (
		postID, idemKey, lastError sql.NullString
		mediaRaw, payloadRaw       []byte
	)
	if err := scanner.Scan(
		&job.ID,
		&job.UserID,
		&postID,
		&job.Platform,
		&job.Content,
		&mediaRaw,
		&job.RunAt,
		&idemKey,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&lastError,
		&payloadRaw,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.PostID = cloneNullableString(postID)
	job.IdempotencyKey = cloneNullableString(idemKey)
	job.LastError = cloneNullableString(lastError)

	if len(mediaRaw) > 0 {
		if err := json.Unmarshal(mediaRaw, &job.MediaURLs); err != nil {
			return nil, fmt.Errorf("decode media urls: %w", err)
		}
	}
	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &job.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func encodeJobJSON(mediaURLs []string, payload map[string]any) ([]byte, []byte, error) {
	media := mediaURLs
	if media == nil {
		media = []string{}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return nil, nil, fmt.Errorf("encode media urls: %w", err)
	}

	payloadJSON := []byte(`{}`)
	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode payload: %w", err)
		}
	}
	return mediaJSON, payloadJSON, nil
}
