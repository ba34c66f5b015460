package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/publora/publora/internal/data/pgxutil"
	"github.com/publora/publora/internal/domain/model"
	apperrors "github.com/publora/publora/internal/errors"
)

// CreateBatch enqueues several publish jobs in a single transaction, typically
// the same post fanned out across platforms. All-or-nothing: one invalid or
// conflicting request rolls back the whole batch.
func (r *JobRepo) CreateBatch(ctx context.Context, reqs []*model.CreateJobRequest) ([]*model.PublishJob, error) {
	if len(reqs) == 0 {
		return nil, errors.New("at least one create job request is required")
	}
	for i, req := range reqs {
		if req == nil {
			return nil, fmt.Errorf("create job request %d is nil", i)
		}
		if err := req.Validate(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation,
				fmt.Sprintf("invalid publish job %d", i))
		}
	}

	jobs := make([]*model.PublishJob, 0, len(reqs))
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			for _, req := range reqs {
				job, insertErr := r.insertJobTx(ctx, tx, req)
				if insertErr != nil {
					return insertErr
				}
				jobs = append(jobs, job)
			}
			return nil
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return jobs, nil
}

func (r *JobRepo) insertJobTx(ctx context.Context, tx *sql.Tx, req *model.CreateJobRequest) (*model.PublishJob, error) {
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

	row := tx.QueryRowContext(ctx, `
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
		return nil, fmt.Errorf("insert publish job: %w", scanErr)
	}
	return job, nil
}
