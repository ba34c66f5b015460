package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/publora/publora/internal/domain/model"
)

// batchJobPayload fans one post out to several platforms in a single
// transactional enqueue.
type batchJobPayload struct {
	UserID         string         `json:"user_id"`
	PostID         *string        `json:"post_id,omitempty"`
	Platforms      []string       `json:"platforms"`
	Content        string         `json:"content"`
	MediaURLs      []string       `json:"media_urls,omitempty"`
	RunAt          *time.Time     `json:"run_at,omitempty"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	MaxAttempts    int            `json:"max_attempts"`
	Payload        map[string]any `json:"payload,omitempty"`
}

func (p *batchJobPayload) toRequests() ([]*model.CreateJobRequest, error) {
	if len(p.Platforms) == 0 {
		return nil, errors.New("at least one platform is required")
	}

	reqs := make([]*model.CreateJobRequest, 0, len(p.Platforms))
	for _, platform := range p.Platforms {
		var idemKey *string
		if p.IdempotencyKey != nil {
			// Keys are unique per job, so scope the caller's key per platform.
			key := *p.IdempotencyKey + ":" + platform
			idemKey = &key
		}
		reqs = append(reqs, &model.CreateJobRequest{
			UserID:         p.UserID,
			PostID:         p.PostID,
			Platform:       platform,
			Content:        p.Content,
			MediaURLs:      p.MediaURLs,
			RunAt:          p.RunAt,
			IdempotencyKey: idemKey,
			MaxAttempts:    p.MaxAttempts,
			Payload:        p.Payload,
		})
	}
	return reqs, nil
}

func handleCreateJobBatch(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload batchJobPayload
		if !DecodeJSON(w, r, &payload) {
			return
		}

		reqs, err := payload.toRequests()
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
			return
		}
		for _, req := range reqs {
			if err := req.Validate(); err != nil {
				WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
				return
			}
		}

		created, err := jobs.CreateBatch(r.Context(), reqs)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, map[string]any{"jobs": created})
	}
}
