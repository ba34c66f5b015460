package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/publora/publora/internal/data"
	"github.com/publora/publora/internal/domain/model"
)

// JobBuilder builds publish jobs for tests with sensible defaults.
type JobBuilder struct {
	req model.CreateJobRequest
}

// NewJobBuilder returns a builder for a pending publish job.
func NewJobBuilder() *JobBuilder {
	return &JobBuilder{
		req: model.CreateJobRequest{
			UserID:   "user-1",
			Platform: "facebook",
			Content:  "hello from the test suite",
		},
	}
}

// WithUser sets the owning user.
func (b *JobBuilder) WithUser(userID string) *JobBuilder {
	b.req.UserID = userID
	return b
}

// WithPlatform sets the target platform.
func (b *JobBuilder) WithPlatform(platform string) *JobBuilder {
	b.req.Platform = platform
	return b
}

// WithContent sets the post content.
func (b *JobBuilder) WithContent(content string) *JobBuilder {
	b.req.Content = content
	return b
}

// WithMediaURLs sets attached media.
func (b *JobBuilder) WithMediaURLs(urls ...string) *JobBuilder {
	b.req.MediaURLs = urls
	return b
}

// WithRunAt schedules the job for a specific time.
func (b *JobBuilder) WithRunAt(runAt time.Time) *JobBuilder {
	b.req.RunAt = &runAt
	return b
}

// WithMaxAttempts sets the attempt budget.
func (b *JobBuilder) WithMaxAttempts(maxAttempts int) *JobBuilder {
	b.req.MaxAttempts = maxAttempts
	return b
}

// WithIdempotencyKey sets the external dedup key.
func (b *JobBuilder) WithIdempotencyKey(key string) *JobBuilder {
	b.req.IdempotencyKey = &key
	return b
}

// Request returns the built create request.
func (b *JobBuilder) Request() *model.CreateJobRequest {
	req := b.req
	return &req
}

// Create persists the job through the repository.
func (b *JobBuilder) Create(t TestingTB, repo *data.JobRepo) *model.PublishJob {
	t.Helper()
	job, err := repo.Create(context.Background(), b.Request())
	if err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}
	return job
}

// IntegrationParams describes an integrations row to insert directly.
type IntegrationParams struct {
	UserID      string
	Platform    string
	IsActive    bool
	Credentials map[string]string
	Config      map[string]string
	UpdatedAt   *time.Time
}

// InsertIntegration inserts an integrations row and returns its id. Rows are
// inserted directly because the pipeline itself never writes integrations.
func InsertIntegration(t TestingTB, db *sql.DB, p IntegrationParams) string {
	t.Helper()

	if p.Credentials == nil {
		p.Credentials = map[string]string{}
	}
	if p.Config == nil {
		p.Config = map[string]string{}
	}
	credsJSON, err := json.Marshal(p.Credentials)
	if err != nil {
		t.Fatalf("Failed to encode credentials: %v", err)
	}
	configJSON, err := json.Marshal(p.Config)
	if err != nil {
		t.Fatalf("Failed to encode config: %v", err)
	}

	updatedAt := time.Now().UTC()
	if p.UpdatedAt != nil {
		updatedAt = p.UpdatedAt.UTC()
	}

	id := uuid.NewString()
	_, err = db.ExecContext(context.Background(), `
      INSERT INTO integrations (id, user_id, platform, is_active, credentials, config, updated_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, id, p.UserID, p.Platform, p.IsActive, credsJSON, configJSON, updatedAt)
	if err != nil {
		t.Fatalf("Failed to insert test integration: %v", err)
	}
	return id
}
