// Package httpx exposes the publish queue over HTTP: job management, an
// on-demand dispatch trigger, and health/status probes.
package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/publora/publora/internal/domain/model"
	"github.com/publora/publora/internal/service"
)

// JobService is the subset of job repository operations the HTTP layer needs.
type JobService interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.PublishJob, error)
	CreateBatch(ctx context.Context, reqs []*model.CreateJobRequest) ([]*model.PublishJob, error)
	GetByID(ctx context.Context, jobID string) (*model.PublishJob, error)
	Cancel(ctx context.Context, jobID string) error
	Stats(ctx context.Context) (*model.JobStats, error)
}

// DispatchTrigger runs one publish dispatch cycle on demand.
type DispatchTrigger interface {
	RunCycle(ctx context.Context) (service.CycleResult, error)
}

// RouterServices groups the dependencies the router wires into handlers.
type RouterServices struct {
	Jobs     JobService
	Dispatch DispatchTrigger
	Logger   *slog.Logger
}

// NewRouter builds the API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/healthz", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", handleStatus(services.Jobs))
		r.Post("/dispatch/run", handleDispatchRun(services.Dispatch, logger))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", handleCreateJob(services.Jobs))
			r.Post("/batch", handleCreateJobBatch(services.Jobs))
			r.Get("/{id}", handleGetJob(services.Jobs))
			r.Post("/{id}/cancel", handleCancelJob(services.Jobs))
		})
	})

	return r
}
