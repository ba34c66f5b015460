package httpx

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/publora/publora/internal/data"
	"github.com/publora/publora/internal/domain/model"
	apperrors "github.com/publora/publora/internal/errors"
)

func handleCreateJob(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.CreateJobRequest
		if !DecodeJSON(w, r, &req) {
			return
		}

		if err := req.Validate(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
			return
		}

		job, err := jobs.Create(r.Context(), &req)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, job)
	}
}

func handleGetJob(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := jobs.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, job)
	}
}

func handleCancelJob(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := jobs.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func handleStatus(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := jobs.Stats(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, stats)
	}
}

// writeStoreError maps repository errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrJobNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case errors.Is(err, data.ErrJobNotCancellable):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "conflict", Err: err})
	case apperrors.IsNotFound(err):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case apperrors.IsValidation(err):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
	case apperrors.IsConflict(err):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "conflict", Err: err})
	case apperrors.IsTimeout(err), apperrors.IsCanceled(err):
		WriteError(w, ErrorParams{Code: http.StatusGatewayTimeout, ErrCode: "timeout", Err: err})
	default:
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal_error",
			Err:     errors.New("internal server error"),
		})
	}
}
