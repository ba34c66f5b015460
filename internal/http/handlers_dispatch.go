package httpx

import (
	"errors"
	"log/slog"
	"net/http"
)

// handleDispatchRun triggers one dispatch cycle inline and reports how many
// jobs it claimed. Partial store failures still return the processed count;
// the cycle already did what it could.
func handleDispatchRun(dispatch DispatchTrigger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatch == nil {
			WriteError(w, ErrorParams{
				Code:    http.StatusServiceUnavailable,
				ErrCode: "dispatcher_unavailable",
				Err:     errors.New("dispatcher is not enabled"),
			})
			return
		}

		result, err := dispatch.RunCycle(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "dispatch cycle reported errors",
				"processed", result.Processed,
				"error", err,
			)
			WriteJSON(w, http.StatusOK, map[string]any{
				"processed": result.Processed,
				"errors":    err.Error(),
			})
			return
		}

		WriteJSON(w, http.StatusOK, result)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
