package job

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
	"github.com/courtside-labs/crm-sync/pkg/common/models"
)

// Locker is what the trigger needs from a run lock; nil disables locking.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

type HTTPHandler struct {
	runner *Runner
	lock   Locker
}

func NewHTTPHandler(runner *Runner, lock Locker) *HTTPHandler {
	return &HTTPHandler{runner: runner, lock: lock}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/", h.handleTrigger).Methods(http.MethodGet, http.MethodPost)
}

// handleHealth is liveness only; it says nothing about job execution.
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "crm-sync",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleTrigger runs one job synchronously and maps the outcome onto the
// status code: 200 on overall success, 409 when a run is already in
// flight, 500 otherwise.
func (h *HTTPHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.lock != nil {
		ok, err := h.lock.Acquire(ctx)
		if err != nil {
			logger.Log.WithError(err).Error("Failed to acquire job lock")
			writeJSON(w, http.StatusInternalServerError, models.JobResult{
				Status:  models.StatusError,
				Message: "job lock unavailable",
			})
			return
		}
		if !ok {
			writeJSON(w, http.StatusConflict, models.JobResult{
				Status:  models.StatusError,
				Message: "another job is already running",
			})
			return
		}
		defer h.lock.Release(ctx)
	}

	result := h.runner.Run(ctx)
	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.WithError(err).Error("Failed to encode response")
	}
}
