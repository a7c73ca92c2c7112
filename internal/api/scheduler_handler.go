package api

import (
	"net/http"

	"github.com/sungwon/newsletter/internal/logger"
)

// ListJobsHandler handles GET /api/v1/scheduler/jobs.
func ListJobsHandler(jobs JobScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending := jobs.Pending()
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"count": len(pending),
			"jobs":  pending,
		})
	}
}

// ReconcileHandler handles POST /api/v1/scheduler/reconcile.
func ReconcileHandler(jobs JobScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := jobs.Reconcile(r.Context())
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("manual reconciliation failed")
			respondError(w, http.StatusServiceUnavailable, "reconciliation failed")
			return
		}
		respondJSON(w, http.StatusOK, map[string]int{"scheduled": n})
	}
}
