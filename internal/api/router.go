package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docmill/docmill/internal/jobs"
	"github.com/docmill/docmill/internal/logger"
	"github.com/docmill/docmill/internal/worker"
)

// AddRoutes wires all HTTP endpoints onto the mux.
func AddRoutes(
	mux *http.ServeMux,
	lifecycle *jobs.Lifecycle,
	dispatcher worker.Dispatcher,
	auth Authenticator,
	health *HealthHandler,
	maxUploadBytes int64,
) {
	mux.HandleFunc("/documents", correlationMiddleware(identityMiddleware(auth, handleDocuments(lifecycle, dispatcher, maxUploadBytes))))
	mux.HandleFunc("/jobs", correlationMiddleware(identityMiddleware(auth, handleJobs(lifecycle))))
	mux.HandleFunc("/jobs/", correlationMiddleware(identityMiddleware(auth, handleJobByID(lifecycle))))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", health.Health)
	mux.HandleFunc("/health/ready", health.Readiness)
	mux.HandleFunc("/health/live", health.Liveness)
}

func correlationMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", correlationID)
		next(w, r.WithContext(withCorrelationID(r.Context(), correlationID)))
	}
}

// identityMiddleware rejects requests without an authenticated identity and
// stores the identity on the context for handlers.
func identityMiddleware(auth Authenticator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := auth.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), id)))
	}
}

func handleDocuments(lifecycle *jobs.Lifecycle, dispatcher worker.Dispatcher, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		handleUpload(w, r, lifecycle, dispatcher, maxUploadBytes)
	}
}

func handleJobs(lifecycle *jobs.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		handleListJobs(w, r, lifecycle)
	}
}

func handleJobByID(lifecycle *jobs.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/jobs/")
		if id == "" || strings.Contains(id, "/") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
			return
		}
		handleGetJob(w, r, lifecycle, id)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}
