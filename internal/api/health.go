package api

import (
	"net/http"
	"time"
)

// Pinger checks connectivity of the backing store. *sql.DB satisfies it.
type Pinger interface {
	Ping() error
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

type ReadinessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Database  string    `json:"database"`
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db      Pinger
	service string
}

// NewHealthHandler creates the probe handlers. db may be nil for stores
// without a connection to ping.
func NewHealthHandler(db Pinger, service string) *HealthHandler {
	return &HealthHandler{db: db, service: service}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   h.service,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dbStatus := "unknown"
	if h.db != nil {
		dbStatus = "connected"
		if err := h.db.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
				Status:    "not ready",
				Timestamp: time.Now(),
				Service:   h.service,
				Database:  "disconnected",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Service:   h.service,
		Database:  dbStatus,
	})
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Service:   h.service,
	})
}
