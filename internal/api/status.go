package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/docmill/docmill/internal/jobs"
	"github.com/docmill/docmill/internal/logger"
)

// jobSnapshot is the polling client's view of a job. Ownership fields are
// deliberately absent.
type jobSnapshot struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Stage            string          `json:"stage"`
	StageDescription string          `json:"stage_description"`
	Progress         int             `json:"progress"`
	DocumentType     string          `json:"document_type,omitempty"`
	OriginalFilename string          `json:"original_filename"`
	FileSizeBytes    int64           `json:"file_size_bytes"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
	CompletedAt      string          `json:"completed_at,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            *jobs.JobError  `json:"error,omitempty"`
}

func snapshotOf(job *jobs.Job) jobSnapshot {
	s := jobSnapshot{
		ID:               job.ID,
		Status:           string(job.Status),
		Stage:            string(job.Stage),
		StageDescription: jobs.Describe(job.Stage),
		Progress:         job.ProgressPercent,
		DocumentType:     job.DocumentType,
		OriginalFilename: job.OriginalFilename,
		FileSizeBytes:    job.FileSizeBytes,
		CreatedAt:        job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        job.UpdatedAt.UTC().Format(time.RFC3339),
		Result:           job.Result,
		Error:            job.Error,
	}
	if job.CompletedAt != nil {
		s.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	return s
}

// writeJobNotFound is the single source of the not-found response so an
// unknown id and a non-owned id are byte-identical to the caller.
func writeJobNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
}

// ownedBy reports whether the job belongs to the caller. The owner id must
// match exactly; the email comparison is case-insensitive.
func ownedBy(job *jobs.Job, id *Identity) bool {
	if job.OwnerID != id.UserID {
		return false
	}
	return strings.EqualFold(job.OwnerEmail, id.Email)
}

// handleGetJob returns the current snapshot for a job the caller owns.
// A foreign job id is indistinguishable from a nonexistent one.
func handleGetJob(w http.ResponseWriter, r *http.Request, lifecycle *jobs.Lifecycle, jobID string) {
	identity := identityFrom(r.Context())
	log := logger.WithCorrelationID(correlationIDFrom(r.Context()))

	job, err := lifecycle.Get(r.Context(), identity.TenantID, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeJobNotFound(w)
			return
		}
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	if !ownedBy(job, identity) {
		// Distinct from a genuine not-found in the logs only; the response
		// must not reveal that the job exists.
		log.Warn().
			Str("security_event", "job_ownership_mismatch").
			Str("job_id", jobID).
			Str("tenant_id", identity.TenantID).
			Str("caller_id", identity.UserID).
			Msg("Status request for job owned by another user")
		writeJobNotFound(w)
		return
	}

	writeJSON(w, http.StatusOK, snapshotOf(job))
}

// handleListJobs returns the caller's recent jobs. The store filters by
// owner so other users' activity in the tenant cannot crowd the caller's
// jobs out of the limit window.
func handleListJobs(w http.ResponseWriter, r *http.Request, lifecycle *jobs.Lifecycle) {
	identity := identityFrom(r.Context())
	log := logger.WithCorrelationID(correlationIDFrom(r.Context()))

	owned, err := lifecycle.ListByOwner(r.Context(), identity.TenantID, identity.UserID, 100)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list jobs")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	snapshots := make([]jobSnapshot, 0, len(owned))
	for _, job := range owned {
		if !ownedBy(job, identity) {
			continue
		}
		snapshots = append(snapshots, snapshotOf(job))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  snapshots,
		"count": len(snapshots),
	})
}
