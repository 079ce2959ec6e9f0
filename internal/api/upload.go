package api

import (
	"io"
	"net/http"

	"github.com/docmill/docmill/internal/jobs"
	"github.com/docmill/docmill/internal/logger"
	"github.com/docmill/docmill/internal/worker"
)

// uploadResponse is the accepted-before-completion acknowledgement. The
// client is expected to poll PollLocation until status is terminal.
type uploadResponse struct {
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	StageDescription string `json:"stage_description"`
	PollLocation     string `json:"poll_location"`
}

// handleUpload converts a multipart upload into a scheduled job and returns
// 202 before any pipeline work happens.
func handleUpload(w http.ResponseWriter, r *http.Request, lifecycle *jobs.Lifecycle, dispatcher worker.Dispatcher, maxUploadBytes int64) {
	identity := identityFrom(r.Context())
	log := logger.WithCorrelationID(correlationIDFrom(r.Context()))

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read upload")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file must not be empty"})
		return
	}

	job, err := lifecycle.Create(r.Context(), jobs.CreateParams{
		TenantID:    identity.TenantID,
		OwnerID:     identity.UserID,
		OwnerEmail:  identity.Email,
		Filename:    header.Filename,
		SizeBytes:   int64(len(payload)),
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		if jobs.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to create job")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	// Fire and forget: the request returns now, the pipeline runs on its
	// own schedule. If the job cannot even be dispatched it is failed
	// immediately so the poller is not left staring at queued forever.
	if err := dispatcher.Dispatch(r.Context(), worker.Task{Job: job, Payload: payload}); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to dispatch job")
		if _, failErr := lifecycle.Fail(r.Context(), job.TenantID, job.ID, jobs.StageQueued, "job could not be scheduled"); failErr != nil {
			log.Error().Err(failErr).Str("job_id", job.ID).Msg("Failed to record dispatch failure")
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:            job.ID,
		Status:           string(job.Status),
		StageDescription: jobs.Describe(job.Stage),
		PollLocation:     "/jobs/" + job.ID,
	})
}
