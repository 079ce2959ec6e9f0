package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docmill/docmill/internal/logger"
	"github.com/docmill/docmill/internal/metrics"
)

// Lifecycle is the sole writer of job state. It enforces the stage state
// machine and keeps the derived fields (status, progress, timestamps)
// consistent with it.
type Lifecycle struct {
	store Store
}

// NewLifecycle creates a lifecycle manager over the given store.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// CreateParams carries the creation-time inputs for a job. The ownership
// tuple comes from the authenticated caller and is write-once.
type CreateParams struct {
	TenantID    string
	OwnerID     string
	OwnerEmail  string
	Filename    string
	SizeBytes   int64
	ContentType string
}

// Create allocates an id and writes the initial record with stage and
// status queued at zero progress.
func (l *Lifecycle) Create(ctx context.Context, p CreateParams) (*Job, error) {
	if strings.TrimSpace(p.TenantID) == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, &ValidationError{Field: "owner_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(p.Filename) == "" {
		return nil, &ValidationError{Field: "filename", Reason: "must not be empty"}
	}
	if p.SizeBytes <= 0 {
		return nil, &ValidationError{Field: "file_size_bytes", Reason: "must be positive"}
	}

	now := time.Now().UTC()
	job := &Job{
		ID:               uuid.New().String(),
		TenantID:         p.TenantID,
		OwnerID:          p.OwnerID,
		OwnerEmail:       p.OwnerEmail,
		Status:           StatusQueued,
		Stage:            StageQueued,
		ProgressPercent:  0,
		OriginalFilename: p.Filename,
		FileSizeBytes:    p.SizeBytes,
		ContentType:      p.ContentType,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := l.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.JobsSubmittedTotal.Inc()
	logger.WithJob(job.ID, job.TenantID).Info().
		Str("filename", job.OriginalFilename).
		Int64("size_bytes", job.FileSizeBytes).
		Msg("Job created")
	return job, nil
}

// AdvanceStage moves a job forward to newStage, recomputing progress and
// status. It fails with InvalidTransitionError when newStage is not
// reachable from the current stage.
func (l *Lifecycle) AdvanceStage(ctx context.Context, tenantID, id string, newStage Stage) (*Job, error) {
	job, err := l.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if !CanAdvance(job.Stage, newStage) {
		return nil, &InvalidTransitionError{JobID: id, From: job.Stage, To: newStage}
	}

	progress, ok := ProgressFor(newStage)
	if !ok {
		return nil, &InvalidTransitionError{JobID: id, From: job.Stage, To: newStage}
	}

	job.Stage = newStage
	job.Status = statusFor(newStage)
	job.ProgressPercent = progress
	job.UpdatedAt = time.Now().UTC()

	if err := l.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("advance stage: %w", err)
	}

	logger.WithJob(id, tenantID).Info().
		Str("stage", string(newStage)).
		Int("progress", progress).
		Msg("Stage advanced")
	return job, nil
}

// SetDocumentType records the classifier's verdict on a non-terminal job so
// pollers can see what the document was identified as.
func (l *Lifecycle) SetDocumentType(ctx context.Context, tenantID, id, documentType string) (*Job, error) {
	job, err := l.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, &AlreadyTerminalError{JobID: id, Stage: job.Stage}
	}

	job.DocumentType = documentType
	job.UpdatedAt = time.Now().UTC()

	if err := l.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("set document type: %w", err)
	}
	return job, nil
}

// Complete transitions a job to the completed terminal state with its
// result. A second completion attempt yields AlreadyTerminalError and leaves
// the stored record untouched.
func (l *Lifecycle) Complete(ctx context.Context, tenantID, id string, result json.RawMessage) (*Job, error) {
	job, err := l.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, &AlreadyTerminalError{JobID: id, Stage: job.Stage}
	}

	now := time.Now().UTC()
	job.Stage = StageCompleted
	job.Status = StatusCompleted
	job.ProgressPercent = 100
	job.Result = result
	job.Error = nil
	job.UpdatedAt = now
	job.CompletedAt = &now

	if err := l.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}

	metrics.JobsCompletedTotal.Inc()
	logger.WithJob(id, tenantID).Info().Msg("Job completed")
	return job, nil
}

// Fail transitions a job to the failed terminal state, recording the stage
// at which the failure occurred. Progress is frozen at its last value so a
// client can see how far the job got. First writer wins; later attempts get
// AlreadyTerminalError.
func (l *Lifecycle) Fail(ctx context.Context, tenantID, id string, stageAtFailure Stage, message string) (*Job, error) {
	job, err := l.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, &AlreadyTerminalError{JobID: id, Stage: job.Stage}
	}

	now := time.Now().UTC()
	job.Stage = StageFailed
	job.Status = StatusFailed
	job.Error = &JobError{Message: message, Stage: stageAtFailure}
	job.Result = nil
	job.UpdatedAt = now
	job.CompletedAt = &now

	if err := l.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}

	metrics.JobsFailedTotal.Inc()
	logger.WithJob(id, tenantID).Warn().
		Str("failed_stage", string(stageAtFailure)).
		Str("error", message).
		Msg("Job failed")
	return job, nil
}

// Get returns the current snapshot for a job.
func (l *Lifecycle) Get(ctx context.Context, tenantID, id string) (*Job, error) {
	return l.store.Get(ctx, tenantID, id)
}

// ListByTenant returns the tenant's most recent jobs, newest first.
func (l *Lifecycle) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Job, error) {
	return l.store.ListByTenant(ctx, tenantID, limit)
}

// ListByOwner returns one owner's most recent jobs within the tenant.
func (l *Lifecycle) ListByOwner(ctx context.Context, tenantID, ownerID string, limit int) ([]*Job, error) {
	return l.store.ListByOwner(ctx, tenantID, ownerID, limit)
}
