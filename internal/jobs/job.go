package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the coarse lifecycle bucket of a job, derived from its stage.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Stage is the fine-grained pipeline step a job is currently in.
type Stage string

const (
	StageQueued         Stage = "queued"
	StageUploading      Stage = "uploading"
	StageExtractingText Stage = "extracting_text"
	StageClassifying    Stage = "classifying"
	StageAnalyzing      Stage = "analyzing"
	StageStoring        Stage = "storing"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
)

// stageOrder fixes the success path. failed is reachable from any
// non-terminal stage and has no position of its own.
var stageOrder = []Stage{
	StageQueued,
	StageUploading,
	StageExtractingText,
	StageClassifying,
	StageAnalyzing,
	StageStoring,
	StageCompleted,
}

// stageProgress is the only source of a job's progress value; failed freezes
// whatever value the job had when it failed.
var stageProgress = map[Stage]int{
	StageQueued:         0,
	StageUploading:      10,
	StageExtractingText: 30,
	StageClassifying:    50,
	StageAnalyzing:      70,
	StageStoring:        90,
	StageCompleted:      100,
}

var stageDescriptions = map[Stage]string{
	StageQueued:         "Queued for processing",
	StageUploading:      "Uploading document",
	StageExtractingText: "Extracting text",
	StageClassifying:    "Classifying document",
	StageAnalyzing:      "Analyzing document",
	StageStoring:        "Storing results",
	StageCompleted:      "Processing complete",
	StageFailed:         "Processing failed",
}

// JobError captures where and why a job failed. The message is sanitized
// before it is stored.
type JobError struct {
	Message string `json:"message"`
	Stage   Stage  `json:"stage"`
}

// Job is the unit of work tracked end to end through the pipeline.
type Job struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	OwnerID          string          `json:"owner_id"`
	OwnerEmail       string          `json:"owner_email"`
	Status           Status          `json:"status"`
	Stage            Stage           `json:"stage"`
	ProgressPercent  int             `json:"progress_percent"`
	OriginalFilename string          `json:"original_filename"`
	FileSizeBytes    int64           `json:"file_size_bytes"`
	ContentType      string          `json:"content_type,omitempty"`
	DocumentType     string          `json:"document_type,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            *JobError       `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// String returns a short representation for logs.
func (j *Job) String() string {
	return fmt.Sprintf("Job{ID: %s, Tenant: %s, Stage: %s, Progress: %d%%}",
		j.ID, j.TenantID, j.Stage, j.ProgressPercent)
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone returns a deep copy so stores can hand out snapshots safely.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// WorkStages returns the pipeline stages a worker advances through, in order.
func WorkStages() []Stage {
	return []Stage{StageUploading, StageExtractingText, StageClassifying, StageAnalyzing, StageStoring}
}

// ProgressFor returns the fixed progress value for a stage. failed has no
// entry; callers keep the previous value.
func ProgressFor(stage Stage) (int, bool) {
	p, ok := stageProgress[stage]
	return p, ok
}

// Describe returns the human-readable description of a stage shown to
// polling clients.
func Describe(stage Stage) string {
	if d, ok := stageDescriptions[stage]; ok {
		return d
	}
	return string(stage)
}

func stageIndex(stage Stage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// statusFor derives the coarse status bucket from a stage.
func statusFor(stage Stage) Status {
	switch stage {
	case StageQueued:
		return StatusQueued
	case StageCompleted:
		return StatusCompleted
	case StageFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// CanAdvance reports whether moving between two stages is a legal forward
// transition on the success path. Terminal stages admit no moves, and the
// terminal stages themselves are never targets of a plain advance.
func CanAdvance(from, to Stage) bool {
	if from == StageCompleted || from == StageFailed {
		return false
	}
	if to == StageCompleted || to == StageFailed || to == StageQueued {
		return false
	}
	fi, ti := stageIndex(from), stageIndex(to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti > fi
}
