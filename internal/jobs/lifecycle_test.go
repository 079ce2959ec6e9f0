package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/docmill/docmill/internal/db"
	"github.com/docmill/docmill/internal/jobs"
)

func newLifecycle() *jobs.Lifecycle {
	return jobs.NewLifecycle(db.NewMemoryStore())
}

func mustCreate(t *testing.T, l *jobs.Lifecycle) *jobs.Job {
	t.Helper()
	job, err := l.Create(context.Background(), jobs.CreateParams{
		TenantID:    "acme",
		OwnerID:     "user-1",
		OwnerEmail:  "alice@example.com",
		Filename:    "invoice.pdf",
		SizeBytes:   2048,
		ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestCreate(t *testing.T) {
	l := newLifecycle()
	job := mustCreate(t, l)

	if job.ID == "" {
		t.Error("expected a generated id")
	}
	if job.Status != jobs.StatusQueued || job.Stage != jobs.StageQueued {
		t.Errorf("new job should be queued, got status=%s stage=%s", job.Status, job.Stage)
	}
	if job.ProgressPercent != 0 {
		t.Errorf("new job progress = %d, want 0", job.ProgressPercent)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got, err := l.Get(context.Background(), "acme", job.ID)
	if err != nil {
		t.Fatalf("Get after Create: %v", err)
	}
	if got.OwnerID != "user-1" || got.OwnerEmail != "alice@example.com" {
		t.Errorf("ownership not persisted: %s / %s", got.OwnerID, got.OwnerEmail)
	}
}

func TestCreateValidation(t *testing.T) {
	l := newLifecycle()
	base := jobs.CreateParams{
		TenantID: "acme", OwnerID: "user-1", Filename: "a.txt", SizeBytes: 1,
	}

	tests := []struct {
		name   string
		mutate func(*jobs.CreateParams)
	}{
		{"empty tenant", func(p *jobs.CreateParams) { p.TenantID = " " }},
		{"empty owner", func(p *jobs.CreateParams) { p.OwnerID = "" }},
		{"empty filename", func(p *jobs.CreateParams) { p.Filename = "" }},
		{"zero size", func(p *jobs.CreateParams) { p.SizeBytes = 0 }},
		{"negative size", func(p *jobs.CreateParams) { p.SizeBytes = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := l.Create(context.Background(), p)
			if !jobs.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestAdvanceThroughPipeline(t *testing.T) {
	l := newLifecycle()
	job := mustCreate(t, l)
	ctx := context.Background()

	prev := job.ProgressPercent
	for _, stage := range jobs.WorkStages() {
		updated, err := l.AdvanceStage(ctx, "acme", job.ID, stage)
		if err != nil {
			t.Fatalf("AdvanceStage(%s): %v", stage, err)
		}
		if updated.Status != jobs.StatusProcessing {
			t.Errorf("status at %s = %s, want processing", stage, updated.Status)
		}
		if updated.ProgressPercent <= prev {
			t.Errorf("progress at %s did not increase: %d -> %d", stage, prev, updated.ProgressPercent)
		}
		prev = updated.ProgressPercent
	}

	done, err := l.Complete(ctx, "acme", job.ID, json.RawMessage(`{"total":"12.50"}`))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != jobs.StatusCompleted || done.Stage != jobs.StageCompleted {
		t.Errorf("completed job has status=%s stage=%s", done.Status, done.Stage)
	}
	if done.ProgressPercent != 100 {
		t.Errorf("completed progress = %d, want 100", done.ProgressPercent)
	}
	if done.Result == nil || done.Error != nil {
		t.Errorf("completed job should carry result and no error: result=%s error=%v", done.Result, done.Error)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestAdvanceRejectsBackward(t *testing.T) {
	l := newLifecycle()
	job := mustCreate(t, l)
	ctx := context.Background()

	if _, err := l.AdvanceStage(ctx, "acme", job.ID, jobs.StageClassifying); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	_, err := l.AdvanceStage(ctx, "acme", job.ID, jobs.StageUploading)
	if !jobs.IsInvalidTransition(err) {
		t.Errorf("expected InvalidTransitionError, got %v", err)
	}

	// The rejected transition must not touch the stored record.
	got, err := l.Get(ctx, "acme", job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stage != jobs.StageClassifying || got.ProgressPercent != 50 {
		t.Errorf("record changed by rejected transition: stage=%s progress=%d", got.Stage, got.ProgressPercent)
	}
}

func TestAdvanceRejectsTerminalTargets(t *testing.T) {
	l := newLifecycle()
	job := mustCreate(t, l)
	ctx := context.Background()

	for _, target := range []jobs.Stage{jobs.StageCompleted, jobs.StageFailed, jobs.StageQueued} {
		_, err := l.AdvanceStage(ctx, "acme", job.ID, target)
		if !jobs.IsInvalidTransition(err) {
			t.Errorf("AdvanceStage to %s: expected InvalidTransitionError, got %v", target, err)
		}
	}
}

func TestCompleteTwice(t *testing.T) {
	l := newLifecycle()
	job := mustCreate(t, l)
	ctx := context.Background()

	if _, err := l.Complete(ctx, "acme", job.ID, json.RawMessage(`{"v":1}`)); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	_, err := l.Complete(ctx, "acme", job.ID, json.RawMessage(`{"v":2}`))
	if !jobs.IsAlreadyTerminal(err) {
		t.Errorf("second Complete: expected AlreadyTerminalError, got %v", err)
	}

	got, _ := l.Get(ctx, "acme", job.ID)
	if string(got.Result) != `{"v":1}` {
		t.Errorf("first completion overwritten: %s", got.Result)
	}
}

func TestFailFreezesProgress(t *testing.T) {
	l := newLifecycle()
	job := mustCreate(t, l)
	ctx := context.Background()

	for _, stage := range []jobs.Stage{jobs.StageUploading, jobs.StageExtractingText, jobs.StageClassifying, jobs.StageAnalyzing} {
		if _, err := l.AdvanceStage(ctx, "acme", job.ID, stage); err != nil {
			t.Fatalf("AdvanceStage(%s): %v", stage, err)
		}
	}

	failed, err := l.Fail(ctx, "acme", job.ID, jobs.StageAnalyzing, "extraction service unavailable")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != jobs.StatusFailed || failed.Stage != jobs.StageFailed {
		t.Errorf("failed job has status=%s stage=%s", failed.Status, failed.Stage)
	}
	if failed.ProgressPercent != 70 {
		t.Errorf("failure should freeze progress at 70, got %d", failed.ProgressPercent)
	}
	if failed.Error == nil || failed.Error.Stage != jobs.StageAnalyzing {
		t.Errorf("failure stage not recorded: %+v", failed.Error)
	}
	if failed.Result != nil {
		t.Error("failed job must not carry a result")
	}
	if failed.CompletedAt == nil {
		t.Error("CompletedAt not set on failure")
	}

	// First writer wins: a late completion attempt is rejected and the
	// failure stands.
	_, err = l.Complete(ctx, "acme", job.ID, json.RawMessage(`{}`))
	if !jobs.IsAlreadyTerminal(err) {
		t.Errorf("Complete after Fail: expected AlreadyTerminalError, got %v", err)
	}
	got, _ := l.Get(ctx, "acme", job.ID)
	if got.Status != jobs.StatusFailed {
		t.Errorf("failure overwritten by late completion: %s", got.Status)
	}
}

func TestFailAfterComplete(t *testing.T) {
	l := newLifecycle()
	job := mustCreate(t, l)
	ctx := context.Background()

	if _, err := l.Complete(ctx, "acme", job.ID, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, err := l.Fail(ctx, "acme", job.ID, jobs.StageStoring, "late failure")
	if !jobs.IsAlreadyTerminal(err) {
		t.Errorf("Fail after Complete: expected AlreadyTerminalError, got %v", err)
	}
}

func TestSetDocumentType(t *testing.T) {
	l := newLifecycle()
	job := mustCreate(t, l)
	ctx := context.Background()

	updated, err := l.SetDocumentType(ctx, "acme", job.ID, "invoice")
	if err != nil {
		t.Fatalf("SetDocumentType: %v", err)
	}
	if updated.DocumentType != "invoice" {
		t.Errorf("DocumentType = %q, want invoice", updated.DocumentType)
	}

	if _, err := l.Complete(ctx, "acme", job.ID, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, err = l.SetDocumentType(ctx, "acme", job.ID, "receipt")
	if !jobs.IsAlreadyTerminal(err) {
		t.Errorf("SetDocumentType on terminal job: expected AlreadyTerminalError, got %v", err)
	}
}

func TestGetUnknownJob(t *testing.T) {
	l := newLifecycle()
	_, err := l.Get(context.Background(), "acme", "no-such-job")
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
