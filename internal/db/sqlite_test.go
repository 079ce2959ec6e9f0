package db

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/docmill/docmill/internal/jobs"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := testJob("j1", "acme", now)
	job.ContentType = "text/plain"
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "acme", "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OwnerID != "user-1" || got.ContentType != "text/plain" {
		t.Errorf("fields not persisted: owner=%s content_type=%s", got.OwnerID, got.ContentType)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at round trip: got %v, want %v", got.CreatedAt, now)
	}
	if got.Result != nil || got.Error != nil || got.CompletedAt != nil {
		t.Errorf("optional fields should be empty on a new job: %s", got)
	}
}

func TestSQLiteStoreUpdateTerminalFields(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if err := s.Create(ctx, testJob("j1", "acme", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	job, _ := s.Get(ctx, "acme", "j1")
	completed := now.Add(time.Minute)
	job.Status = jobs.StatusCompleted
	job.Stage = jobs.StageCompleted
	job.ProgressPercent = 100
	job.DocumentType = "invoice"
	job.Result = json.RawMessage(`{"total":"12.50"}`)
	job.UpdatedAt = completed
	job.CompletedAt = &completed
	if err := s.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, "acme", "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusCompleted || got.ProgressPercent != 100 {
		t.Errorf("terminal state not persisted: status=%s progress=%d", got.Status, got.ProgressPercent)
	}
	if string(got.Result) != `{"total":"12.50"}` {
		t.Errorf("result round trip: %s", got.Result)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("completed_at round trip: %v", got.CompletedAt)
	}
}

func TestSQLiteStoreFailureFields(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Create(ctx, testJob("j1", "acme", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	job, _ := s.Get(ctx, "acme", "j1")
	job.Status = jobs.StatusFailed
	job.Stage = jobs.StageFailed
	job.ProgressPercent = 70
	job.Error = &jobs.JobError{Message: "extraction service unavailable", Stage: jobs.StageAnalyzing}
	if err := s.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(ctx, "acme", "j1")
	if got.Error == nil || got.Error.Stage != jobs.StageAnalyzing {
		t.Fatalf("error not persisted: %+v", got.Error)
	}
	if got.Error.Message != "extraction service unavailable" {
		t.Errorf("error message round trip: %q", got.Error.Message)
	}
	if got.ProgressPercent != 70 {
		t.Errorf("frozen progress not persisted: %d", got.ProgressPercent)
	}
}

func TestSQLiteStoreNotFound(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "acme", "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("Get missing: expected ErrNotFound, got %v", err)
	}
	if err := s.Update(ctx, testJob("missing", "acme", time.Now())); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("Update missing: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "globex", "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("cross-tenant Get: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStoreList(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"j1", "j2", "j3"} {
		if err := s.Create(ctx, testJob(id, "acme", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if err := s.Create(ctx, testJob("other", "globex", base)); err != nil {
		t.Fatalf("Create other tenant: %v", err)
	}

	list, err := s.ListByTenant(ctx, "acme", 2)
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("limit ignored, got %d jobs", len(list))
	}
	if list[0].ID != "j3" || list[1].ID != "j2" {
		t.Errorf("list not newest-first: %s, %s", list[0].ID, list[1].ID)
	}
}

func TestSQLiteStoreListByOwner(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	mine := testJob("mine", "acme", base)
	if err := s.Create(ctx, mine); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i, id := range []string{"o1", "o2", "o3"} {
		other := testJob(id, "acme", base.Add(time.Duration(i+1)*time.Second))
		other.OwnerID = "user-2"
		if err := s.Create(ctx, other); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	list, err := s.ListByOwner(ctx, "acme", "user-1", 2)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 1 || list[0].ID != "mine" {
		t.Errorf("owner's job crowded out or misfiltered: got %d jobs", len(list))
	}
}
