package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/docmill/docmill/internal/jobs"
)

// hookStore runs a callback after each inner read, between the durable read
// and the cache population that follows it.
type hookStore struct {
	jobs.Store
	afterGet func()
}

func (s *hookStore) Get(ctx context.Context, tenantID, id string) (*jobs.Job, error) {
	job, err := s.Store.Get(ctx, tenantID, id)
	if s.afterGet != nil {
		s.afterGet()
	}
	return job, err
}

func newCachedStore(t *testing.T, inner jobs.Store) (*CachedStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCachedStore(inner, client, time.Hour), mr
}

func TestCachedStoreWriteThrough(t *testing.T) {
	cached, mr := newCachedStore(t, NewMemoryStore())
	ctx := context.Background()

	job := testJob("j1", "acme", time.Now().UTC())
	if err := cached.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !mr.Exists(cacheKey("acme", "j1")) {
		t.Fatal("create did not write through to the cache")
	}

	job.Stage = jobs.StageAnalyzing
	job.Status = jobs.StatusProcessing
	job.ProgressPercent = 70
	if err := cached.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := cached.Get(ctx, "acme", "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stage != jobs.StageAnalyzing || got.ProgressPercent != 70 {
		t.Errorf("cached snapshot stale after update: stage=%s progress=%d", got.Stage, got.ProgressPercent)
	}
}

func TestCachedStorePopulatesOnMiss(t *testing.T) {
	inner := NewMemoryStore()
	cached, mr := newCachedStore(t, inner)
	ctx := context.Background()

	// Created behind the cache's back, so the first read is a miss.
	if err := inner.Create(ctx, testJob("j1", "acme", time.Now().UTC())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := cached.Get(ctx, "acme", "j1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !mr.Exists(cacheKey("acme", "j1")) {
		t.Error("miss did not populate the cache")
	}
}

func TestCachedStoreMissDoesNotClobberConcurrentUpdate(t *testing.T) {
	inner := NewMemoryStore()
	hooked := &hookStore{Store: inner}
	cached, _ := newCachedStore(t, hooked)
	ctx := context.Background()

	job := testJob("j1", "acme", time.Now().UTC())
	job.Stage = jobs.StageAnalyzing
	job.Status = jobs.StatusProcessing
	job.ProgressPercent = 70
	if err := inner.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The reader's durable read returns the analyzing snapshot; before the
	// reader can populate the cache, the writer lands the terminal update
	// together with its write-through.
	hooked.afterGet = func() {
		hooked.afterGet = nil
		done := job.Clone()
		now := time.Now().UTC()
		done.Stage = jobs.StageCompleted
		done.Status = jobs.StatusCompleted
		done.ProgressPercent = 100
		done.CompletedAt = &now
		if err := cached.Update(ctx, done); err != nil {
			t.Errorf("Update: %v", err)
		}
	}

	if _, err := cached.Get(ctx, "acme", "j1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// The terminal job receives no further updates, so a stale entry here
	// would persist until the TTL. The cache must still hold the terminal
	// snapshot.
	got, err := cached.Get(ctx, "acme", "j1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.Status != jobs.StatusCompleted || got.ProgressPercent != 100 {
		t.Errorf("cache clobbered by stale read: status=%s progress=%d", got.Status, got.ProgressPercent)
	}
}
