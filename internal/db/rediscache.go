package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docmill/docmill/internal/jobs"
	"github.com/docmill/docmill/internal/logger"
)

// CachedStore decorates a job store with a write-through Redis snapshot
// cache so hot polling does not hit the durable store. The cache is written
// only after the durable write succeeds, preserving read-after-write; a
// cache failure is logged and degrades to the durable store.
type CachedStore struct {
	inner  jobs.Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore wraps inner with a Redis snapshot cache.
func NewCachedStore(inner jobs.Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl}
}

func cacheKey(tenantID, id string) string {
	return "docmill:job:" + tenantID + ":" + id
}

func (s *CachedStore) Create(ctx context.Context, job *jobs.Job) error {
	if err := s.inner.Create(ctx, job); err != nil {
		return err
	}
	s.writeThrough(ctx, job)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, tenantID, id string) (*jobs.Job, error) {
	raw, err := s.client.Get(ctx, cacheKey(tenantID, id)).Bytes()
	if err == nil {
		job := &jobs.Job{}
		if err := json.Unmarshal(raw, job); err == nil {
			return job, nil
		}
		// Corrupt entry, fall through to the durable store.
		s.client.Del(ctx, cacheKey(tenantID, id))
	} else if err != redis.Nil {
		logger.WithJob(id, tenantID).Warn().Err(err).Msg("Job cache read failed")
	}

	job, err := s.inner.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	s.populate(ctx, job)
	return job, nil
}

func (s *CachedStore) Update(ctx context.Context, job *jobs.Job) error {
	if err := s.inner.Update(ctx, job); err != nil {
		return err
	}
	s.writeThrough(ctx, job)
	return nil
}

func (s *CachedStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*jobs.Job, error) {
	return s.inner.ListByTenant(ctx, tenantID, limit)
}

func (s *CachedStore) ListByOwner(ctx context.Context, tenantID, ownerID string, limit int) ([]*jobs.Job, error) {
	return s.inner.ListByOwner(ctx, tenantID, ownerID, limit)
}

func (s *CachedStore) writeThrough(ctx context.Context, job *jobs.Job) {
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, cacheKey(job.TenantID, job.ID), raw, s.ttl).Err(); err != nil {
		logger.WithJob(job.ID, job.TenantID).Warn().Err(err).Msg("Job cache write failed")
	}
}

// populate fills the cache after a miss. The snapshot was read from the
// durable store before this call, so it may already be older than a
// concurrent writer's write-through; SetNX never replaces an existing entry,
// which keeps the writer's fresher snapshot in place.
func (s *CachedStore) populate(ctx context.Context, job *jobs.Job) {
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := s.client.SetNX(ctx, cacheKey(job.TenantID, job.ID), raw, s.ttl).Err(); err != nil {
		logger.WithJob(job.ID, job.TenantID).Warn().Err(err).Msg("Job cache write failed")
	}
}
