package db

import (
	"context"
	"sort"
	"sync"

	"github.com/docmill/docmill/internal/jobs"
)

// MemoryStore is an in-process job store for tests and local development.
// It hands out deep copies so callers never share mutable state with the
// stored records.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*jobs.Job // tenantID -> jobID -> job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]*jobs.Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.data[job.TenantID]
	if !ok {
		tenant = make(map[string]*jobs.Job)
		s.data[job.TenantID] = tenant
	}
	tenant[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.data[tenantID][id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.data[job.TenantID]
	if !ok {
		return jobs.ErrNotFound
	}
	if _, ok := tenant[job.ID]; !ok {
		return jobs.ErrNotFound
	}
	tenant[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string, limit int) ([]*jobs.Job, error) {
	return s.list(tenantID, limit, func(*jobs.Job) bool { return true }), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, tenantID, ownerID string, limit int) ([]*jobs.Job, error) {
	return s.list(tenantID, limit, func(j *jobs.Job) bool { return j.OwnerID == ownerID }), nil
}

func (s *MemoryStore) list(tenantID string, limit int, keep func(*jobs.Job) bool) []*jobs.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant := s.data[tenantID]
	out := make([]*jobs.Job, 0, len(tenant))
	for _, job := range tenant {
		if keep(job) {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
