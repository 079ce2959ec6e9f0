// Package results persists the final structured output of a pipeline run.
// It is deliberately distinct from the job store: job records track
// progress, extractions are the product.
package results

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Extraction is the structured result produced by the analyzing stage.
type Extraction struct {
	JobID        string          `json:"job_id"`
	TenantID     string          `json:"tenant_id"`
	DocumentType string          `json:"document_type"`
	Fields       json.RawMessage `json:"fields"`
	Confidence   float64         `json:"confidence"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store is the durable persistence layer for extractions.
type Store interface {
	Save(ctx context.Context, e *Extraction) error
	Get(ctx context.Context, tenantID, jobID string) (*Extraction, error)
}

// MemoryStore keeps extractions in memory for tests and dev.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Extraction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Extraction)}
}

func (s *MemoryStore) Save(_ context.Context, e *Extraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	s.data[e.TenantID+"/"+e.JobID] = &c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, jobID string) (*Extraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[tenantID+"/"+jobID]
	if !ok {
		return nil, ErrNoExtraction
	}
	c := *e
	return &c, nil
}
