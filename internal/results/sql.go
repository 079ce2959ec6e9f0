package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoExtraction is returned when no extraction exists for a job.
var ErrNoExtraction = errors.New("no extraction for job")

// SQLStore persists extractions through a database/sql handle. The handle is
// usually shared with the job store; the table is separate.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// NewSQLStore creates an extraction store. postgres selects $n placeholders
// and native timestamps; otherwise SQLite conventions are used.
func NewSQLStore(database *sql.DB, postgres bool) *SQLStore {
	return &SQLStore{db: database, postgres: postgres}
}

func (s *SQLStore) Save(ctx context.Context, e *Extraction) error {
	var query string
	var created any
	if s.postgres {
		query = `
			INSERT INTO extractions (job_id, tenant_id, document_type, fields, confidence, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (job_id) DO UPDATE
			SET document_type = EXCLUDED.document_type, fields = EXCLUDED.fields,
				confidence = EXCLUDED.confidence
		`
		created = e.CreatedAt
	} else {
		query = `
			INSERT OR REPLACE INTO extractions (job_id, tenant_id, document_type, fields, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		created = e.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, query,
		e.JobID, e.TenantID, e.DocumentType, []byte(e.Fields), e.Confidence, created)
	if err != nil {
		return fmt.Errorf("failed to save extraction: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, tenantID, jobID string) (*Extraction, error) {
	query := `
		SELECT job_id, tenant_id, document_type, fields, confidence, created_at
		FROM extractions WHERE tenant_id = $1 AND job_id = $2
	`
	if !s.postgres {
		query = `
			SELECT job_id, tenant_id, document_type, fields, confidence, created_at
			FROM extractions WHERE tenant_id = ? AND job_id = ?
		`
	}

	e := &Extraction{}
	var fields []byte
	if s.postgres {
		err := s.db.QueryRowContext(ctx, query, tenantID, jobID).Scan(
			&e.JobID, &e.TenantID, &e.DocumentType, &fields, &e.Confidence, &e.CreatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, ErrNoExtraction
			}
			return nil, fmt.Errorf("failed to get extraction: %w", err)
		}
	} else {
		var created string
		err := s.db.QueryRowContext(ctx, query, tenantID, jobID).Scan(
			&e.JobID, &e.TenantID, &e.DocumentType, &fields, &e.Confidence, &created)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, ErrNoExtraction
			}
			return nil, fmt.Errorf("failed to get extraction: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		e.CreatedAt = t
	}
	e.Fields = fields
	return e, nil
}
