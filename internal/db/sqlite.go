package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docmill/docmill/internal/jobs"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	owner_email TEXT NOT NULL,
	status TEXT NOT NULL,
	stage TEXT NOT NULL,
	progress_percent INTEGER NOT NULL DEFAULT 0,
	original_filename TEXT NOT NULL,
	file_size_bytes INTEGER NOT NULL,
	content_type TEXT,
	document_type TEXT,
	result TEXT,
	error_message TEXT,
	error_stage TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant_created ON jobs(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant_owner ON jobs(tenant_id, owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS extractions (
	job_id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	fields TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extractions_tenant ON extractions(tenant_id);
`

// SQLiteStore persists job records in an embedded SQLite database. Times are
// stored as RFC3339Nano strings in UTC.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	database, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent workers.
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(sqliteSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: database}, nil
}

// DB exposes the underlying handle for health checks and shared stores.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, job *jobs.Job) error {
	query := `
		INSERT INTO jobs (id, tenant_id, owner_id, owner_email, status, stage, progress_percent,
			original_filename, file_size_bytes, content_type, document_type,
			result, error_message, error_stage, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	errMsg, errStage := splitError(job.Error)
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.TenantID, job.OwnerID, job.OwnerEmail,
		string(job.Status), string(job.Stage), job.ProgressPercent,
		job.OriginalFilename, job.FileSizeBytes, job.ContentType, job.DocumentType,
		nullRaw(job.Result), errMsg, errStage,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt), formatTimePtr(job.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, tenantID, id string) (*jobs.Job, error) {
	query := `
		SELECT id, tenant_id, owner_id, owner_email, status, stage, progress_percent,
			original_filename, file_size_bytes, content_type, document_type,
			result, error_message, error_stage, created_at, updated_at, completed_at
		FROM jobs WHERE tenant_id = ? AND id = ?
	`
	return scanSQLiteJob(s.db.QueryRowContext(ctx, query, tenantID, id))
}

func (s *SQLiteStore) Update(ctx context.Context, job *jobs.Job) error {
	query := `
		UPDATE jobs
		SET status = ?, stage = ?, progress_percent = ?, document_type = ?,
			result = ?, error_message = ?, error_stage = ?, updated_at = ?, completed_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	errMsg, errStage := splitError(job.Error)
	res, err := s.db.ExecContext(ctx, query,
		string(job.Status), string(job.Stage), job.ProgressPercent, job.DocumentType,
		nullRaw(job.Result), errMsg, errStage,
		formatTime(job.UpdatedAt), formatTimePtr(job.CompletedAt),
		job.TenantID, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return jobs.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, tenant_id, owner_id, owner_email, status, stage, progress_percent,
			original_filename, file_size_bytes, content_type, document_type,
			result, error_message, error_stage, created_at, updated_at, completed_at
		FROM jobs WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	return s.queryJobs(ctx, query, tenantID, limit)
}

func (s *SQLiteStore) ListByOwner(ctx context.Context, tenantID, ownerID string, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, tenant_id, owner_id, owner_email, status, stage, progress_percent,
			original_filename, file_size_bytes, content_type, document_type,
			result, error_message, error_stage, created_at, updated_at, completed_at
		FROM jobs WHERE tenant_id = ? AND owner_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	return s.queryJobs(ctx, query, tenantID, ownerID, limit)
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func scanSQLiteJob(row rowScanner) (*jobs.Job, error) {
	job := &jobs.Job{}
	var (
		status, stage        string
		contentType, docType sql.NullString
		result               sql.NullString
		errMsg, errStage     sql.NullString
		createdAt, updatedAt string
		completedAt          sql.NullString
	)

	err := row.Scan(
		&job.ID, &job.TenantID, &job.OwnerID, &job.OwnerEmail,
		&status, &stage, &job.ProgressPercent,
		&job.OriginalFilename, &job.FileSizeBytes, &contentType, &docType,
		&result, &errMsg, &errStage,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = jobs.Status(status)
	job.Stage = jobs.Stage(stage)
	job.ContentType = contentType.String
	job.DocumentType = docType.String
	if result.Valid && result.String != "" {
		job.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		job.Error = &jobs.JobError{Message: errMsg.String, Stage: jobs.Stage(errStage.String)}
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		job.CompletedAt = &t
	}
	return job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
