package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/docmill/docmill/internal/jobs"
)

// PostgresStore persists job records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Connect opens a PostgreSQL connection pool and verifies it.
func Connect(dsn string) (*sql.DB, error) {
	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	database.SetMaxOpenConns(20)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(30 * time.Minute)

	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}

// RunMigrations applies the goose migrations from the given directory.
func RunMigrations(database *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(database, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// NewPostgresStore creates a job store over an existing connection pool.
func NewPostgresStore(database *sql.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

// DB exposes the underlying handle for health checks and shared stores.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, job *jobs.Job) error {
	query := `
		INSERT INTO jobs (id, tenant_id, owner_id, owner_email, status, stage, progress_percent,
			original_filename, file_size_bytes, content_type, document_type,
			result, error_message, error_stage, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	errMsg, errStage := splitError(job.Error)
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.TenantID, job.OwnerID, job.OwnerEmail,
		string(job.Status), string(job.Stage), job.ProgressPercent,
		job.OriginalFilename, job.FileSizeBytes, job.ContentType, job.DocumentType,
		nullRaw(job.Result), errMsg, errStage,
		job.CreatedAt, job.UpdatedAt, nullTime(job.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (*jobs.Job, error) {
	query := `
		SELECT id, tenant_id, owner_id, owner_email, status, stage, progress_percent,
			original_filename, file_size_bytes, content_type, document_type,
			result, error_message, error_stage, created_at, updated_at, completed_at
		FROM jobs WHERE tenant_id = $1 AND id = $2
	`
	return scanJob(s.db.QueryRowContext(ctx, query, tenantID, id))
}

func (s *PostgresStore) Update(ctx context.Context, job *jobs.Job) error {
	query := `
		UPDATE jobs
		SET status = $3, stage = $4, progress_percent = $5, document_type = $6,
			result = $7, error_message = $8, error_stage = $9, updated_at = $10, completed_at = $11
		WHERE tenant_id = $1 AND id = $2
	`

	errMsg, errStage := splitError(job.Error)
	res, err := s.db.ExecContext(ctx, query,
		job.TenantID, job.ID,
		string(job.Status), string(job.Stage), job.ProgressPercent, job.DocumentType,
		nullRaw(job.Result), errMsg, errStage, job.UpdatedAt, nullTime(job.CompletedAt))
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

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, tenant_id, owner_id, owner_email, status, stage, progress_percent,
			original_filename, file_size_bytes, content_type, document_type,
			result, error_message, error_stage, created_at, updated_at, completed_at
		FROM jobs WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return s.queryJobs(ctx, query, tenantID, limit)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, tenantID, ownerID string, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, tenant_id, owner_id, owner_email, status, stage, progress_percent,
			original_filename, file_size_bytes, content_type, document_type,
			result, error_message, error_stage, created_at, updated_at, completed_at
		FROM jobs WHERE tenant_id = $1 AND owner_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	return s.queryJobs(ctx, query, tenantID, ownerID, limit)
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	job := &jobs.Job{}
	var (
		status, stage        string
		contentType, docType sql.NullString
		result               []byte
		errMsg, errStage     sql.NullString
		completedAt          sql.NullTime
	)

	err := row.Scan(
		&job.ID, &job.TenantID, &job.OwnerID, &job.OwnerEmail,
		&status, &stage, &job.ProgressPercent,
		&job.OriginalFilename, &job.FileSizeBytes, &contentType, &docType,
		&result, &errMsg, &errStage,
		&job.CreatedAt, &job.UpdatedAt, &completedAt)
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
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	if errMsg.Valid {
		job.Error = &jobs.JobError{Message: errMsg.String, Stage: jobs.Stage(errStage.String)}
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func splitError(e *jobs.JobError) (sql.NullString, sql.NullString) {
	if e == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: e.Message, Valid: true},
		sql.NullString{String: string(e.Stage), Valid: true}
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
