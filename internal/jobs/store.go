package jobs

import "context"

// Store is the durable keyed storage for job records, partitioned by tenant.
// Implementations must provide read-after-write consistency for a single job
// id so a poll immediately following a transition observes it.
type Store interface {
	// Create persists a new job record. The job's id must be unique.
	Create(ctx context.Context, job *Job) error

	// Get returns the job for the (tenantID, id) pair, or ErrNotFound.
	Get(ctx context.Context, tenantID, id string) (*Job, error)

	// Update replaces the stored record for the job's (tenant, id) pair.
	// Returns ErrNotFound if no such record exists.
	Update(ctx context.Context, job *Job) error

	// ListByTenant returns up to limit of the tenant's most recent jobs,
	// newest first.
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Job, error)

	// ListByOwner returns up to limit of one owner's most recent jobs
	// within the tenant, newest first. Filtering happens in the store so a
	// busy tenant cannot crowd an owner's jobs out of the limit window.
	ListByOwner(ctx context.Context, tenantID, ownerID string, limit int) ([]*Job, error)
}
