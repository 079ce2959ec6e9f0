package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no job exists for an (id, tenant) pair.
// Ownership mismatches at the API layer surface the same way so callers
// cannot probe for other tenants' jobs.
var ErrNotFound = errors.New("job not found")

// ValidationError rejects malformed creation input before a job exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError marks a stage transition that violates the
// forward-only rule. It indicates a pipeline bug, not a business failure.
type InvalidTransitionError struct {
	JobID string
	From  Stage
	To    Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %s: %s -> %s", e.JobID, e.From, e.To)
}

// AlreadyTerminalError rejects a second attempt to complete or fail a job
// that already reached a terminal state. First write wins.
type AlreadyTerminalError struct {
	JobID string
	Stage Stage
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("job %s is already terminal (stage %s)", e.JobID, e.Stage)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// IsAlreadyTerminal reports whether err is an AlreadyTerminalError.
func IsAlreadyTerminal(err error) bool {
	var e *AlreadyTerminalError
	return errors.As(err, &e)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}
