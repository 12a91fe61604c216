package domain

import (
	"errors"
	"time"
)

var ErrExecutionNotFound = errors.New("execution record not found")

// ExecutionRecord is one historical attempt to run a ScheduleDefinition. It is
// created at dispatch time with CompletedAt = nil and is immutable once
// completed. A nil CompletedAt means still running (possibly on the deferred
// backend) or orphaned by a crashed process.
type ExecutionRecord struct {
	ID         string
	ScheduleID string

	StartedAt   time.Time
	CompletedAt *time.Time

	// Success is meaningful only once CompletedAt is set.
	Success bool

	ItemsProcessed int
	ItemsCreated   int
	ItemsUpdated   int

	ErrorMessage *string

	// ExecutionDetails carries opaque run metadata, e.g. the deferred-task
	// handle when the run was dispatched asynchronously.
	ExecutionDetails map[string]any

	CreatedAt time.Time
}

// Running reports whether the record is still open.
func (r *ExecutionRecord) Running() bool { return r.CompletedAt == nil }

// ExecutionOutcome is the finalization payload applied to an open record and
// its schedule in one atomic update.
type ExecutionOutcome struct {
	Success        bool
	ItemsProcessed int
	ItemsCreated   int
	ItemsUpdated   int
	ErrorMessage   *string
}
