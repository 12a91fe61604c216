package repository

import (
	"context"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
)

// ExecutionRepository is the append-only execution history. Records are
// opened at dispatch and closed exactly once; there is no delete — retention
// is an operational concern outside this core.
type ExecutionRepository interface {
	// Create opens a record with completed_at = NULL. Returns the persisted
	// record with its generated ID.
	Create(ctx context.Context, rec *domain.ExecutionRecord) (*domain.ExecutionRecord, error)

	// Complete closes an open record with the outcome. Completing an already
	// completed record is a no-op (the record is immutable once closed).
	Complete(ctx context.Context, id string, outcome domain.ExecutionOutcome) error

	// SetDetails merges opaque metadata (e.g. the deferred-task handle) into
	// execution_details of an open record.
	SetDetails(ctx context.Context, id string, details map[string]any) error

	GetByID(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	Recent(ctx context.Context, limit int) ([]*domain.ExecutionRecord, error)
	ForSchedule(ctx context.Context, scheduleID string, limit int) ([]*domain.ExecutionRecord, error)
	FailuresSince(ctx context.Context, since time.Time) ([]*domain.ExecutionRecord, error)

	// Running lists open records (completed_at IS NULL) — still executing on
	// a backend, or orphaned by a crashed process.
	Running(ctx context.Context) ([]*domain.ExecutionRecord, error)
}
