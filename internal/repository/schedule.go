package repository

import (
	"context"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
)

type ListSchedulesInput struct {
	ActiveOnly bool
	Limit      int // 0 = no limit
}

// ScheduleRepository persists ScheduleDefinitions. The orchestrator depends
// on this interface, not the concrete store, so tests run against fakes.
type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.ScheduleDefinition) (*domain.ScheduleDefinition, error)
	GetByID(ctx context.Context, id string) (*domain.ScheduleDefinition, error)
	List(ctx context.Context, input ListSchedulesInput) ([]*domain.ScheduleDefinition, error)

	// Update rewrites cadence, window, calendar and retry fields along with
	// the caller-recomputed next_run. last_run/failure_count are untouched.
	Update(ctx context.Context, s *domain.ScheduleDefinition) (*domain.ScheduleDefinition, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error

	// BeginRun atomically marks the schedule in flight. Returns
	// domain.ErrExecutionInFlight when another run already holds the marker —
	// the guard against overlapping runs of one schedule.
	BeginRun(ctx context.Context, id string) error

	// FinalizeRun applies an execution outcome to the schedule in a single
	// atomic update: last_run, last_success/failure_count, next_run, and the
	// in-flight release. success resets failure_count to 0; failure
	// increments it by 1.
	FinalizeRun(ctx context.Context, id string, success bool, ranAt time.Time, nextRun *time.Time) error

	// ReleaseRun clears the in-flight marker without touching run state. Used
	// when dispatch fails before any attempt was made.
	ReleaseRun(ctx context.Context, id string) error
}
