package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/schedule"
)

// ScheduleStatus is one row of the scheduler status snapshot.
type ScheduleStatus struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Kind         domain.ScraperKind `json:"kind"`
	IsActive     bool               `json:"is_active"`
	LastRun      *time.Time         `json:"last_run,omitempty"`
	LastSuccess  *time.Time         `json:"last_success,omitempty"`
	NextRun      *time.Time         `json:"next_run,omitempty"`
	FailureCount int                `json:"failure_count"`
	ShouldRunNow bool               `json:"should_run_now"`
}

type Status struct {
	Total       int              `json:"total"`
	Active      int              `json:"active"`
	DueNow      int              `json:"due_now"`
	PerSchedule []ScheduleStatus `json:"per_schedule"`
}

// Status builds a consistent snapshot for dashboards. should_run_now comes
// from the pure detector, so polling this endpoint has no effect on dispatch.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	schedules, err := o.schedules.List(ctx, repository.ListSchedulesInput{})
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	now := o.now()
	st := &Status{PerSchedule: make([]ScheduleStatus, 0, len(schedules))}

	for _, s := range schedules {
		st.Total++
		if s.IsActive {
			st.Active++
		}
		due := schedule.ShouldRunNow(s, now, o.gate)
		if due {
			st.DueNow++
		}
		st.PerSchedule = append(st.PerSchedule, ScheduleStatus{
			ID:           s.ID,
			Name:         s.Name,
			Kind:         s.ScraperKind,
			IsActive:     s.IsActive,
			LastRun:      s.LastRun,
			LastSuccess:  s.LastSuccess,
			NextRun:      s.NextRun,
			FailureCount: s.FailureCount,
			ShouldRunNow: due,
		})
	}
	return st, nil
}
