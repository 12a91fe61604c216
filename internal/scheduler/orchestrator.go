// Package scheduler runs due schedules: it guards against overlapping runs,
// opens execution records, dispatches to the scraper handler through the
// configured backend with synchronous fallback, and finalizes schedule state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/backend"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/metrics"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/schedule"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/scraper"
)

// Alerter is told when a schedule's consecutive failures reach its retry
// budget. Alerting is advisory: the schedule keeps running on its cadence.
type Alerter interface {
	ScheduleFailing(ctx context.Context, s *domain.ScheduleDefinition, errMsg string)
}

type Orchestrator struct {
	schedules  repository.ScheduleRepository
	executions repository.ExecutionRepository
	registry   *scraper.Registry
	backend    backend.ExecutionBackend
	gate       schedule.DayGate
	alerter    Alerter // may be nil
	logger     *slog.Logger
	now        func() time.Time
}

func NewOrchestrator(
	schedules repository.ScheduleRepository,
	executions repository.ExecutionRepository,
	registry *scraper.Registry,
	be backend.ExecutionBackend,
	gate schedule.DayGate,
	alerter Alerter,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		schedules:  schedules,
		executions: executions,
		registry:   registry,
		backend:    be,
		gate:       gate,
		alerter:    alerter,
		logger:     logger.With("component", "orchestrator"),
		now:        time.Now,
	}
}

// Execute runs the schedule exactly once: one execution record, one attempt,
// no inline retry. When the deferred backend accepts the task the returned
// record is still open (completed_at nil) and the backend finalizes it later
// through the same path the synchronous branch uses.
func (o *Orchestrator) Execute(ctx context.Context, s *domain.ScheduleDefinition) (*domain.ExecutionRecord, error) {
	if err := o.schedules.BeginRun(ctx, s.ID); err != nil {
		return nil, err
	}

	rec, err := o.executions.Create(ctx, &domain.ExecutionRecord{
		ScheduleID: s.ID,
		StartedAt:  o.now(),
	})
	if err != nil {
		// No attempt was made; free the schedule for the next tick.
		if relErr := o.schedules.ReleaseRun(ctx, s.ID); relErr != nil {
			o.logger.Error("release run after failed record create", "schedule_id", s.ID, "error", relErr)
		}
		return nil, fmt.Errorf("create execution record: %w", err)
	}

	handler, err := o.registry.Lookup(s.ScraperKind)
	if err != nil {
		// Configuration error: recorded and surfaced, never silently skipped.
		msg := err.Error()
		o.finalize(ctx, s, rec, domain.ExecutionOutcome{Success: false, ErrorMessage: &msg})
		return rec, err
	}

	task := backend.Task{
		ScheduleID:  s.ID,
		ExecutionID: rec.ID,
		Run: func(runCtx context.Context) {
			o.finalize(runCtx, s, rec, o.runHandler(runCtx, s, handler))
		},
	}

	handle, err := o.backend.Submit(ctx, task)
	switch {
	case err == nil:
		if derr := o.executions.SetDetails(ctx, rec.ID, map[string]any{
			"mode":        "deferred",
			"task_handle": handle,
		}); derr != nil {
			o.logger.Error("store task handle", "execution_id", rec.ID, "error", derr)
		}
		o.logger.Info("execution deferred", "schedule_id", s.ID, "execution_id", rec.ID, "handle", handle)
		// Re-read so the caller sees the mode and task handle just persisted,
		// same as the synchronous fallback below.
		return o.executions.GetByID(ctx, rec.ID)

	case errors.Is(err, backend.ErrBackendUnavailable):
		// Transparent fallback: same return contract as the deferred path,
		// the record just comes back already completed.
		metrics.SyncFallbacksTotal.Inc()
		o.logger.Info("backend unavailable, running synchronously", "schedule_id", s.ID)
		o.finalize(ctx, s, rec, o.runHandler(ctx, s, handler))
		return o.executions.GetByID(ctx, rec.ID)

	default:
		msg := fmt.Sprintf("dispatch failed: %v", err)
		o.finalize(ctx, s, rec, domain.ExecutionOutcome{Success: false, ErrorMessage: &msg})
		return rec, fmt.Errorf("submit to backend: %w", err)
	}
}

// runHandler invokes the scraper handler bounded by the schedule's timeout.
func (o *Orchestrator) runHandler(ctx context.Context, s *domain.ScheduleDefinition, handler scraper.Handler) domain.ExecutionOutcome {
	runCtx := ctx
	if s.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout())
		defer cancel()
	}

	start := o.now()
	stats, err := handler.Run(runCtx, s.ScraperConfig)
	duration := o.now().Sub(start)

	outcome := domain.ExecutionOutcome{
		Success:        err == nil,
		ItemsProcessed: stats.Processed,
		ItemsCreated:   stats.Created,
		ItemsUpdated:   stats.Updated,
	}

	result := "success"
	if err != nil {
		var msg string
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("execution timed out after %dm: %v", s.TimeoutMinutes, err)
			result = "timeout"
		} else {
			msg = err.Error()
			result = "failure"
		}
		outcome.ErrorMessage = &msg
	}

	metrics.ExecutionDuration.WithLabelValues(string(s.ScraperKind), result).Observe(duration.Seconds())
	metrics.ExecutionsTotal.WithLabelValues(string(s.ScraperKind), result).Inc()
	return outcome
}

// finalize closes the record and applies the outcome to the schedule: last_run
// always advances, failure_count resets on success or increments on failure,
// and next_run is recomputed — for every attempt, success or not.
func (o *Orchestrator) finalize(ctx context.Context, s *domain.ScheduleDefinition, rec *domain.ExecutionRecord, outcome domain.ExecutionOutcome) {
	if err := o.executions.Complete(ctx, rec.ID, outcome); err != nil {
		o.logger.Error("complete execution record", "execution_id", rec.ID, "error", err)
	}

	ranAt := o.now()
	projected := *s
	projected.LastRun = &ranAt
	next := schedule.NextRun(&projected, ranAt, o.gate)

	if err := o.schedules.FinalizeRun(ctx, s.ID, outcome.Success, ranAt, next); err != nil {
		o.logger.Error("finalize schedule run", "schedule_id", s.ID, "error", err)
		return
	}

	if outcome.Success {
		o.logger.Info("execution completed",
			"schedule_id", s.ID,
			"execution_id", rec.ID,
			"processed", outcome.ItemsProcessed,
			"created", outcome.ItemsCreated,
			"updated", outcome.ItemsUpdated,
		)
		return
	}

	errMsg := ""
	if outcome.ErrorMessage != nil {
		errMsg = *outcome.ErrorMessage
	}
	failures := s.FailureCount + 1
	o.logger.Warn("execution failed",
		"schedule_id", s.ID,
		"execution_id", rec.ID,
		"failure_count", failures,
		"error", errMsg,
	)

	if o.alerter != nil && s.MaxRetries > 0 && failures == s.MaxRetries {
		o.alerter.ScheduleFailing(ctx, s, errMsg)
	}
}

// ExecuteByID is the manual/forced run entry point used by the admin API.
func (o *Orchestrator) ExecuteByID(ctx context.Context, scheduleID string) (*domain.ExecutionRecord, error) {
	s, err := o.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, s)
}

// RunDue makes one dispatch pass: every active schedule that is due gets one
// Execute call. The returned slice is never nil. A schedule already in flight
// is skipped, not failed — the current run simply has not finished.
func (o *Orchestrator) RunDue(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	schedules, err := o.schedules.List(ctx, repository.ListSchedulesInput{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}

	now := o.now()
	records := make([]*domain.ExecutionRecord, 0)
	due := 0

	for _, s := range schedules {
		if !schedule.ShouldRunNow(s, now, o.gate) {
			continue
		}
		due++

		rec, err := o.Execute(ctx, s)
		if err != nil {
			if errors.Is(err, domain.ErrExecutionInFlight) {
				o.logger.Debug("skipping schedule, run still in flight", "schedule_id", s.ID)
				continue
			}
			o.logger.Error("execute due schedule", "schedule_id", s.ID, "error", err)
			if rec == nil {
				continue
			}
		}
		records = append(records, rec)
	}

	metrics.DueSchedules.Set(float64(due))
	if len(records) > 0 {
		o.logger.Info("run-due pass fired executions", "count", len(records))
	}
	return records, nil
}

// RecoverAbandoned releases schedule claims whose worker is gone. A claim is
// live only while an open execution record younger than the schedule's timeout
// exists; a process killed between BeginRun and finalize leaves the flag set
// with no one coming back to clear it, and RunDue would skip the schedule on
// every future pass. Run once at startup, before the dispatch loop.
func (o *Orchestrator) RecoverAbandoned(ctx context.Context) (int, error) {
	schedules, err := o.schedules.List(ctx, repository.ListSchedulesInput{})
	if err != nil {
		return 0, fmt.Errorf("list schedules: %w", err)
	}
	open, err := o.executions.Running(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open executions: %w", err)
	}

	newestOpen := make(map[string]time.Time, len(open))
	for _, rec := range open {
		if rec.StartedAt.After(newestOpen[rec.ScheduleID]) {
			newestOpen[rec.ScheduleID] = rec.StartedAt
		}
	}

	released := 0
	for _, s := range schedules {
		if !s.InFlight {
			continue
		}
		if startedAt, ok := newestOpen[s.ID]; ok {
			// A schedule without a timeout may legitimately run for a long
			// time, so any open record keeps its claim.
			if s.TimeoutMinutes == 0 || o.now().Sub(startedAt) < s.Timeout() {
				continue
			}
		}
		if err := o.schedules.ReleaseRun(ctx, s.ID); err != nil {
			return released, fmt.Errorf("release abandoned claim on %s: %w", s.ID, err)
		}
		o.logger.Warn("released abandoned run claim", "schedule_id", s.ID)
		released++
	}
	return released, nil
}
