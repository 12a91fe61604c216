package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const executionColumns = `
	id, schedule_id, started_at, completed_at, success,
	items_processed, items_created, items_updated,
	error_message, execution_details, created_at`

type ExecutionRepository struct {
	pool *pgxpool.Pool
}

func NewExecutionRepository(pool *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{pool: pool}
}

func (r *ExecutionRepository) Create(ctx context.Context, rec *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	details := rec.ExecutionDetails
	if details == nil {
		details = map[string]any{}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO executions (schedule_id, started_at, execution_details)
		VALUES ($1, $2, $3)
		RETURNING`+executionColumns,
		rec.ScheduleID, rec.StartedAt, details)

	return scanExecution(row)
}

// Complete closes an open record. The completed_at IS NULL guard makes closed
// records immutable: finishing twice (e.g. a timed-out sync run racing its
// own deferred completion) leaves the first outcome in place.
func (r *ExecutionRepository) Complete(ctx context.Context, id string, outcome domain.ExecutionOutcome) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE executions SET
			completed_at    = NOW(),
			success         = $2,
			items_processed = $3,
			items_created   = $4,
			items_updated   = $5,
			error_message   = $6
		WHERE id = $1 AND completed_at IS NULL`,
		id, outcome.Success, outcome.ItemsProcessed, outcome.ItemsCreated, outcome.ItemsUpdated, outcome.ErrorMessage)
	if err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) SetDetails(ctx context.Context, id string, details map[string]any) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE executions SET execution_details = execution_details || $2
		WHERE id = $1 AND completed_at IS NULL`,
		id, details)
	if err != nil {
		return fmt.Errorf("set execution details: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+executionColumns+` FROM executions WHERE id = $1`, id)
	return scanExecution(row)
}

func (r *ExecutionRepository) Recent(ctx context.Context, limit int) ([]*domain.ExecutionRecord, error) {
	return r.query(ctx, `SELECT`+executionColumns+`
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
}

func (r *ExecutionRepository) ForSchedule(ctx context.Context, scheduleID string, limit int) ([]*domain.ExecutionRecord, error) {
	return r.query(ctx, `SELECT`+executionColumns+`
		FROM executions WHERE schedule_id = $1 ORDER BY started_at DESC LIMIT $2`, scheduleID, limit)
}

func (r *ExecutionRepository) FailuresSince(ctx context.Context, since time.Time) ([]*domain.ExecutionRecord, error) {
	return r.query(ctx, `SELECT`+executionColumns+`
		FROM executions
		WHERE success = FALSE AND completed_at >= $1
		ORDER BY completed_at DESC`, since)
}

func (r *ExecutionRepository) Running(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	return r.query(ctx, `SELECT`+executionColumns+`
		FROM executions WHERE completed_at IS NULL ORDER BY started_at ASC`)
}

func (r *ExecutionRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.ExecutionRecord, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var records []*domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanExecution(row rowScanner) (*domain.ExecutionRecord, error) {
	var (
		rec     domain.ExecutionRecord
		success *bool // NULL until the record completes
	)
	err := row.Scan(
		&rec.ID, &rec.ScheduleID, &rec.StartedAt, &rec.CompletedAt, &success,
		&rec.ItemsProcessed, &rec.ItemsCreated, &rec.ItemsUpdated,
		&rec.ErrorMessage, &rec.ExecutionDetails, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	if success != nil {
		rec.Success = *success
	}
	return &rec, nil
}
