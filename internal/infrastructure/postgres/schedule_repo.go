package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const scheduleColumns = `
	id, name, scraper_kind, frequency_value, frequency_unit,
	active_hours_start, active_hours_end, weekdays,
	skip_national_holidays, skip_market_holidays,
	is_active, max_retries, retry_delay_minutes, timeout_minutes,
	failure_count, last_run, last_success, next_run, in_flight,
	scraper_config, created_at, updated_at`

type ScheduleRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewScheduleRepository(pool *pgxpool.Pool, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, logger: logger.With("component", "schedule_repo")}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.ScheduleDefinition) (*domain.ScheduleDefinition, error) {
	query := `
		INSERT INTO schedules (
			name, scraper_kind, frequency_value, frequency_unit,
			active_hours_start, active_hours_end, weekdays,
			skip_national_holidays, skip_market_holidays,
			is_active, max_retries, retry_delay_minutes, timeout_minutes,
			next_run, scraper_config
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING` + scheduleColumns

	row := r.pool.QueryRow(ctx, query,
		s.Name, s.ScraperKind, s.FrequencyValue, s.FrequencyUnit,
		fromTimeOfDay(s.ActiveHoursStart), fromTimeOfDay(s.ActiveHoursEnd), s.Weekdays[:],
		s.SkipNationalHolidays, s.SkipMarketHolidays,
		s.IsActive, s.MaxRetries, s.RetryDelayMinutes, s.TimeoutMinutes,
		s.NextRun, s.ScraperConfig,
	)

	created, err := scanSchedule(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrScheduleNameConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduleDefinition, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

func (r *ScheduleRepository) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.ScheduleDefinition, error) {
	query := `SELECT` + scheduleColumns + ` FROM schedules`
	if input.ActiveOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC`

	var args []any
	if input.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, input.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*domain.ScheduleDefinition
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *ScheduleRepository) Update(ctx context.Context, s *domain.ScheduleDefinition) (*domain.ScheduleDefinition, error) {
	query := `
		UPDATE schedules SET
			name = $2, scraper_kind = $3, frequency_value = $4, frequency_unit = $5,
			active_hours_start = $6, active_hours_end = $7, weekdays = $8,
			skip_national_holidays = $9, skip_market_holidays = $10,
			is_active = $11, max_retries = $12, retry_delay_minutes = $13,
			timeout_minutes = $14, next_run = $15, scraper_config = $16,
			updated_at = NOW()
		WHERE id = $1
		RETURNING` + scheduleColumns

	row := r.pool.QueryRow(ctx, query,
		s.ID, s.Name, s.ScraperKind, s.FrequencyValue, s.FrequencyUnit,
		fromTimeOfDay(s.ActiveHoursStart), fromTimeOfDay(s.ActiveHoursEnd), s.Weekdays[:],
		s.SkipNationalHolidays, s.SkipMarketHolidays,
		s.IsActive, s.MaxRetries, s.RetryDelayMinutes,
		s.TimeoutMinutes, s.NextRun, s.ScraperConfig,
	)

	updated, err := scanSchedule(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrScheduleNameConflict
		}
		return nil, err
	}
	return updated, nil
}

func (r *ScheduleRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		id, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// BeginRun takes the per-schedule in-flight marker. The conditional update is
// the mutual exclusion: only one caller can flip in_flight false -> true.
func (r *ScheduleRepository) BeginRun(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET in_flight = TRUE, updated_at = NOW()
		 WHERE id = $1 AND NOT in_flight`, id)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err // ErrScheduleNotFound
		}
		return domain.ErrExecutionInFlight
	}
	return nil
}

// FinalizeRun is the single read-modify-write of the scheduler: run state,
// failure counter and next_run move together or not at all.
func (r *ScheduleRepository) FinalizeRun(ctx context.Context, id string, success bool, ranAt time.Time, nextRun *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules SET
			last_run      = $2,
			last_success  = CASE WHEN $3 THEN $2 ELSE last_success END,
			failure_count = CASE WHEN $3 THEN 0 ELSE failure_count + 1 END,
			next_run      = $4,
			in_flight     = FALSE,
			updated_at    = NOW()
		WHERE id = $1`,
		id, ranAt, success, nextRun)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (r *ScheduleRepository) ReleaseRun(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE schedules SET in_flight = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release run: %w", err)
	}
	return nil
}

func scanSchedule(row rowScanner) (*domain.ScheduleDefinition, error) {
	var (
		s          domain.ScheduleDefinition
		start, end pgtype.Time
		weekdays   []bool
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.ScraperKind, &s.FrequencyValue, &s.FrequencyUnit,
		&start, &end, &weekdays,
		&s.SkipNationalHolidays, &s.SkipMarketHolidays,
		&s.IsActive, &s.MaxRetries, &s.RetryDelayMinutes, &s.TimeoutMinutes,
		&s.FailureCount, &s.LastRun, &s.LastSuccess, &s.NextRun, &s.InFlight,
		&s.ScraperConfig, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	s.ActiveHoursStart = toTimeOfDay(start)
	s.ActiveHoursEnd = toTimeOfDay(end)
	copy(s.Weekdays[:], weekdays)
	return &s, nil
}

func fromTimeOfDay(t domain.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Minutes()) * int64(time.Minute/time.Microsecond), Valid: true}
}

func toTimeOfDay(t pgtype.Time) domain.TimeOfDay {
	mins := int(t.Microseconds / int64(time.Minute/time.Microsecond))
	return domain.TimeOfDay{Hour: mins / 60, Minute: mins % 60}
}
