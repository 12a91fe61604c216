package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/schedule"
)

// ScheduleUsecase is the CRUD surface behind the admin API. Every edit that
// touches cadence or window fields recomputes next_run before persisting, so
// the advisory projection never goes stale after a manual change.
type ScheduleUsecase struct {
	repo repository.ScheduleRepository
	gate schedule.DayGate
	now  func() time.Time
}

func NewScheduleUsecase(repo repository.ScheduleRepository, gate schedule.DayGate) *ScheduleUsecase {
	return &ScheduleUsecase{repo: repo, gate: gate, now: time.Now}
}

type ScheduleInput struct {
	Name        string
	ScraperKind domain.ScraperKind

	FrequencyValue int
	FrequencyUnit  domain.FrequencyUnit

	ActiveHoursStart domain.TimeOfDay
	ActiveHoursEnd   domain.TimeOfDay
	Weekdays         domain.Weekdays

	SkipNationalHolidays bool
	SkipMarketHolidays   bool

	MaxRetries        int
	RetryDelayMinutes int
	TimeoutMinutes    int

	ScraperConfig map[string]any
}

func (in *ScheduleInput) applyDefaults() {
	if in.MaxRetries == 0 {
		in.MaxRetries = 3
	}
	if in.RetryDelayMinutes == 0 {
		in.RetryDelayMinutes = 5
	}
	if in.TimeoutMinutes == 0 {
		in.TimeoutMinutes = 30
	}
	if in.ScraperConfig == nil {
		in.ScraperConfig = map[string]any{}
	}
}

func (u *ScheduleUsecase) Create(ctx context.Context, input ScheduleInput) (*domain.ScheduleDefinition, error) {
	input.applyDefaults()

	s := &domain.ScheduleDefinition{
		Name:                 input.Name,
		ScraperKind:          input.ScraperKind,
		FrequencyValue:       input.FrequencyValue,
		FrequencyUnit:        input.FrequencyUnit,
		ActiveHoursStart:     input.ActiveHoursStart,
		ActiveHoursEnd:       input.ActiveHoursEnd,
		Weekdays:             input.Weekdays,
		SkipNationalHolidays: input.SkipNationalHolidays,
		SkipMarketHolidays:   input.SkipMarketHolidays,
		IsActive:             true,
		MaxRetries:           input.MaxRetries,
		RetryDelayMinutes:    input.RetryDelayMinutes,
		TimeoutMinutes:       input.TimeoutMinutes,
		ScraperConfig:        input.ScraperConfig,
	}

	if !s.ScraperKind.Valid() {
		return nil, domain.ErrUnknownScraperKind
	}
	if _, err := s.Interval(); err != nil {
		return nil, err
	}

	s.NextRun = schedule.NextRun(s, u.now(), u.gate)

	created, err := u.repo.Create(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return created, nil
}

func (u *ScheduleUsecase) Get(ctx context.Context, id string) (*domain.ScheduleDefinition, error) {
	return u.repo.GetByID(ctx, id)
}

func (u *ScheduleUsecase) List(ctx context.Context, activeOnly bool) ([]*domain.ScheduleDefinition, error) {
	return u.repo.List(ctx, repository.ListSchedulesInput{ActiveOnly: activeOnly})
}

func (u *ScheduleUsecase) Update(ctx context.Context, id string, input ScheduleInput) (*domain.ScheduleDefinition, error) {
	input.applyDefaults()

	s, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Name = input.Name
	s.ScraperKind = input.ScraperKind
	s.FrequencyValue = input.FrequencyValue
	s.FrequencyUnit = input.FrequencyUnit
	s.ActiveHoursStart = input.ActiveHoursStart
	s.ActiveHoursEnd = input.ActiveHoursEnd
	s.Weekdays = input.Weekdays
	s.SkipNationalHolidays = input.SkipNationalHolidays
	s.SkipMarketHolidays = input.SkipMarketHolidays
	s.MaxRetries = input.MaxRetries
	s.RetryDelayMinutes = input.RetryDelayMinutes
	s.TimeoutMinutes = input.TimeoutMinutes
	s.ScraperConfig = input.ScraperConfig

	if !s.ScraperKind.Valid() {
		return nil, domain.ErrUnknownScraperKind
	}
	if _, err := s.Interval(); err != nil {
		return nil, err
	}

	s.NextRun = schedule.NextRun(s, u.now(), u.gate)

	updated, err := u.repo.Update(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return updated, nil
}

func (u *ScheduleUsecase) SetActive(ctx context.Context, id string, active bool) error {
	if err := u.repo.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set schedule active: %w", err)
	}
	return nil
}

func (u *ScheduleUsecase) Delete(ctx context.Context, id string) error {
	if err := u.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}
