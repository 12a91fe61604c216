package domain

import (
	"errors"
	"time"
)

var (
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrScheduleNameConflict = errors.New("schedule with this name already exists")
	ErrInvalidFrequency     = errors.New("invalid frequency")
	ErrUnknownScraperKind   = errors.New("unknown scraper kind")
	ErrExecutionInFlight    = errors.New("schedule already has an execution in flight")
)

// ScraperKind is the closed set of data-collection job types. Adding a kind
// means adding a handler to the scraper registry; an unregistered kind is a
// configuration error at dispatch time, never a silent no-op.
type ScraperKind string

const (
	KindNewsFeed          ScraperKind = "news-feed"
	KindPriceFeed         ScraperKind = "price-feed"
	KindCalendarEvents    ScraperKind = "calendar-events"
	KindRegulatoryReports ScraperKind = "regulatory-reports"
)

func (k ScraperKind) Valid() bool {
	switch k {
	case KindNewsFeed, KindPriceFeed, KindCalendarEvents, KindRegulatoryReports:
		return true
	}
	return false
}

type FrequencyUnit string

const (
	UnitMinutes FrequencyUnit = "minutes"
	UnitHours   FrequencyUnit = "hours"
	UnitDays    FrequencyUnit = "days"
)

func (u FrequencyUnit) Valid() bool {
	switch u {
	case UnitMinutes, UnitHours, UnitDays:
		return true
	}
	return false
}

// Weekdays holds one eligibility flag per weekday, indexed by time.Weekday
// (Sunday = 0).
type Weekdays [7]bool

func (w Weekdays) On(d time.Weekday) bool { return w[d] }

// ScheduleDefinition configures one recurring scraping job: what to run, how
// often, inside which daily window, on which days.
type ScheduleDefinition struct {
	ID          string
	Name        string
	ScraperKind ScraperKind

	FrequencyValue int
	FrequencyUnit  FrequencyUnit

	// ActiveHoursEnd < ActiveHoursStart denotes an overnight window that
	// wraps past midnight.
	ActiveHoursStart TimeOfDay
	ActiveHoursEnd   TimeOfDay
	Weekdays         Weekdays

	SkipNationalHolidays bool
	SkipMarketHolidays   bool

	IsActive          bool
	MaxRetries        int
	RetryDelayMinutes int
	TimeoutMinutes    int

	// FailureCount is the number of consecutive failed runs since the last
	// success. It is advisory: a failing schedule keeps its cadence.
	FailureCount int
	LastRun      *time.Time
	LastSuccess  *time.Time
	NextRun      *time.Time

	// InFlight marks a run in progress; it guards against two driver passes
	// executing the same due schedule concurrently.
	InFlight bool

	// ScraperConfig is passed verbatim to the kind handler.
	ScraperConfig map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Interval converts the cadence to a duration.
func (s *ScheduleDefinition) Interval() (time.Duration, error) {
	if s.FrequencyValue <= 0 || !s.FrequencyUnit.Valid() {
		return 0, ErrInvalidFrequency
	}
	switch s.FrequencyUnit {
	case UnitMinutes:
		return time.Duration(s.FrequencyValue) * time.Minute, nil
	case UnitHours:
		return time.Duration(s.FrequencyValue) * time.Hour, nil
	default:
		return time.Duration(s.FrequencyValue) * 24 * time.Hour, nil
	}
}

func (s *ScheduleDefinition) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// TimeOfDay is a wall-clock time with minute precision, date-independent.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.Minutes() < o.Minutes() }

func (t TimeOfDay) After(o TimeOfDay) bool { return t.Minutes() > o.Minutes() }

// On anchors the time-of-day to the date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, d.Location())
}

// FromClock truncates a timestamp to its wall-clock time of day.
func FromClock(d time.Time) TimeOfDay {
	return TimeOfDay{Hour: d.Hour(), Minute: d.Minute()}
}
