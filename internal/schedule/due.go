// Package schedule holds the pure due-detection arithmetic: given a
// ScheduleDefinition and a clock reading, is the schedule due, and when does
// it next become due. Nothing here mutates state, so the same functions serve
// both the dispatch loop and status displays.
package schedule

import (
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
)

// DayGate is satisfied by *calendar.Gate.
type DayGate interface {
	IsEligibleDay(date time.Time, weekdays domain.Weekdays, skipNational, skipMarket bool) bool
}

// InWindow reports whether t falls inside the daily active window, bounds
// inclusive. end < start denotes an overnight window wrapping past midnight:
// eligible iff t >= start or t <= end.
func InWindow(start, end, t domain.TimeOfDay) bool {
	if start.Minutes() <= end.Minutes() {
		return t.Minutes() >= start.Minutes() && t.Minutes() <= end.Minutes()
	}
	return t.Minutes() >= start.Minutes() || t.Minutes() <= end.Minutes()
}

// ShouldRunNow is the source of truth for dispatch. NextRun is only an
// advisory projection of this decision.
func ShouldRunNow(s *domain.ScheduleDefinition, now time.Time, gate DayGate) bool {
	if !s.IsActive {
		return false
	}
	if !gate.IsEligibleDay(now, s.Weekdays, s.SkipNationalHolidays, s.SkipMarketHolidays) {
		return false
	}
	if !InWindow(s.ActiveHoursStart, s.ActiveHoursEnd, domain.FromClock(now)) {
		return false
	}
	if s.LastRun == nil {
		return true
	}
	interval, err := s.Interval()
	if err != nil {
		// Malformed cadence is a configuration error; never due.
		return false
	}
	return now.Sub(*s.LastRun) >= interval
}

// maxScanDays bounds the eligible-day search in NextRun. A schedule whose
// weekday flags and holiday exclusions leave no run day inside a year has no
// next run.
const maxScanDays = 366

// NextRun projects the next time the schedule becomes due: last_run +
// interval (or from, when it has never run), clipped forward to the opening
// of the next eligible window on the next eligible day. Returns nil when the
// cadence is malformed or no eligible day exists within a year.
func NextRun(s *domain.ScheduleDefinition, from time.Time, gate DayGate) *time.Time {
	candidate := from
	if s.LastRun != nil {
		interval, err := s.Interval()
		if err != nil {
			return nil
		}
		candidate = s.LastRun.Add(interval)
		if candidate.Before(from) {
			candidate = from
		}
	}

	if gate.IsEligibleDay(candidate, s.Weekdays, s.SkipNationalHolidays, s.SkipMarketHolidays) &&
		InWindow(s.ActiveHoursStart, s.ActiveHoursEnd, domain.FromClock(candidate)) {
		return &candidate
	}

	// Outside the window: advance to the next window opening on an eligible
	// day. For an overnight window the opening on day d is still start-of-day
	// d's start time; the post-midnight tail belongs to the previous opening
	// and is covered by the InWindow check above.
	for i := 0; i < maxScanDays; i++ {
		day := candidate.AddDate(0, 0, i)
		if !gate.IsEligibleDay(day, s.Weekdays, s.SkipNationalHolidays, s.SkipMarketHolidays) {
			continue
		}
		opening := s.ActiveHoursStart.On(day)
		if !opening.Before(candidate) {
			return &opening
		}
	}
	return nil
}
