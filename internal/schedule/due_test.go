package schedule_test

import (
	"testing"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/schedule"
)

// stubGate lets tests control day eligibility without holiday tables.
type stubGate struct {
	holidays map[string]bool
}

func (g *stubGate) IsEligibleDay(date time.Time, weekdays domain.Weekdays, skipNational, skipMarket bool) bool {
	if !weekdays.On(date.Weekday()) {
		return false
	}
	if (skipNational || skipMarket) && g.holidays[date.Format("2006-01-02")] {
		return false
	}
	return true
}

var (
	allDays      = domain.Weekdays{true, true, true, true, true, true, true}
	weekdaysOnly = domain.Weekdays{false, true, true, true, true, true, false}
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func baseSchedule() *domain.ScheduleDefinition {
	return &domain.ScheduleDefinition{
		ID:               "sched-1",
		Name:             "Prices — Live",
		ScraperKind:      domain.KindPriceFeed,
		FrequencyValue:   30,
		FrequencyUnit:    domain.UnitMinutes,
		ActiveHoursStart: domain.TimeOfDay{Hour: 0, Minute: 0},
		ActiveHoursEnd:   domain.TimeOfDay{Hour: 23, Minute: 59},
		Weekdays:         allDays,
		IsActive:         true,
	}
}

func TestShouldRunNow_InactiveNeverDue(t *testing.T) {
	s := baseSchedule()
	s.IsActive = false
	if schedule.ShouldRunNow(s, at("2026-08-31 12:00"), &stubGate{}) {
		t.Error("inactive schedule must never be due")
	}
}

func TestShouldRunNow_FirstRunIsDue(t *testing.T) {
	s := baseSchedule()
	if !schedule.ShouldRunNow(s, at("2026-08-31 12:00"), &stubGate{}) {
		t.Error("schedule with no last_run should be due inside its window")
	}
}

func TestShouldRunNow_Cadence(t *testing.T) {
	gate := &stubGate{}
	now := at("2026-08-31 12:00")

	tests := []struct {
		name    string
		lastRun time.Time
		want    bool
	}{
		{"29 minutes ago", now.Add(-29 * time.Minute), false},
		{"exactly 30 minutes ago", now.Add(-30 * time.Minute), true},
		{"45 minutes ago", now.Add(-45 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSchedule()
			s.LastRun = &tt.lastRun
			if got := schedule.ShouldRunNow(s, now, gate); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldRunNow_OvernightWindow(t *testing.T) {
	s := baseSchedule()
	s.ActiveHoursStart = domain.TimeOfDay{Hour: 22}
	s.ActiveHoursEnd = domain.TimeOfDay{Hour: 6}

	gate := &stubGate{}
	tests := []struct {
		clock string
		want  bool
	}{
		{"2026-08-31 23:00", true},
		{"2026-08-31 05:00", true},
		{"2026-08-31 12:00", false},
	}
	for _, tt := range tests {
		if got := schedule.ShouldRunNow(s, at(tt.clock), gate); got != tt.want {
			t.Errorf("at %s: got %v, want %v", tt.clock, got, tt.want)
		}
	}
}

func TestShouldRunNow_IneligibleDay(t *testing.T) {
	s := baseSchedule()
	s.Weekdays = weekdaysOnly
	// 2026-08-30 is a Sunday.
	if schedule.ShouldRunNow(s, at("2026-08-30 12:00"), &stubGate{}) {
		t.Error("sunday must not be a run day for a weekdays-only schedule")
	}

	s.SkipMarketHolidays = true
	gate := &stubGate{holidays: map[string]bool{"2026-08-31": true}}
	if schedule.ShouldRunNow(s, at("2026-08-31 12:00"), gate) {
		t.Error("market holiday must not be a run day")
	}
}

// The worked example from the operations runbook: live prices every 5 minutes
// inside trading hours, weekdays only.
func TestShouldRunNow_LivePricesScenario(t *testing.T) {
	s := baseSchedule()
	s.FrequencyValue = 5
	s.FrequencyUnit = domain.UnitMinutes
	s.ActiveHoursStart = domain.TimeOfDay{Hour: 9}
	s.ActiveHoursEnd = domain.TimeOfDay{Hour: 17, Minute: 30}
	s.Weekdays = weekdaysOnly

	lastRun := at("2026-09-01 09:10") // a Tuesday
	s.LastRun = &lastRun

	gate := &stubGate{}
	if schedule.ShouldRunNow(s, at("2026-09-01 09:14"), gate) {
		t.Error("09:14 is only 4 minutes after last run")
	}
	if !schedule.ShouldRunNow(s, at("2026-09-01 09:15"), gate) {
		t.Error("09:15 completes the 5 minute cadence")
	}
}

func TestShouldRunNow_MalformedCadence(t *testing.T) {
	s := baseSchedule()
	s.FrequencyValue = 0
	lastRun := at("2026-08-31 10:00")
	s.LastRun = &lastRun
	if schedule.ShouldRunNow(s, at("2026-08-31 12:00"), &stubGate{}) {
		t.Error("malformed cadence must never be due")
	}
}

func TestNextRun_InsideWindow(t *testing.T) {
	s := baseSchedule()
	lastRun := at("2026-08-31 10:00")
	s.LastRun = &lastRun

	got := schedule.NextRun(s, lastRun, &stubGate{})
	if got == nil {
		t.Fatal("expected a next run")
	}
	if want := at("2026-08-31 10:30"); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextRun_ClipsToWindowOpening(t *testing.T) {
	s := baseSchedule()
	s.ActiveHoursStart = domain.TimeOfDay{Hour: 9}
	s.ActiveHoursEnd = domain.TimeOfDay{Hour: 17, Minute: 30}
	lastRun := at("2026-08-31 17:15")
	s.LastRun = &lastRun

	got := schedule.NextRun(s, lastRun, &stubGate{})
	if got == nil {
		t.Fatal("expected a next run")
	}
	// 17:45 is past close; the projection lands on tomorrow's opening.
	if want := at("2026-09-01 09:00"); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextRun_SkipsIneligibleDays(t *testing.T) {
	s := baseSchedule()
	s.ActiveHoursStart = domain.TimeOfDay{Hour: 9}
	s.ActiveHoursEnd = domain.TimeOfDay{Hour: 17, Minute: 30}
	s.Weekdays = weekdaysOnly
	// Friday evening: Saturday and Sunday are skipped.
	lastRun := at("2026-09-04 17:20")
	s.LastRun = &lastRun

	got := schedule.NextRun(s, lastRun, &stubGate{})
	if got == nil {
		t.Fatal("expected a next run")
	}
	if want := at("2026-09-07 09:00"); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextRun_NoEligibleDay(t *testing.T) {
	s := baseSchedule()
	s.Weekdays = domain.Weekdays{} // every flag off
	if got := schedule.NextRun(s, at("2026-08-31 10:00"), &stubGate{}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestNextRun_NeverRunUsesFrom(t *testing.T) {
	s := baseSchedule()
	from := at("2026-08-31 10:00")
	got := schedule.NextRun(s, from, &stubGate{})
	if got == nil {
		t.Fatal("expected a next run")
	}
	if !got.Equal(from) {
		t.Errorf("got %v, want %v", got, from)
	}
}
