// Package calendar decides whether a given date is an eligible run day for a
// schedule: weekday flags plus optional national (Polish public holiday) and
// market (GPW session closure) exclusions.
package calendar

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
)

const dateLayout = "2006-01-02"

// tables is the on-disk shape of the holiday file. Dates are YYYY-MM-DD.
// The file is data, not logic — it is regenerated per calendar year by an
// external process.
type tables struct {
	National []string `json:"national"`
	Market   []string `json:"market"`
}

// Gate answers day-eligibility questions. Lookups are lock-free reads of
// immutable maps; Reload swaps the maps atomically under a write lock so the
// nightly refresh never blocks concurrent readers for long.
type Gate struct {
	mu       sync.RWMutex
	national map[string]bool
	market   map[string]bool

	path   string
	logger *slog.Logger
}

// NewGate builds a gate with empty holiday tables. Unknown dates are treated
// as non-holidays (fail closed), so an empty gate only enforces weekday flags.
func NewGate(logger *slog.Logger) *Gate {
	return &Gate{
		national: map[string]bool{},
		market:   map[string]bool{},
		logger:   logger.With("component", "calendar"),
	}
}

// LoadFile reads the holiday table file and returns a gate bound to it, so
// Reload can re-read the same path later.
func LoadFile(path string, logger *slog.Logger) (*Gate, error) {
	g := NewGate(logger)
	g.path = path
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload re-reads the bound table file. A gate without a path is a no-op.
func (g *Gate) Reload() error {
	if g.path == "" {
		return nil
	}

	raw, err := os.ReadFile(g.path)
	if err != nil {
		return fmt.Errorf("read holiday table: %w", err)
	}

	var t tables
	if err := json.Unmarshal(raw, &t); err != nil {
		return fmt.Errorf("parse holiday table: %w", err)
	}

	national, err := toSet(t.National)
	if err != nil {
		return fmt.Errorf("national table: %w", err)
	}
	market, err := toSet(t.Market)
	if err != nil {
		return fmt.Errorf("market table: %w", err)
	}

	g.mu.Lock()
	g.national = national
	g.market = market
	g.mu.Unlock()

	g.logger.Info("holiday tables loaded", "national", len(national), "market", len(market))
	return nil
}

func toSet(dates []string) (map[string]bool, error) {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("bad date %q: %w", d, err)
		}
		set[d] = true
	}
	return set, nil
}

// IsNationalHoliday reports whether the date appears in the national table.
func (g *Gate) IsNationalHoliday(date time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.national[date.Format(dateLayout)]
}

// IsMarketHoliday reports whether the GPW is closed on the date.
func (g *Gate) IsMarketHoliday(date time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.market[date.Format(dateLayout)]
}

// IsEligibleDay reports whether date is a run day: its weekday flag is set and
// it is not excluded by the requested holiday calendars.
func (g *Gate) IsEligibleDay(date time.Time, weekdays domain.Weekdays, skipNational, skipMarket bool) bool {
	if !weekdays.On(date.Weekday()) {
		return false
	}
	if skipNational && g.IsNationalHoliday(date) {
		return false
	}
	if skipMarket && g.IsMarketHoliday(date) {
		return false
	}
	return true
}
