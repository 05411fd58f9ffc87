package planner

import (
	"errors"
	"fmt"
	"time"

	config "github.com/postpilot/postpilot/configs"
	"github.com/postpilot/postpilot/internal/models"
)

// Slot is one planned (date, time) pair, kept as calendar-local strings so
// that formatting and comparison never shift across timezones.
type Slot struct {
	Date string // 2006-01-02
	Time string // 15:04
}

var (
	ErrSameStartEnd = errors.New("end date equals start date; omit end date for a single slot")
	ErrBadTimeSlot  = errors.New("time slot must be HH:MM")
	ErrBadFrequency = errors.New("unknown frequency")
)

const dateLayout = "2006-01-02"

// Plan expands a strategy into an ordered series of slots. Pure and
// deterministic: the caller supplies now. Dates are iterated and compared by
// their (year, month, day) components only, so a slot on the window boundary
// is never dropped or duplicated by UTC arithmetic.
func Plan(cfg models.StrategyConfig, now time.Time, limits config.PlatformLimits) ([]Slot, error) {
	start, err := parseDate(cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}

	if _, err := time.Parse("15:04", cfg.TimeSlot); err != nil {
		return nil, ErrBadTimeSlot
	}

	switch cfg.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly, models.FrequencyCustom:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadFrequency, cfg.Frequency)
	}

	var end time.Time
	hasEnd := cfg.EndDate != ""
	if hasEnd {
		end, err = parseDate(cfg.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end date: %w", err)
		}
		if sameDay(end, start) {
			return nil, ErrSameStartEnd
		}
		if end.Before(start) {
			// An inverted range means the end date was left over from a
			// previous edit; treat the strategy as single-slot.
			hasEnd = false
		}
	}

	if !hasEnd {
		return []Slot{{Date: start.Format(dateLayout), Time: cfg.TimeSlot}}, nil
	}

	horizon := civil(now).AddDate(0, 0, limits.HorizonDays)

	var slots []Slot
	for day := start; ; day = day.AddDate(0, 0, 1) {
		if day.After(end) || day.After(horizon) {
			break
		}
		if limits.MaxRows > 0 && len(slots) >= limits.MaxRows {
			break
		}
		if matchesFrequency(cfg.Frequency, start, day) {
			slots = append(slots, Slot{Date: day.Format(dateLayout), Time: cfg.TimeSlot})
		}
	}

	return slots, nil
}

func matchesFrequency(frequency string, start, day time.Time) bool {
	switch frequency {
	case models.FrequencyWeekly:
		return day.Weekday() == start.Weekday()
	case models.FrequencyMonthly:
		// Matching on day-of-month skips months that lack the start day
		// (planning from the 31st produces no slot in February).
		return day.Day() == start.Day()
	default:
		// daily; custom carries only an opaque hint and is treated as daily
		return true
	}
}

// parseDate pins the date to UTC midnight so day arithmetic stays on
// calendar components.
func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
