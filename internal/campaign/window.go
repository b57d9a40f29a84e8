package campaign

import (
	"fmt"
	"time"
)

// Window is the time-of-day range and weekday set during which dialing is
// permitted. Start and End are "HH:MM" in the campaign owner's reference
// zone; Days uses time.Weekday numbering (0=Sunday).
//
// Overnight policy: a window whose End sorts before its Start wraps past
// midnight, e.g. 22:00-06:00 permits dialing late evening and early morning.
// The weekday check applies to the moment being evaluated, not to the day
// the window opened.
type Window struct {
	Start string         `json:"window_start_time" db:"window_start_time"`
	End   string         `json:"window_end_time" db:"window_end_time"`
	Days  []time.Weekday `json:"window_days" db:"window_days"`
}

// DefaultWindow permits dialing at any time on any day.
func DefaultWindow() Window {
	return Window{
		Start: "00:00",
		End:   "23:59",
		Days:  []time.Weekday{0, 1, 2, 3, 4, 5, 6},
	}
}

// Validate checks the window's time strings and weekday set.
func (w Window) Validate() error {
	if _, err := parseMinuteOfDay(w.Start); err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	if _, err := parseMinuteOfDay(w.End); err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	for _, d := range w.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("window day out of range: %d", d)
		}
	}
	return nil
}

// InWindow reports whether dialing is permitted at now. The evaluation uses
// now's own location; callers normalize to the owner's zone first.
func InWindow(now time.Time, w Window) bool {
	if !weekdayAllowed(now.Weekday(), w.Days) {
		return false
	}

	start, err := parseMinuteOfDay(w.Start)
	if err != nil {
		return false
	}
	end, err := parseMinuteOfDay(w.End)
	if err != nil {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute <= end
	}
	// Overnight wrap: inside if past start today or before end tomorrow.
	return minute >= start || minute <= end
}

func weekdayAllowed(d time.Weekday, allowed []time.Weekday) bool {
	for _, a := range allowed {
		if a == d {
			return true
		}
	}
	return false
}

func parseMinuteOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time out of range %q", s)
	}
	return h*60 + m, nil
}
