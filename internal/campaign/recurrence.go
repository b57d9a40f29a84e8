package campaign

import (
	"errors"
	"fmt"
	"time"
)

// Rule describes how a recurring series advances.
type Rule struct {
	Type     RuleType     `json:"recurrence_type" db:"recurrence_type"`
	Interval int          `json:"recurrence_interval" db:"recurrence_interval"`
	End      EndCondition `json:"recurrence_end_condition" db:"recurrence_end_condition"`

	// MaxRuns applies when End == EndAfterRuns.
	MaxRuns int `json:"recurrence_max_runs,omitempty" db:"recurrence_max_runs"`
	// EndDate applies when End == EndOnDate.
	EndDate time.Time `json:"recurrence_end_date,omitempty" db:"recurrence_end_date"`
}

type RuleType string

const (
	RuleNone    RuleType = "none"
	RuleHourly  RuleType = "hourly"
	RuleDaily   RuleType = "daily"
	RuleWeekly  RuleType = "weekly"
	RuleMonthly RuleType = "monthly"
)

type EndCondition string

const (
	EndNever     EndCondition = "never"
	EndAfterRuns EndCondition = "after_runs"
	EndOnDate    EndCondition = "on_date"
)

// ErrSeriesEnded is returned by NextRun once a rule's end condition is met.
var ErrSeriesEnded = errors.New("campaign: series ended")

// Validate checks rule field ranges. A RuleNone rule is always valid; its
// remaining fields are ignored.
func (r Rule) Validate() error {
	if r.Type == RuleNone {
		return nil
	}
	switch r.Type {
	case RuleHourly, RuleDaily, RuleWeekly, RuleMonthly:
	default:
		return fmt.Errorf("unknown recurrence type %q", r.Type)
	}
	if r.Interval < 1 {
		return fmt.Errorf("recurrence interval must be >= 1, got %d", r.Interval)
	}
	switch r.End {
	case EndNever:
	case EndAfterRuns:
		if r.MaxRuns < 1 {
			return fmt.Errorf("recurrence max runs must be >= 1, got %d", r.MaxRuns)
		}
	case EndOnDate:
		if r.EndDate.IsZero() {
			return errors.New("recurrence end date is required")
		}
	default:
		return fmt.Errorf("unknown recurrence end condition %q", r.End)
	}
	return nil
}

// NextRun computes when the series runs next, given the reference time of
// the previous run and the number of runs already completed.
//
// It is a pure function of its inputs: no clock reads, so behavior is
// deterministic across zones. All civil-calendar arithmetic happens in
// ref's location; the absolute instant falls out at the end.
//
// End conditions are evaluated against the candidate next time: after_runs
// ends the series once runCount reaches MaxRuns, on_date once the candidate
// would pass the end instant.
func NextRun(rule Rule, ref time.Time, runCount int) (time.Time, error) {
	if rule.Type == RuleNone {
		return time.Time{}, ErrSeriesEnded
	}
	if err := rule.Validate(); err != nil {
		return time.Time{}, err
	}

	var next time.Time
	switch rule.Type {
	case RuleHourly:
		next = ref.Add(time.Duration(rule.Interval) * time.Hour)
	case RuleDaily:
		next = addDays(ref, rule.Interval)
	case RuleWeekly:
		next = addDays(ref, 7*rule.Interval)
	case RuleMonthly:
		next = addMonthsClamped(ref, rule.Interval)
	}

	switch rule.End {
	case EndAfterRuns:
		if runCount >= rule.MaxRuns {
			return time.Time{}, ErrSeriesEnded
		}
	case EndOnDate:
		if next.After(rule.EndDate) {
			return time.Time{}, ErrSeriesEnded
		}
	}
	return next, nil
}

// addDays advances by whole civil days, keeping the wall-clock time of day
// across DST transitions.
func addDays(t time.Time, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()
	return time.Date(y, m, d+days, h, min, sec, t.Nanosecond(), t.Location())
}

// addMonthsClamped performs calendar-month arithmetic, preserving the
// day-of-month where the target month permits and otherwise clamping to that
// month's last day (Jan 31 + 1 month = Feb 28/29, never Mar 2).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	month := int(m) - 1 + months
	year := y + month/12
	month = month % 12
	if month < 0 {
		month += 12
		year--
	}
	target := time.Month(month + 1)

	if last := daysIn(year, target); d > last {
		d = last
	}
	return time.Date(year, target, d, h, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, m time.Month) int {
	// Day zero of the next month normalizes to this month's last day.
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
