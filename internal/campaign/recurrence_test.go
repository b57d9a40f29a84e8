package campaign

import (
	"errors"
	"testing"
	"time"
)

func TestNextRun_WeeklyEveryTwoWeeks(t *testing.T) {
	rule := Rule{Type: RuleWeekly, Interval: 2, End: EndNever}
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) // Monday

	first, err := NextRun(rule, start, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if want := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC); !first.Equal(want) {
		t.Fatalf("expected %v, got %v", want, first)
	}

	second, err := NextRun(rule, first, 1)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if want := time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC); !second.Equal(want) {
		t.Fatalf("expected %v, got %v", want, second)
	}
}

func TestNextRun_MonthlyClampsToShortMonths(t *testing.T) {
	rule := Rule{Type: RuleMonthly, Interval: 1, End: EndNever}

	// Jan 31 into February lands on the leap-year 29th, never March 2.
	ref := time.Date(2024, 1, 31, 10, 30, 0, 0, time.UTC)
	next, err := NextRun(rule, ref, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if want := time.Date(2024, 2, 29, 10, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	ref = time.Date(2023, 3, 31, 10, 30, 0, 0, time.UTC)
	next, err = NextRun(rule, ref, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if want := time.Date(2023, 4, 30, 10, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRun_Hourly(t *testing.T) {
	rule := Rule{Type: RuleHourly, Interval: 6, End: EndNever}
	ref := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	next, err := NextRun(rule, ref, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if want := ref.Add(6 * time.Hour); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRun_AfterRunsBoundary(t *testing.T) {
	rule := Rule{Type: RuleDaily, Interval: 1, End: EndAfterRuns, MaxRuns: 3}
	ref := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	if _, err := NextRun(rule, ref, 2); err != nil {
		t.Fatalf("run 3 of 3 should still be scheduled, got %v", err)
	}
	if _, err := NextRun(rule, ref, 3); !errors.Is(err, ErrSeriesEnded) {
		t.Fatalf("expected ErrSeriesEnded after max runs, got %v", err)
	}
}

func TestNextRun_EndOnDate(t *testing.T) {
	end := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	rule := Rule{Type: RuleDaily, Interval: 1, End: EndOnDate, EndDate: end}

	ref := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	next, err := NextRun(rule, ref, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := NextRun(rule, next, 1); !errors.Is(err, ErrSeriesEnded) {
		t.Fatalf("expected ErrSeriesEnded past end date, got %v", err)
	}
}

func TestNextRun_NoneAlwaysEnded(t *testing.T) {
	if _, err := NextRun(Rule{Type: RuleNone}, time.Now(), 0); !errors.Is(err, ErrSeriesEnded) {
		t.Fatalf("expected ErrSeriesEnded, got %v", err)
	}
}

func TestRuleValidate(t *testing.T) {
	if err := (Rule{Type: RuleNone}).Validate(); err != nil {
		t.Fatalf("none rule should validate, got %v", err)
	}
	if err := (Rule{Type: RuleDaily, Interval: 0, End: EndNever}).Validate(); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if err := (Rule{Type: RuleDaily, Interval: 1, End: EndAfterRuns}).Validate(); err == nil {
		t.Fatalf("expected error for after_runs without max runs")
	}
	if err := (Rule{Type: RuleDaily, Interval: 1, End: EndOnDate}).Validate(); err == nil {
		t.Fatalf("expected error for on_date without end date")
	}
	if err := (Rule{Type: "yearly", Interval: 1, End: EndNever}).Validate(); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestNextRun_PreservesWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	rule := Rule{Type: RuleDaily, Interval: 1, End: EndNever}
	// Spring-forward happens overnight on 2024-03-10.
	ref := time.Date(2024, 3, 9, 9, 0, 0, 0, loc)
	next, err := NextRun(rule, ref, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if next.Hour() != 9 {
		t.Fatalf("expected 09:00 wall clock after DST, got %02d:%02d", next.Hour(), next.Minute())
	}
}
