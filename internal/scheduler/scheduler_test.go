package scheduler

import (
	"testing"
	"time"
)

func TestDailyWindowFirstRun(t *testing.T) {
	s := New(Options{HistoricalDays: 60})
	now := time.Date(2025, 9, 21, 2, 0, 0, 0, time.UTC)

	start, end := s.dailyWindow(&MainState{}, now)
	if end != time.Date(2025, 9, 21, 0, 0, 0, 0, time.UTC) {
		t.Errorf("end = %s, want today", end)
	}
	if start != end.AddDate(0, 0, -60) {
		t.Errorf("start = %s, want 60 days back", start)
	}
}

func TestDailyWindowResumesFromLastRun(t *testing.T) {
	s := New(Options{HistoricalDays: 60})
	now := time.Date(2025, 9, 21, 2, 0, 0, 0, time.UTC)
	state := &MainState{LastSuccessfulRun: "2025-09-18T02:10:00Z"}

	start, end := s.dailyWindow(state, now)
	if start != time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC) {
		t.Errorf("start = %s, want last run's date", start)
	}
	if end != time.Date(2025, 9, 21, 0, 0, 0, 0, time.UTC) {
		t.Errorf("end = %s, want today", end)
	}
}

func TestDailyWindowNeverInverted(t *testing.T) {
	s := New(Options{HistoricalDays: 60})
	now := time.Date(2025, 9, 21, 2, 0, 0, 0, time.UTC)
	// A clock anomaly put the last run in the future.
	state := &MainState{LastSuccessfulRun: "2025-09-25T02:10:00Z"}

	start, end := s.dailyWindow(state, now)
	if start.After(end) {
		t.Errorf("window inverted: %s > %s", start, end)
	}
}

func TestShouldRunDaily(t *testing.T) {
	s := New(Options{ScheduleHour: 2, ScheduleMinute: 0})

	at := func(h, m int) time.Time {
		return time.Date(2025, 9, 21, h, m, 0, 0, time.UTC)
	}

	if !s.shouldRunDaily(at(2, 0)) {
		t.Error("should fire at the scheduled minute")
	}
	if s.shouldRunDaily(at(2, 1)) {
		t.Error("should not fire off the scheduled minute")
	}
	if s.shouldRunDaily(at(14, 0)) {
		t.Error("should not fire at the wrong hour")
	}

	// Already triggered today: the tick is skipped.
	s.lastDailyDay.Store("2025-09-21")
	if s.shouldRunDaily(at(2, 0)) {
		t.Error("should not fire twice on one day")
	}

	// A new day fires again.
	if !s.shouldRunDaily(time.Date(2025, 9, 22, 2, 0, 0, 0, time.UTC)) {
		t.Error("should fire on the next day")
	}

	// An active run skips the trigger entirely.
	s2 := New(Options{ScheduleHour: 2, ScheduleMinute: 0})
	s2.dailyActive.Store(true)
	if s2.shouldRunDaily(at(2, 0)) {
		t.Error("overlapping run must skip the tick")
	}
}

func TestBatchStateDates(t *testing.T) {
	d, err := ParseBatchDate("2025-09-21")
	if err != nil {
		t.Fatal(err)
	}
	if d.Format(dateLayout) != "2025-09-21" {
		t.Errorf("round trip = %s", d.Format(dateLayout))
	}

	if _, err := ParseBatchDate("21/09/2025"); err == nil {
		t.Error("expected error for wrong layout")
	}
}
