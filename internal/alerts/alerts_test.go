package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRateLimitDropsDuplicates(t *testing.T) {
	m := NewManager(Options{Log: zerolog.Nop(), RateWindow: time.Hour})

	a := Alert{Title: "Daily Processing Complete", Component: "scheduler", Priority: PriorityLow}
	m.Send(context.Background(), a)
	m.Send(context.Background(), a)
	m.Send(context.Background(), a)

	if got := len(m.History()); got != 1 {
		t.Errorf("history = %d, want 1 (duplicates rate-limited)", got)
	}
}

func TestCriticalNeverRateLimited(t *testing.T) {
	m := NewManager(Options{Log: zerolog.Nop(), RateWindow: time.Hour})

	a := Alert{Title: "Audio Deletion Failed", Component: "securestore", Priority: PriorityCritical}
	m.Send(context.Background(), a)
	m.Send(context.Background(), a)

	if got := len(m.History()); got != 2 {
		t.Errorf("history = %d, want 2 (critical bypasses rate limit)", got)
	}
}

func TestDistinctTitlesNotLimited(t *testing.T) {
	m := NewManager(Options{Log: zerolog.Nop(), RateWindow: time.Hour})

	m.Send(context.Background(), Alert{Title: "A", Component: "x"})
	m.Send(context.Background(), Alert{Title: "B", Component: "x"})
	m.Send(context.Background(), Alert{Title: "A", Component: "y"})

	if got := len(m.History()); got != 3 {
		t.Errorf("history = %d, want 3", got)
	}
}

func TestHistoryBounded(t *testing.T) {
	m := NewManager(Options{Log: zerolog.Nop(), RateWindow: time.Nanosecond, HistorySize: 5})

	for i := 0; i < 20; i++ {
		m.Send(context.Background(), Alert{Title: "tick", Component: "t", Priority: PriorityCritical})
	}
	if got := len(m.History()); got != 5 {
		t.Errorf("history = %d, want bounded to 5", got)
	}
}

func TestPriorityString(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{PriorityLow, "low"},
		{PriorityMedium, "medium"},
		{PriorityHigh, "high"},
		{PriorityCritical, "critical"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
