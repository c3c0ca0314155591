package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWindowStart(t *testing.T) {
	now := time.Date(2024, 3, 15, 13, 37, 42, 123, time.UTC)
	tests := []struct {
		w    Window
		want time.Time
	}{
		{w: WindowMinute, want: time.Date(2024, 3, 15, 13, 37, 0, 0, time.UTC)},
		{w: WindowHour, want: time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)},
		{w: WindowDay, want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{w: WindowMonth, want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := WindowStart(tt.w, now); !got.Equal(tt.want) {
			t.Fatalf("WindowStart(%s) = %v, want %v", tt.w, got, tt.want)
		}
	}
}

func TestWindowReset_MonthBoundary(t *testing.T) {
	// January rolls into February regardless of month length.
	now := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)
	want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if got := WindowReset(WindowMonth, now); !got.Equal(want) {
		t.Fatalf("WindowReset(month) = %v, want %v", got, want)
	}
}

func TestMemoryLimiter_AllowsUpToLimit(t *testing.T) {
	l := NewMemoryLimiter()
	limits := Limits{PerMinute: 3, PerHour: 100}

	for i := 0; i < 3; i++ {
		d, err := l.Allow(context.Background(), "key-1", limits)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	d, err := l.Allow(context.Background(), "key-1", limits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("fourth request should be rejected")
	}
	if d.Exceeded == nil || d.Exceeded.Window != WindowMinute {
		t.Fatalf("expected minute window to be reported, got %+v", d.Exceeded)
	}
	if d.Exceeded.Remaining != 0 {
		t.Fatalf("remaining must clamp at zero, got %d", d.Exceeded.Remaining)
	}
}

func TestMemoryLimiter_FinestWindowReportedFirst(t *testing.T) {
	l := NewMemoryLimiter()
	// Both windows exceed on the second request; the minute window wins.
	limits := Limits{PerMinute: 1, PerHour: 1}

	if d, _ := l.Allow(context.Background(), "key-2", limits); !d.Allowed {
		t.Fatalf("first request should pass")
	}
	d, _ := l.Allow(context.Background(), "key-2", limits)
	if d.Allowed || d.Exceeded.Window != WindowMinute {
		t.Fatalf("expected finest window first, got %+v", d.Exceeded)
	}
}

func TestMemoryLimiter_WindowRollover(t *testing.T) {
	l := NewMemoryLimiter()
	now := time.Date(2024, 3, 15, 13, 37, 59, 0, time.UTC)
	l.now = func() time.Time { return now }
	limits := Limits{PerMinute: 1}

	if d, _ := l.Allow(context.Background(), "key-3", limits); !d.Allowed {
		t.Fatalf("first request should pass")
	}
	if d, _ := l.Allow(context.Background(), "key-3", limits); d.Allowed {
		t.Fatalf("second request in the same minute should fail")
	}

	now = now.Add(2 * time.Second) // crosses 13:38:00
	d, _ := l.Allow(context.Background(), "key-3", limits)
	if !d.Allowed {
		t.Fatalf("request after rollover should pass")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter()
	limits := Limits{PerMinute: 1}

	if d, _ := l.Allow(context.Background(), "key-a", limits); !d.Allowed {
		t.Fatalf("key-a should pass")
	}
	if d, _ := l.Allow(context.Background(), "key-b", limits); !d.Allowed {
		t.Fatalf("key-b must not share key-a's bucket")
	}
}

func TestMemoryLimiter_ZeroLimitsDisableCounting(t *testing.T) {
	l := NewMemoryLimiter()
	for i := 0; i < 10; i++ {
		d, err := l.Allow(context.Background(), "key-z", Limits{})
		if err != nil || !d.Allowed {
			t.Fatalf("unlimited key must always pass: allowed=%v err=%v", d.Allowed, err)
		}
	}
}

func TestDecide_ResultsFinestFirst(t *testing.T) {
	now := time.Date(2024, 3, 15, 13, 37, 0, 0, time.UTC)
	limits := Limits{PerMinute: 10, PerHour: 100, PerDay: 1000, PerMonth: 10000}
	counts := map[Window]int64{WindowMinute: 1, WindowHour: 1, WindowDay: 1, WindowMonth: 1}

	d := decide(limits, counts, now)
	if len(d.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(d.Results))
	}
	want := Windows()
	for i, res := range d.Results {
		if res.Window != want[i] {
			t.Fatalf("result %d is %s, want %s", i, res.Window, want[i])
		}
		if res.Remaining != res.Limit-1 {
			t.Fatalf("window %s remaining = %d", res.Window, res.Remaining)
		}
		if !res.ResetAt.After(now) {
			t.Fatalf("window %s reset %v not after now", res.Window, res.ResetAt)
		}
	}
}
