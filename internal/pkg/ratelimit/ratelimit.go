// Package ratelimit implements fixed-window request limiting over the four
// quota windows attached to a plan. Counters are bucketed by window start,
// so every window boundary is a calendar boundary (UTC): minute, hour, day
// and month windows reset at :00 seconds, :00 minutes, midnight and the
// first of the month respectively.
package ratelimit

import (
	"context"
	"time"
)

type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
	WindowMonth  Window = "month"
)

// Windows returns all windows finest first. The finest exceeded window is
// the one reported to the client, so order matters.
func Windows() []Window {
	return []Window{WindowMinute, WindowHour, WindowDay, WindowMonth}
}

// Limits carries the per-window request caps for one key. A zero or
// negative value disables the window.
type Limits struct {
	PerMinute int64
	PerHour   int64
	PerDay    int64
	PerMonth  int64
}

// For returns the cap for a window.
func (l Limits) For(w Window) int64 {
	switch w {
	case WindowMinute:
		return l.PerMinute
	case WindowHour:
		return l.PerHour
	case WindowDay:
		return l.PerDay
	case WindowMonth:
		return l.PerMonth
	default:
		return 0
	}
}

// Result is the counter state of one window after the current request was
// counted.
type Result struct {
	Window    Window
	Limit     int64
	Current   int64
	Remaining int64
	ResetAt   time.Time
}

// Decision is the outcome of counting a request against all windows.
// Exceeded points at the finest window over its cap, nil when allowed.
type Decision struct {
	Allowed  bool
	Exceeded *Result
	Results  []Result
}

// Limiter counts a request against every configured window and reports
// whether it may proceed. Rejected requests are still counted; with fixed
// windows this cannot push the reset time out.
type Limiter interface {
	Allow(ctx context.Context, key string, limits Limits) (*Decision, error)
}

// WindowStart truncates now to the containing window's start, in UTC.
func WindowStart(w Window, now time.Time) time.Time {
	t := now.UTC()
	switch w {
	case WindowMinute:
		return t.Truncate(time.Minute)
	case WindowHour:
		return t.Truncate(time.Hour)
	case WindowDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case WindowMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// WindowReset returns the instant the containing window rolls over.
func WindowReset(w Window, now time.Time) time.Time {
	start := WindowStart(w, now)
	switch w {
	case WindowMinute:
		return start.Add(time.Minute)
	case WindowHour:
		return start.Add(time.Hour)
	case WindowDay:
		return start.AddDate(0, 0, 1)
	case WindowMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

func buildResult(w Window, limit, current int64, now time.Time) Result {
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Window:    w,
		Limit:     limit,
		Current:   current,
		Remaining: remaining,
		ResetAt:   WindowReset(w, now),
	}
}

// decide assembles the decision from per-window counts, finest first.
func decide(limits Limits, counts map[Window]int64, now time.Time) *Decision {
	d := &Decision{Allowed: true}
	for _, w := range Windows() {
		limit := limits.For(w)
		if limit <= 0 {
			continue
		}
		res := buildResult(w, limit, counts[w], now)
		d.Results = append(d.Results, res)
		if d.Exceeded == nil && res.Current > res.Limit {
			exceeded := res
			d.Exceeded = &exceeded
			d.Allowed = false
		}
	}
	return d
}
