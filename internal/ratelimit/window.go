// ABOUTME: Sliding-window send limiter computed from the ledger's own timestamps
// ABOUTME: No counters are stored; every decision is a count over [now-span, now]

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Defaults match the product rule of three friend requests per minute.
const (
	DefaultLimit = 3
	DefaultSpan  = time.Minute
)

// SlidingWindow admits at most Limit events in any trailing Span.
// It satisfies store.SendPolicy.
type SlidingWindow struct {
	Limit int
	Span  time.Duration
}

// Default returns the three-per-minute window.
func Default() SlidingWindow {
	return SlidingWindow{Limit: DefaultLimit, Span: DefaultSpan}
}

// Start returns the inclusive lower bound of the window ending at now.
func (w SlidingWindow) Start(now time.Time) time.Time {
	return now.Add(-w.Span)
}

// Admit reports whether one more event fits after recent events in the window.
func (w SlidingWindow) Admit(recent int) bool {
	return recent < w.Limit
}

// Remaining returns how many more events fit, never negative.
func (w SlidingWindow) Remaining(recent int) int {
	if recent >= w.Limit {
		return 0
	}
	return w.Limit - recent
}

// RetryAfter returns how long until the window has room again, given the event
// times inside the window in ascending order. Zero means an event is admitted now.
//
// With n events in the window and a limit of L, the (n-L)th oldest must age out,
// which happens just after it is Span old.
func (w SlidingWindow) RetryAfter(inWindow []time.Time, now time.Time) time.Duration {
	if w.Admit(len(inWindow)) {
		return 0
	}
	oldest := inWindow[len(inWindow)-w.Limit]
	wait := oldest.Add(w.Span).Sub(now)
	if wait < 0 {
		return 0
	}
	// The bound is inclusive, so the slot frees strictly after Span.
	return wait + time.Nanosecond
}

// SendLog lists when an account created its requests.
type SendLog interface {
	ListSentSince(ctx context.Context, senderID string, since time.Time) ([]time.Time, error)
}

// Quota is a point-in-time view of an account's send window.
type Quota struct {
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter reads quotas for accounts from a SendLog.
type Limiter struct {
	Window SlidingWindow
	Log    SendLog
	Now    func() time.Time
}

// New creates a Limiter over log. A zero window selects Default().
func New(window SlidingWindow, log SendLog) *Limiter {
	if window.Limit <= 0 || window.Span <= 0 {
		window = Default()
	}
	return &Limiter{Window: window, Log: log, Now: time.Now}
}

// Quota reports the current window state for accountID. It is read-only; the
// send itself is the record.
func (l *Limiter) Quota(ctx context.Context, accountID string) (Quota, error) {
	now := l.Now()
	sent, err := l.Log.ListSentSince(ctx, accountID, l.Window.Start(now))
	if err != nil {
		return Quota{}, fmt.Errorf("reading send log: %w", err)
	}

	inWindow := make([]time.Time, 0, len(sent))
	for _, t := range sent {
		if !t.After(now) {
			inWindow = append(inWindow, t)
		}
	}

	return Quota{
		Limit:      l.Window.Limit,
		Remaining:  l.Window.Remaining(len(inWindow)),
		RetryAfter: l.Window.RetryAfter(inWindow, now),
	}, nil
}

// Allow reports whether accountID may send now.
func (l *Limiter) Allow(ctx context.Context, accountID string) (bool, error) {
	q, err := l.Quota(ctx, accountID)
	if err != nil {
		return false, err
	}
	return q.Remaining > 0, nil
}
