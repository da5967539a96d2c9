package domain

import "time"

// RateWindow holds the per-user counters shared by the short and the long
// rate limit windows.
type RateWindow struct {
	Requests    int
	Tokens      int
	WindowStart time.Time
	LastRequest time.Time
}

// Expired reports whether the window is older than maxAge at now.
func (w RateWindow) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(w.WindowStart) > maxAge
}

// FreshWindow returns a zeroed window starting at now.
func FreshWindow(now time.Time) RateWindow {
	return RateWindow{WindowStart: now, LastRequest: now}
}

// Add counts one request that used tokens. An expired window is replaced by a
// fresh one first. Every store implements its atomic increment with Add.
func (w RateWindow) Add(tokens int, now time.Time, maxAge time.Duration) RateWindow {
	if w.WindowStart.IsZero() || w.Expired(now, maxAge) {
		w = FreshWindow(now)
	}
	w.Requests++
	w.Tokens += tokens
	w.LastRequest = now
	return w
}
