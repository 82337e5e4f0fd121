package ratelimit

import (
	"context"
	"time"
)

// counterState is the JSON shape persisted per key.
type counterState struct {
	WindowStart int64 `json:"window_start"` // Unix seconds of the window start.
	Count       int   `json:"count"`        // Requests seen in the window.
}

// Limiter implements a fixed-window counter over a Store. One instance guards
// the authentication endpoints; keys are derived from the caller identity.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// NewLimiter constructs a Limiter allowing limit requests per window.
func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow checks and consumes one slot for key in the current window.
func (l *Limiter) Allow(ctx context.Context, key string, now time.Time) (Result, error) {
	if l == nil || l.store == nil || l.limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}

	windowStart := now.Truncate(l.window)
	reset := windowStart.Add(l.window).UTC()

	var state counterState
	found, errGet := l.store.Get(ctx, key, &state)
	if errGet != nil {
		return Result{}, errGet
	}
	if !found || state.WindowStart != windowStart.Unix() {
		state = counterState{WindowStart: windowStart.Unix()}
	}
	if state.Count >= l.limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}

	state.Count++
	if errSet := l.store.Set(ctx, key, state); errSet != nil {
		return Result{}, errSet
	}
	return Result{Allowed: true, Remaining: l.limit - state.Count, Reset: reset}, nil
}
