package core

// reload_limiter.go gates reload runs.
//
// A reload truncates both stores before refilling them, so two overlapping
// runs would interleave truncation with appends. The gate is a buffered
// channel sized to the number of concurrent reloads (one by default); the
// number of held tokens is the number of running reloads.

import (
	"context"
	"errors"
	"time"
)

// ErrReloadBusy is returned when no reload slot is free.
var ErrReloadBusy = errors.New("reload busy: another reload is running")

// DefaultMaxWaitTime is how long Acquire waits for a slot.
const DefaultMaxWaitTime = 5 * time.Second

// drainPoll is how often WaitForDrain checks for running reloads.
const drainPoll = 100 * time.Millisecond

// ReloadLimiter bounds concurrent reloads.
type ReloadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
}

// NewReloadLimiter allows maxConcurrent simultaneous reloads, at least one.
// Acquire gives up after maxWait, or DefaultMaxWaitTime when unset.
func NewReloadLimiter(maxConcurrent int, maxWait time.Duration) *ReloadLimiter {
	return &ReloadLimiter{
		slots:   make(chan struct{}, max(maxConcurrent, 1)),
		maxWait: orDefault(maxWait, DefaultMaxWaitTime),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Acquire waits up to maxWait for a slot. A cancelled ctx returns its own
// error; an expired wait returns ErrReloadBusy. Pair with Release.
func (l *ReloadLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrReloadBusy
	}
}

// TryAcquire takes a slot if one is free. Pair a true result with Release.
func (l *ReloadLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *ReloadLimiter) Release() { <-l.slots }

// ActiveCount returns the number of running reloads.
func (l *ReloadLimiter) ActiveCount() int { return len(l.slots) }

// WaitForDrain blocks until no reload is running or ctx is done.
func (l *ReloadLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// ReloadLimiterStatus reports the gate for GET /api/reload/status.
type ReloadLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current gate state.
func (l *ReloadLimiter) Status() ReloadLimiterStatus {
	active := len(l.slots)
	return ReloadLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}
