// Package ratelimit bounds outbound API calls to a fixed quota per rolling
// window. Callers block until a slot opens; acquisitions are never rejected.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCallsPerHour matches GitHub's authenticated API quota.
const DefaultCallsPerHour = 5000

// Limiter admits up to quota calls per rolling window. Acquire blocks when
// the window is full until the oldest recorded call expires.
type Limiter struct {
	mu     sync.Mutex
	quota  int
	window time.Duration
	calls  []time.Time
	logger *slog.Logger
}

// NewLimiter creates a limiter with a rolling one-hour window.
// A non-positive quota falls back to DefaultCallsPerHour.
func NewLimiter(callsPerHour int, logger *slog.Logger) *Limiter {
	if callsPerHour <= 0 {
		callsPerHour = DefaultCallsPerHour
	}
	return newLimiter(callsPerHour, time.Hour, logger)
}

func newLimiter(quota int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		quota:  quota,
		window: window,
		logger: logger,
	}
}

// Acquire records one call, waiting first if the rolling window is at quota.
// The admission is visible to concurrent callers before Acquire returns.
// Returns the context error if ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)

		if len(l.calls) < l.quota {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.calls[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		l.logger.Warn("rate limit reached, waiting", "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InFlight reports how many calls are currently counted in the window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(time.Now())
	return len(l.calls)
}

// prune drops calls older than the window. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
