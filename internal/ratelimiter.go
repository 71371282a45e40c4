package internal

import (
	"context"
	"sync"
	"time"
)

// RateLimit is one sliding-window quota: at most Requests admissions within
// any trailing Window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

func defaultRiotLimits() []RateLimit {
	return []RateLimit{
		{Requests: 20, Window: 1 * time.Second},
		{Requests: 100, Window: 2 * time.Minute},
	}
}

// admissionEpsilon is added to every computed wait so a caller waking up at
// the exact expiry boundary does not re-trigger the same window.
const admissionEpsilon = 10 * time.Millisecond

// RateLimiter proactively enforces several sliding-window quotas for one
// shared API client. Acquire blocks until admitting one more call would not
// exceed any window, then reserves the slot in every window atomically.
//
// One instance guards the whole process; all outbound Riot calls go through
// the same limiter.
type RateLimiter struct {
	mu      sync.Mutex
	limits  []RateLimit
	history [][]time.Time

	logger  *Logger
	metrics *MetricsCollector
}

func NewRateLimiter(limits []RateLimit, logger *Logger, metrics *MetricsCollector) *RateLimiter {
	if len(limits) == 0 {
		limits = defaultRiotLimits()
	}
	return &RateLimiter{
		limits:  limits,
		history: make([][]time.Time, len(limits)),
		logger:  logger,
		metrics: metrics,
	}
}

// Acquire blocks until a request may be sent, then records the admission
// timestamp under every window before returning. The lock is held across
// the check and the reservation; two callers can never both observe spare
// capacity and both be admitted past a limit. While a caller sleeps the
// lock is released so other callers queue instead of spinning.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	acquireStart := time.Now()

	rl.mu.Lock()
	for {
		now := time.Now()
		wait := time.Duration(0)

		for i, limit := range rl.limits {
			queue := rl.history[i]
			cutoff := now.Add(-limit.Window)
			for len(queue) > 0 && !queue[0].After(cutoff) {
				queue = queue[1:]
			}
			rl.history[i] = queue

			if len(queue) >= limit.Requests {
				// Binding constraint is whichever window waits longest.
				if w := queue[0].Add(limit.Window).Sub(now); w > wait {
					wait = w
				}
			}
		}

		if wait <= 0 {
			for i := range rl.history {
				rl.history[i] = append(rl.history[i], now)
			}
			rl.mu.Unlock()

			if rl.metrics != nil {
				rl.metrics.RecordLimiterWait(time.Since(acquireStart))
			}
			return nil
		}

		rl.mu.Unlock()

		if rl.logger != nil {
			rl.logger.Debug("rate_limit_wait").
				Component("rate_limiter").
				Operation("acquire").
				Duration(wait).
				Log()
		}

		timer := time.NewTimer(wait + admissionEpsilon)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		rl.mu.Lock()
	}
}

// Limits returns a copy of the configured windows.
func (rl *RateLimiter) Limits() []RateLimit {
	out := make([]RateLimit, len(rl.limits))
	copy(out, rl.limits)
	return out
}
