// Package health tracks request outcomes in sliding windows and derives the
// service status reported on /health.
package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// Status values, in decreasing priority.
const (
	StatusShuttingDown = "shutting-down"
	StatusOverloaded   = "overloaded"
	StatusIdle         = "idle"
	StatusDegraded     = "degraded"
	StatusHealthy      = "healthy"
)

const defaultMaxAge = 5 * time.Minute

// Tracker maintains sliding windows of outcome timestamps plus the shutdown flag.
// The zero value is not usable; call NewTracker.
type Tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
	maxAge       time.Duration
	shuttingDown atomic.Bool
	now          func() time.Time
}

// NewTracker creates a Tracker that keeps outcomes for maxAge (5m if zero).
func NewTracker(maxAge time.Duration) *Tracker {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// RecordSuccess records a successful upstream-backed request.
func (t *Tracker) RecordSuccess() { t.record(&t.successTimes) }

// RecordError records a failed upstream-backed request.
func (t *Tracker) RecordError() { t.record(&t.errorTimes) }

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() { t.record(&t.deniedTimes) }

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns successes, errors and denials within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.successTimes, cutoff) + countSince(t.errorTimes, cutoff) + countSince(t.deniedTimes, cutoff)
}

// DenialCount returns the denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// ErrorRate returns (errors, total) within the window. Denials are not part of total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.errorTimes, cutoff)
	return errors, errors + countSince(t.successTimes, cutoff)
}

// Reset clears all recorded outcomes and the shutdown flag.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.successTimes, t.errorTimes, t.deniedTimes = nil, nil, nil
	t.mu.Unlock()
	t.shuttingDown.Store(false)
}

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT is received.
func (t *Tracker) SetShuttingDown(v bool) { t.shuttingDown.Store(v) }

// IsShuttingDown reports whether the process is draining.
func (t *Tracker) IsShuttingDown() bool { return t.shuttingDown.Load() }

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops outcomes older than maxAge. Slices are in time order.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}

// Thresholds configures status evaluation. Zero windows disable their check.
type Thresholds struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int

	DegradedWindow   time.Duration
	DegradedErrorPct int

	IdleWindow      time.Duration
	IdleThreshold   int
	MinimumLifespan time.Duration
	StartTime       time.Time
}

// Result is an evaluated status. Available is false when the instance should be
// taken out of rotation (HTTP 503).
type Result struct {
	Status    string
	Available bool
	Reason    string
}

// Evaluate derives the status. Order: shutting-down > overloaded > idle > degraded > healthy.
func (t *Tracker) Evaluate(th Thresholds) Result {
	if t.IsShuttingDown() {
		return Result{StatusShuttingDown, false, "signal"}
	}
	if th.OverloadWindow > 0 && th.RateLimitRPS > 0 && th.OverloadThresholdPct > 0 {
		threshold := float64(th.RateLimitRPS) * th.OverloadWindow.Seconds() * float64(th.OverloadThresholdPct) / 100
		if float64(t.RequestCount(th.OverloadWindow)) > threshold {
			return Result{StatusOverloaded, false, "overload_threshold"}
		}
	}
	if th.IdleWindow > 0 && th.MinimumLifespan > 0 && t.now().Sub(th.StartTime) >= th.MinimumLifespan {
		if t.RequestCount(th.IdleWindow) < th.IdleThreshold {
			return Result{StatusIdle, true, "low_traffic"}
		}
	}
	if th.DegradedWindow > 0 && th.DegradedErrorPct > 0 {
		errors, total := t.ErrorRate(th.DegradedWindow)
		if total > 0 && float64(errors)*100/float64(total) >= float64(th.DegradedErrorPct) {
			return Result{StatusDegraded, false, "error_rate_breach"}
		}
	}
	return Result{StatusHealthy, true, ""}
}
