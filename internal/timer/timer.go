// Package timer provides the elapsed-time gates used by the monitor loop.
package timer

import (
	"sync"
	"time"
)

// Clock reports the current time. Tests substitute a ManualClock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock.
var System Clock = systemClock{}

// Timer holds the time since its last restart. The zero value is not usable;
// construct with New.
type Timer struct {
	clock Clock
	start time.Time
}

// New returns a timer started now. A nil clock selects System.
func New(c Clock) *Timer {
	if c == nil {
		c = System
	}
	return &Timer{clock: c, start: c.Now()}
}

// Restart resets the elapsed time to zero.
func (t *Timer) Restart() { t.start = t.clock.Now() }

// Elapsed returns the time since the last restart.
func (t *Timer) Elapsed() time.Duration { return t.clock.Now().Sub(t.start) }

// ElapsedMillis returns the time since the last restart in whole milliseconds.
func (t *Timer) ElapsedMillis() int64 { return t.Elapsed().Milliseconds() }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a clock frozen at start (unix epoch when zero).
func NewManual(start time.Time) *ManualClock {
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	return &ManualClock{now: start}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// RateMeter counts events and reports the count once per window.
type RateMeter struct {
	window Timer
	period time.Duration
	count  uint64
	report func(uint64)
}

// NewRateMeter calls report with the number of Tick calls seen in each
// period-long window.
func NewRateMeter(c Clock, period time.Duration, report func(uint64)) *RateMeter {
	if period <= 0 {
		period = time.Second
	}
	return &RateMeter{window: *New(c), period: period, report: report}
}

// Tick records one event and closes the window when it is due.
func (r *RateMeter) Tick() {
	r.count++
	if r.window.Elapsed() < r.period {
		return
	}
	if r.report != nil {
		r.report(r.count)
	}
	r.count = 0
	r.window.Restart()
}
