package rescan

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable one-shot timer handle. Reset cancels any pending
// fire and arms the timer again; Cancel disarms it. Both are safe to call
// from any goroutine.
type Timer interface {
	Reset(d time.Duration)
	Cancel()
}

// Clock produces timers and reports the current time.
type Clock interface {
	Now() time.Time
	NewTimer(fire func()) Timer
}

// SystemClock is the wall-clock implementation backed by time.AfterFunc.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTimer(fire func()) Timer {
	return &systemTimer{fire: fire}
}

type systemTimer struct {
	mu    sync.Mutex
	fire  func()
	timer *time.Timer
}

func (t *systemTimer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, t.fire)
}

func (t *systemTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// ManualClock is a Clock whose time only moves when Advance is called.
// It exists for tests and offline replays.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

// NewManualClock returns a manual clock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) NewTimer(fire func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, fire: fire}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d and fires, in deadline order, every armed
// timer whose deadline has been reached. Each timer fires at most once per
// call. Callbacks run on the caller's goroutine after the clock lock is
// released.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if t.armed && !t.deadline.After(c.now) {
			t.armed = false
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	c.mu.Unlock()

	for _, t := range due {
		t.fire()
	}
}

// Armed returns how many timers are currently pending.
func (c *ManualClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.armed {
			n++
		}
	}
	return n
}

type manualTimer struct {
	clock    *ManualClock
	fire     func()
	armed    bool
	deadline time.Time
}

func (t *manualTimer) Reset(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.armed = true
	t.deadline = t.clock.now.Add(d)
}

func (t *manualTimer) Cancel() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.armed = false
}
