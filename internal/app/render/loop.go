package render

import (
	"sync/atomic"
	"time"
)

// DefaultTargetFPS caps how often a frame is drawn.
const DefaultTargetFPS = 30

// Loop throttles the host's per-frame callback down to a target frame rate.
// The host calls Tick on every callback; only ticks that return true draw.
type Loop struct {
	interval time.Duration
	last     time.Time
	started  bool
	stopped  atomic.Bool
}

// NewLoop returns a loop capped at fps frames per second. Non-positive values
// select DefaultTargetFPS.
func NewLoop(fps int) *Loop {
	if fps <= 0 {
		fps = DefaultTargetFPS
	}
	return &Loop{interval: time.Second / time.Duration(fps)}
}

// Interval returns the minimum time between drawn frames.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Tick reports whether a frame should be drawn at now.
func (l *Loop) Tick(now time.Time) bool {
	if l.stopped.Load() {
		return false
	}
	if l.started && now.Sub(l.last) < l.interval {
		return false
	}
	l.started = true
	l.last = now
	return true
}

// Stop cancels the loop. It is safe to call from any goroutine and more than once.
func (l *Loop) Stop() {
	l.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	return l.stopped.Load()
}
