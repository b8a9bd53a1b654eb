package presence

import "time"

// DefaultIdleWindow is how long after the last movement update a user keeps
// its walking animation.
const DefaultIdleWindow = 200 * time.Millisecond

// idleTimer is a debounce deadline owned by one RemoteUser. It is polled from
// Store.Advance instead of running on its own goroutine, so it can never fire
// against an entry that has already been removed.
type idleTimer struct {
	deadline time.Time
	armed    bool
}

// arm (re)starts the countdown.
func (t *idleTimer) arm(now time.Time, window time.Duration) {
	t.deadline = now.Add(window)
	t.armed = true
}

func (t *idleTimer) stop() {
	t.armed = false
	t.deadline = time.Time{}
}

// fire reports true exactly once when the deadline has passed.
func (t *idleTimer) fire(now time.Time) bool {
	if !t.armed || now.Before(t.deadline) {
		return false
	}
	t.stop()
	return true
}
