package render

import "time"

const (
	// DefaultFrameCadence is how long each walking frame is shown.
	DefaultFrameCadence = 200 * time.Millisecond

	// IdleFrame is drawn while a user stands still.
	IdleFrame = 0

	firstWalkFrame = 1
	lastWalkFrame  = 3
)

type animState struct {
	frame    int
	advanced time.Time
}

// Animator tracks the walking frame of every drawn user.
type Animator struct {
	cadence time.Duration
	states  map[string]*animState
}

// NewAnimator returns an animator advancing every cadence. Non-positive
// values select DefaultFrameCadence.
func NewAnimator(cadence time.Duration) *Animator {
	if cadence <= 0 {
		cadence = DefaultFrameCadence
	}
	return &Animator{
		cadence: cadence,
		states:  make(map[string]*animState),
	}
}

// Frame returns the sprite column for id at now. Idle users are pinned to
// IdleFrame; moving users cycle through the walk frames, wrapping back to the
// first one.
func (a *Animator) Frame(id string, moving bool, now time.Time) int {
	st, ok := a.states[id]
	if !ok {
		st = &animState{frame: IdleFrame, advanced: now}
		a.states[id] = st
	}

	if !moving {
		st.frame = IdleFrame
		st.advanced = now
		return st.frame
	}

	if st.frame == IdleFrame {
		st.frame = firstWalkFrame
		st.advanced = now
		return st.frame
	}

	if now.Sub(st.advanced) >= a.cadence {
		st.frame++
		if st.frame > lastWalkFrame {
			st.frame = firstWalkFrame
		}
		st.advanced = now
	}
	return st.frame
}

// Retain drops the state of every id not in keep.
func (a *Animator) Retain(keep map[string]struct{}) {
	for id := range a.states {
		if _, ok := keep[id]; !ok {
			delete(a.states, id)
		}
	}
}

// Len returns the number of tracked users.
func (a *Animator) Len() int {
	return len(a.states)
}
