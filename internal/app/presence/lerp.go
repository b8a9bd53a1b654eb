package presence

import (
	"math"
	"time"

	"github.com/tanema/gween/ease"
)

// DefaultLerpDuration is how long a remote avatar takes to glide to a newly
// reported position.
const DefaultLerpDuration = 50 * time.Millisecond

// Point is a 2D map coordinate in pixels.
type Point struct {
	X, Y float64
}

// Segment is an in-flight transition from a start point to a target point.
type Segment struct {
	StartX, StartY   float64
	TargetX, TargetY float64
	StartTime        time.Time
	Duration         time.Duration

	// Ease shapes the progress curve. Nil means ease.Linear.
	Ease ease.TweenFunc
}

// settled returns a zero-length segment resting on p.
func settled(p Point, now time.Time) Segment {
	return Segment{
		StartX: p.X, StartY: p.Y,
		TargetX: p.X, TargetY: p.Y,
		StartTime: now,
	}
}

// Progress returns the clamped interpolation parameter t in [0, 1].
func (s Segment) Progress(now time.Time) float64 {
	if s.Duration <= 0 {
		return 1
	}
	t := float64(now.Sub(s.StartTime)) / float64(s.Duration)
	return math.Max(0, math.Min(1, t))
}

// Done reports whether the segment has reached its target at now.
func (s Segment) Done(now time.Time) bool {
	return s.Progress(now) >= 1
}

// At samples the segment. Outside the window the result is exactly the start
// or the target.
func (s Segment) At(now time.Time) Point {
	t := s.Progress(now)
	switch {
	case t >= 1:
		return Point{X: s.TargetX, Y: s.TargetY}
	case t <= 0:
		return Point{X: s.StartX, Y: s.StartY}
	}

	e := s.eased(t)
	return Point{
		X: lerpAxis(s.StartX, s.TargetX, e),
		Y: lerpAxis(s.StartY, s.TargetY, e),
	}
}

// eased maps linear progress through the segment's curve. gween works in
// float32, so only the unit progress goes through it; coordinates stay float64.
func (s Segment) eased(t float64) float64 {
	curve := s.Ease
	if curve == nil {
		curve = ease.Linear
	}
	return float64(curve(float32(t), 0, 1, 1))
}

func lerpAxis(start, target, e float64) float64 {
	return start + (target-start)*e
}
