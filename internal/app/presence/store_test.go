package presence

import (
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewStore(Options{})
}

func TestEnterThenMoveScenario(t *testing.T) {
	s := newTestStore()

	s.AddUser("u1", "Bob", 100, 100, t0)
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	u, _ := s.Get("u1")
	if u.Draw != (Point{100, 100}) || u.Logical != (Point{100, 100}) {
		t.Fatalf("new user draw=%v logical=%v", u.Draw, u.Logical)
	}

	tMove := t0.Add(time.Second)
	if !s.UpdateUserPosition("u1", 200, 100, Right, true, tMove) {
		t.Fatal("update of known user reported false")
	}

	d := s.LerpDuration()

	s.Advance(tMove.Add(d / 2))
	u, _ = s.Get("u1")
	if !(u.Draw.X > 100 && u.Draw.X < 200) {
		t.Fatalf("half-way draw.X = %v, want strictly between 100 and 200", u.Draw.X)
	}
	if u.Draw.Y != 100 {
		t.Fatalf("draw.Y = %v, want 100", u.Draw.Y)
	}

	s.Advance(tMove.Add(d))
	u, _ = s.Get("u1")
	if u.Draw != (Point{200, 100}) {
		t.Fatalf("draw at end = %v, want exactly (200,100)", u.Draw)
	}
	if u.Direction != Right {
		t.Fatalf("direction = %v, want right", u.Direction)
	}
}

func TestNewUserRendersAtLogicalPosition(t *testing.T) {
	s := newTestStore()
	s.AddUser("u1", "Bob", 42.5, -7.25, t0)

	for _, dt := range []time.Duration{0, time.Millisecond, time.Hour} {
		s.Advance(t0.Add(dt))
		u, _ := s.Get("u1")
		if u.Draw != (Point{42.5, -7.25}) {
			t.Fatalf("at +%v draw = %v", dt, u.Draw)
		}
	}
}

func TestAddUserIsIdempotent(t *testing.T) {
	s := newTestStore()
	if !s.AddUser("u1", "Bob", 1, 1, t0) {
		t.Fatal("first AddUser reported existing")
	}
	if s.AddUser("u1", "Bob", 1, 1, t0.Add(time.Millisecond)) {
		t.Fatal("second AddUser reported new entry")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestAddUserOnExistingActsAsMove(t *testing.T) {
	s := newTestStore()
	s.AddUser("u1", "Bob", 0, 0, t0)
	s.UpdateUserPosition("u1", 0, 0, Left, false, t0)

	s.AddUser("u1", "Bobby", 50, 0, t0.Add(time.Second))
	u, _ := s.Get("u1")
	if u.Logical != (Point{50, 0}) {
		t.Fatalf("logical = %v", u.Logical)
	}
	if u.Nickname != "Bobby" {
		t.Fatalf("nickname = %q", u.Nickname)
	}
	if u.Direction != Left {
		t.Fatalf("direction changed to %v", u.Direction)
	}
	if u.Draw != (Point{0, 0}) {
		t.Fatalf("draw snapped to %v instead of interpolating", u.Draw)
	}
}

func TestUpdateUnknownUserIsIgnored(t *testing.T) {
	s := newTestStore()
	if s.UpdateUserPosition("ghost", 1, 2, Up, true, t0) {
		t.Fatal("update of unknown id reported true")
	}
	if s.Len() != 0 {
		t.Fatalf("ghost entry created, Len = %d", s.Len())
	}
}

func TestBackToBackUpdatesRestartFromDrawPosition(t *testing.T) {
	s := newTestStore()
	s.AddUser("u1", "Bob", 0, 0, t0)
	d := s.LerpDuration()

	s.UpdateUserPosition("u1", 100, 0, Right, true, t0)
	mid := t0.Add(d / 2)
	s.Advance(mid)
	before, _ := s.Get("u1")

	// Second update arrives before the first lerp completed.
	s.UpdateUserPosition("u1", 100, 0, Right, true, mid)
	after, _ := s.Get("u1")

	if after.Lerp.StartX != before.Draw.X {
		t.Fatalf("new segment starts at %v, want current draw %v", after.Lerp.StartX, before.Draw.X)
	}
	if after.Draw != before.Draw {
		t.Fatalf("draw jumped from %v to %v", before.Draw, after.Draw)
	}

	s.Advance(mid.Add(d))
	final, _ := s.Get("u1")
	if final.Draw != (Point{100, 0}) {
		t.Fatalf("final draw = %v", final.Draw)
	}
}

func TestDrawConvergesWithoutOvershoot(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := newTestStore()
	s.AddUser("u1", "Bob", 0, 0, t0)
	d := s.LerpDuration()

	now := t0
	for i := 0; i < 200; i++ {
		tx := rng.Float64()*2000 - 1000
		ty := rng.Float64()*2000 - 1000

		s.UpdateUserPosition("u1", tx, ty, Down, true, now)
		seg := mustGet(t, s, "u1").Lerp
		lo, hi := minmax(seg.StartX, seg.TargetX)

		step := time.Duration(rng.Int63n(int64(d)))
		for _, sample := range []time.Duration{0, step / 3, step, d - time.Nanosecond} {
			s.Advance(now.Add(sample))
			x := mustGet(t, s, "u1").Draw.X
			if x < lo || x > hi {
				t.Fatalf("draw.X %v left segment box [%v, %v]", x, lo, hi)
			}
		}

		if rng.Intn(2) == 0 {
			s.Advance(now.Add(d))
			if got := mustGet(t, s, "u1").Draw; got != (Point{tx, ty}) {
				t.Fatalf("draw %v did not converge to %v", got, Point{tx, ty})
			}
			now = now.Add(d)
		} else {
			now = now.Add(step)
		}
	}
}

func TestIdleWindowClearsMoving(t *testing.T) {
	s := newTestStore()
	s.AddUser("u1", "Bob", 0, 0, t0)
	s.UpdateUserPosition("u1", 10, 0, Right, true, t0)

	idle := s.IdleWindow()
	frame := time.Second / 30

	s.Advance(t0.Add(idle - time.Millisecond))
	if !mustGet(t, s, "u1").IsMoving {
		t.Fatal("IsMoving cleared before the idle window elapsed")
	}

	// First frame at or after the deadline must clear the flag.
	s.Advance(t0.Add(idle - time.Millisecond + frame))
	u := mustGet(t, s, "u1")
	if u.IsMoving {
		t.Fatal("IsMoving still set one frame after the idle window")
	}
	if u.Draw != (Point{10, 0}) || u.Logical != (Point{10, 0}) {
		t.Fatalf("idle transition moved the user: draw=%v logical=%v", u.Draw, u.Logical)
	}
}

func TestRapidMovesPostponeIdle(t *testing.T) {
	s := newTestStore()
	s.AddUser("u1", "Bob", 0, 0, t0)
	idle := s.IdleWindow()

	now := t0
	for i := 1; i <= 10; i++ {
		now = now.Add(idle / 2)
		s.UpdateUserPosition("u1", float64(i), 0, Right, true, now)
		s.Advance(now)
		if !mustGet(t, s, "u1").IsMoving {
			t.Fatalf("IsMoving cleared during continuous movement at step %d", i)
		}
	}
}

func TestRemoveMidLerpCancelsTimer(t *testing.T) {
	s := newTestStore()
	s.AddUser("u1", "Bob", 0, 0, t0)
	s.AddUser("u2", "Ann", 5, 5, t0)
	s.UpdateUserPosition("u1", 100, 0, Right, true, t0)
	s.Advance(t0.Add(s.LerpDuration() / 3))

	if !s.RemoveUser("u1") {
		t.Fatal("RemoveUser reported missing")
	}

	// Past the idle deadline of the removed user: must not panic or resurrect it.
	s.Advance(t0.Add(s.IdleWindow() * 2))
	if _, ok := s.Get("u1"); ok {
		t.Fatal("removed user came back")
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].ID != "u2" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if s.RemoveUser("u1") {
		t.Fatal("second RemoveUser reported true")
	}
}

func TestSnapshotIsOrderedCopy(t *testing.T) {
	s := newTestStore()
	for _, id := range []string{"c", "a", "b"} {
		s.AddUser(id, id, 0, 0, t0)
	}
	snap := s.Snapshot()
	if snap[0].ID != "a" || snap[1].ID != "b" || snap[2].ID != "c" {
		t.Fatalf("order = %s %s %s", snap[0].ID, snap[1].ID, snap[2].ID)
	}
	snap[0].Draw = Point{999, 999}
	if mustGet(t, s, "a").Draw == (Point{999, 999}) {
		t.Fatal("snapshot aliases store entries")
	}
}

func TestCloseRejectsMutations(t *testing.T) {
	s := newTestStore()
	s.AddUser("u1", "Bob", 0, 0, t0)
	s.Close()
	if s.Len() != 0 {
		t.Fatalf("Len after Close = %d", s.Len())
	}
	if s.AddUser("u2", "Ann", 0, 0, t0) {
		t.Fatal("AddUser succeeded after Close")
	}
}

func TestInvalidDirectionKeepsPrevious(t *testing.T) {
	s := newTestStore()
	s.AddUser("u1", "Bob", 0, 0, t0)
	s.UpdateUserPosition("u1", 1, 0, Up, true, t0)
	s.UpdateUserPosition("u1", 2, 0, Direction(9), true, t0)
	if d := mustGet(t, s, "u1").Direction; d != Up {
		t.Fatalf("direction = %v, want up", d)
	}
}

func mustGet(t *testing.T, s *Store, id string) RemoteUser {
	t.Helper()
	u, ok := s.Get(id)
	if !ok {
		t.Fatalf("user %q missing", id)
	}
	return u
}

func minmax(a, b float64) (float64, float64) {
	if a < b {
		return a, b
	}
	return b, a
}
