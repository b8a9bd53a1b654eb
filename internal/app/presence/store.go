/*
Package presence keeps the client's table of remote users and turns their bursty
network positions into smooth per-frame draw positions.

A Store is created per session and handed to the transport handlers that mutate it
and to the render loop that samples it. It is not safe for concurrent use: every
call is expected on the game goroutine, which is also where inbound network
events are dispatched.
*/
package presence

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanema/gween/ease"

	"metaverse/internal/pkg/logx"
)

// Direction is the facing used to pick the sprite row.
type Direction int

const (
	Down Direction = iota
	Up
	Right
	Left
)

func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	case Right:
		return "right"
	case Left:
		return "left"
	}
	return "unknown"
}

// Valid reports whether d is one of the four facings.
func (d Direction) Valid() bool {
	return d >= Down && d <= Left
}

// RemoteUser is one participant as seen by this client.
type RemoteUser struct {
	ID       string
	Nickname string

	// Logical is the last position reported by the network.
	Logical Point

	Direction Direction
	IsMoving  bool

	// Draw is the interpolated render position. Only the store writes it.
	Draw Point

	Lerp Segment

	idle idleTimer
}

// Options tunes a Store. Zero values select the defaults.
type Options struct {
	LerpDuration time.Duration
	IdleWindow   time.Duration

	// Ease is the interpolation curve, ease.Linear when nil.
	Ease ease.TweenFunc

	Logger *zerolog.Logger
}

// Store is the presence table keyed by user id.
type Store struct {
	users  map[string]*RemoteUser
	lerp   time.Duration
	idle   time.Duration
	ease   ease.TweenFunc
	logger zerolog.Logger
	closed bool
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	s := &Store{
		users: make(map[string]*RemoteUser),
		lerp:  opts.LerpDuration,
		idle:  opts.IdleWindow,
		ease:  opts.Ease,
	}

	if s.lerp <= 0 {
		s.lerp = DefaultLerpDuration
	}
	if s.idle <= 0 {
		s.idle = DefaultIdleWindow
	}

	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "presence").Logger()
	} else {
		s.logger = logx.Component("presence")
	}

	return s
}

// LerpDuration returns the configured interpolation duration.
func (s *Store) LerpDuration() time.Duration { return s.lerp }

// IdleWindow returns the configured idle debounce window.
func (s *Store) IdleWindow() time.Duration { return s.idle }

// AddUser inserts id at (x, y) with its draw position already there. If id is
// already present the call is treated as a position update, so repeated enter
// events are harmless. It reports whether a new entry was created.
func (s *Store) AddUser(id, nickname string, x, y float64, now time.Time) bool {
	if s.closed || id == "" {
		return false
	}

	if u, ok := s.users[id]; ok {
		if nickname != "" {
			u.Nickname = nickname
		}
		s.update(u, x, y, u.Direction, true, now)
		return false
	}

	p := Point{X: x, Y: y}
	s.users[id] = &RemoteUser{
		ID:       id,
		Nickname: nickname,
		Logical:  p,
		Draw:     p,
		Lerp:     settled(p, now),
	}

	s.logger.Debug().
		Str("user_id", id).
		Str("nickname", nickname).
		Float64("x", x).
		Float64("y", y).
		Int("total_users", len(s.users)).
		Msg("User added")

	return true
}

// UpdateUserPosition records a new logical position for a known user and opens
// a lerp segment from wherever the user is currently drawn. Updates for unknown
// ids are ignored and reported as false; callers that want implicit creation
// must call AddUser first.
func (s *Store) UpdateUserPosition(id string, x, y float64, dir Direction, moving bool, now time.Time) bool {
	if s.closed {
		return false
	}

	u, ok := s.users[id]
	if !ok {
		s.logger.Debug().Str("user_id", id).Msg("Ignoring position update for unknown user")
		return false
	}

	if !dir.Valid() {
		dir = u.Direction
	}

	s.update(u, x, y, dir, moving, now)
	return true
}

func (s *Store) update(u *RemoteUser, x, y float64, dir Direction, moving bool, now time.Time) {
	u.Draw = u.Lerp.At(now)

	u.Logical = Point{X: x, Y: y}
	u.Direction = dir
	u.IsMoving = moving

	u.Lerp = Segment{
		StartX:    u.Draw.X,
		StartY:    u.Draw.Y,
		TargetX:   x,
		TargetY:   y,
		StartTime: now,
		Duration:  s.lerp,
		Ease:      s.ease,
	}

	if moving {
		u.idle.arm(now, s.idle)
	} else {
		u.idle.stop()
	}
}

// RemoveUser deletes id and stops its idle timer.
func (s *Store) RemoveUser(id string) bool {
	u, ok := s.users[id]
	if !ok {
		return false
	}

	u.idle.stop()
	delete(s.users, id)

	s.logger.Debug().
		Str("user_id", id).
		Int("total_users", len(s.users)).
		Msg("User removed")

	return true
}

// Advance fires expired idle timers and recomputes every draw position for now.
// It is called once per drawn frame.
func (s *Store) Advance(now time.Time) {
	for _, u := range s.users {
		if u.idle.fire(now) {
			s.update(u, u.Logical.X, u.Logical.Y, u.Direction, false, now)
		}
		u.Draw = u.Lerp.At(now)
	}
}

// Get returns a copy of the entry for id.
func (s *Store) Get(id string) (RemoteUser, bool) {
	u, ok := s.users[id]
	if !ok {
		return RemoteUser{}, false
	}
	return *u, true
}

// Len returns the number of users.
func (s *Store) Len() int {
	return len(s.users)
}

// Snapshot returns copies of all entries ordered by id, which keeps draw order
// stable between frames.
func (s *Store) Snapshot() []RemoteUser {
	out := make([]RemoteUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear drops every entry. Used when the connection is re-established and the
// relay is about to send a fresh roster.
func (s *Store) Clear() {
	for id, u := range s.users {
		u.idle.stop()
		delete(s.users, id)
	}
}

// Close clears the store and rejects further mutations.
func (s *Store) Close() {
	s.Clear()
	s.closed = true
}
