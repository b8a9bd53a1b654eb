package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"metaverse/internal/app/transport"
	"metaverse/internal/app/world"
	"metaverse/internal/pkg/logx"
)

const defaultJoinTimeout = 5 * time.Second

// DialFunc opens a connection to a room.
type DialFunc func(ctx context.Context, roomType, roomID string) (*transport.Conn, error)

// Joined is the outcome of one portal join.
type Joined struct {
	Portal world.Portal
	Conn   *transport.Conn
	Err    error
}

// JoinerOptions configures a Joiner.
type JoinerOptions struct {
	// Timeout bounds one dial. Defaults to 5s.
	Timeout time.Duration

	Logger *zerolog.Logger
}

// Joiner dials portal targets off the game goroutine. At most one dial is in
// flight. A portal whose dial failed is skipped until the avatar steps off it.
//
// Touch, Poll and Close run on the game goroutine.
type Joiner struct {
	dial    DialFunc
	timeout time.Duration
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	results chan Joined
	busy    bool
	failed  string
}

// NewJoiner returns a Joiner using dial.
func NewJoiner(dial DialFunc, opts JoinerOptions) *Joiner {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultJoinTimeout
	}
	logger := logx.Component("joiner")
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "joiner").Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Joiner{
		dial:    dial,
		timeout: opts.Timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan Joined, 1),
	}
}

// Touch reports the portal state after a movement step. It starts a dial when
// the avatar is inside a portal and none is running. It reports whether a dial
// was started.
func (j *Joiner) Touch(p world.Portal, inside bool) bool {
	if !inside {
		j.failed = ""
		return false
	}
	if j.busy || j.ctx.Err() != nil || p.Name == j.failed {
		return false
	}

	j.busy = true
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ctx, cancel := context.WithTimeout(j.ctx, j.timeout)
		defer cancel()

		conn, err := j.dial(ctx, p.RoomType, p.RoomID)
		if j.ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		j.results <- Joined{Portal: p, Conn: conn, Err: err}
	}()
	return true
}

// Busy reports whether a dial is in flight.
func (j *Joiner) Busy() bool {
	return j.busy
}

// Poll returns a finished join without blocking.
func (j *Joiner) Poll() (Joined, bool) {
	select {
	case r := <-j.results:
		j.busy = false
		if r.Err != nil {
			j.failed = r.Portal.Name
			j.logger.Warn().Err(r.Err).Str("portal", r.Portal.Name).Msg("Portal target unavailable")
		}
		return r, true
	default:
		return Joined{}, false
	}
}

// Close abandons a dial in flight and closes any connection it produced.
func (j *Joiner) Close() {
	j.cancel()
	j.wg.Wait()

	select {
	case r := <-j.results:
		if r.Conn != nil {
			_ = r.Conn.Close()
		}
	default:
	}
	j.busy = false
}
