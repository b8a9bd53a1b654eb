/*
Package session binds one room connection to the client state it drives: the
presence store, the chat log, the whiteboard and the local avatar.

Every subscription a Session takes is released by Close, whichever way the
session ends. All methods run on the game goroutine, the same one that calls
the transport's Dispatch.
*/
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"metaverse/internal/app/presence"
	"metaverse/internal/app/protocol"
	"metaverse/internal/app/transport"
	"metaverse/internal/app/user"
	"metaverse/internal/app/whiteboard"
	"metaverse/internal/app/world"
	"metaverse/internal/pkg/logx"
)

var ErrClosed = errors.New("session closed")

// Conn is the part of transport.Conn a session uses.
type Conn interface {
	Send(msg protocol.ClientEvent) error
	Subscribe(event protocol.Event, h transport.Handler) (release func())
	OnReconnect(fn func()) (release func())
}

// Options configures a Session.
type Options struct {
	Self     user.User
	RoomType string
	RoomID   string

	// Avatar places the local user in the room map. Without it the local user
	// moves freely starting at (StartX, StartY).
	Avatar         *world.Avatar
	StartX, StartY float64

	ChatLimit  int
	Whiteboard whiteboard.SyncOptions

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *zerolog.Logger
}

// Session is the client side of one room visit.
type Session struct {
	conn   Conn
	store  *presence.Store
	board  *whiteboard.Document
	syncer *whiteboard.Syncer
	chat   *ChatLog

	self     user.User
	roomType string
	roomID   string

	avatar    *world.Avatar
	x, y      float64
	direction presence.Direction

	now      func() time.Time
	logger   zerolog.Logger
	releases []func()
	closed   bool
}

// New subscribes to conn and seeds store with the local user.
func New(conn Conn, store *presence.Store, opts Options) (*Session, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Whiteboard.Key == nil {
		opts.Whiteboard.Key = whiteboard.IdentityKey
	}

	s := &Session{
		conn:     conn,
		store:    store,
		board:    whiteboard.NewDocument(),
		chat:     NewChatLog(opts.ChatLimit),
		self:     opts.Self,
		roomType: opts.RoomType,
		roomID:   opts.RoomID,
		avatar:   opts.Avatar,
		x:        opts.StartX,
		y:        opts.StartY,
		now:      opts.Now,
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "session").Logger()
	} else {
		s.logger = logx.Component("session")
	}
	s.logger = s.logger.With().Str("room", opts.RoomType+"/"+opts.RoomID).Logger()

	syncer, err := whiteboard.NewSyncer(conn, s.board, opts.Whiteboard)
	if err != nil {
		return nil, fmt.Errorf("create whiteboard syncer: %w", err)
	}
	s.syncer = syncer

	s.releases = append(s.releases,
		conn.Subscribe(protocol.EventEnter, s.onEnter),
		conn.Subscribe(protocol.EventMovement, s.onMovement),
		conn.Subscribe(protocol.EventLeave, s.onLeave),
		conn.Subscribe(protocol.EventChat, s.onChat),
		conn.Subscribe(protocol.EventEdit, s.onEdit),
		conn.OnReconnect(s.onReconnect),
	)

	if s.avatar != nil {
		s.x, s.y = s.avatar.Position()
	}
	s.store.AddUser(s.self.ID, s.self.Nickname, s.x, s.y, s.now())

	s.logger.Info().Str("user_id", s.self.ID).Msg("Session started")
	return s, nil
}

// Store returns the presence store the session mutates.
func (s *Session) Store() *presence.Store { return s.store }

// Board returns the local whiteboard document.
func (s *Session) Board() *whiteboard.Document { return s.board }

// Chat returns the chat log.
func (s *Session) Chat() *ChatLog { return s.chat }

// Self returns the local identity.
func (s *Session) Self() user.User { return s.self }

// Position returns the local user's logical position and facing.
func (s *Session) Position() (float64, float64, presence.Direction) {
	return s.x, s.y, s.direction
}

func (s *Session) onEnter(ev protocol.ServerEvent) {
	e, ok := ev.(protocol.Enter)
	if !ok || e.UserID == s.self.ID {
		return
	}

	now := s.now()
	if s.store.AddUser(e.UserID, e.Nickname, e.X, e.Y, now) {
		s.store.UpdateUserPosition(e.UserID, e.X, e.Y, presence.Direction(e.Direction), false, now)
	}
}

func (s *Session) onMovement(ev protocol.ServerEvent) {
	m, ok := ev.(protocol.Movement)
	if !ok || m.UserID == s.self.ID {
		return
	}

	now := s.now()
	if _, known := s.store.Get(m.UserID); !known {
		s.store.AddUser(m.UserID, m.Nickname, m.X, m.Y, now)
	}
	s.store.UpdateUserPosition(m.UserID, m.X, m.Y, presence.Direction(m.Direction), true, now)
}

func (s *Session) onLeave(ev protocol.ServerEvent) {
	l, ok := ev.(protocol.Leave)
	if !ok || l.UserID == s.self.ID {
		return
	}
	s.store.RemoveUser(l.UserID)
}

func (s *Session) onChat(ev protocol.ServerEvent) {
	c, ok := ev.(protocol.ChatReceived)
	if !ok {
		return
	}
	s.chat.Append(ChatEntry{UserName: c.UserName, Message: c.Message, ReceivedAt: s.now()})
}

func (s *Session) onEdit(ev protocol.ServerEvent) {
	e, ok := ev.(protocol.Edit)
	if !ok {
		return
	}
	if _, err := s.syncer.Apply(s.board, e.Content); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping unreadable whiteboard snapshot")
	}
}

// onReconnect starts over from an empty roster; the relay re-sends it on join.
func (s *Session) onReconnect() {
	now := s.now()
	s.store.Clear()
	s.store.AddUser(s.self.ID, s.self.Nickname, s.x, s.y, now)
	s.store.UpdateUserPosition(s.self.ID, s.x, s.y, s.direction, false, now)
	s.sendPosition()
	s.logger.Info().Msg("Presence reset after reconnect")
}

// Announce sends the current position. The relay introduces a user to the room
// on its first position, so clients call this once after New.
func (s *Session) Announce() {
	if s.closed {
		return
	}
	s.sendPosition()
}

// MoveLocal moves the local user by (dx, dy), updates its presence entry and
// tells the room. It returns the portal the user walked into, if any.
func (s *Session) MoveLocal(dx, dy float64) (world.Portal, bool) {
	if s.closed || (dx == 0 && dy == 0) {
		return world.Portal{}, false
	}

	dir := facing(dx, dy)

	var (
		portal world.Portal
		inside bool
	)
	if s.avatar != nil {
		portal, inside = s.avatar.Move(dx, dy)
		s.x, s.y = s.avatar.Position()
	} else {
		s.x += dx
		s.y += dy
	}
	s.direction = dir

	s.store.UpdateUserPosition(s.self.ID, s.x, s.y, dir, true, s.now())
	s.sendPosition()

	return portal, inside
}

func (s *Session) sendPosition() {
	err := s.conn.Send(protocol.Movement{
		UserID:    s.self.ID,
		RoomID:    s.roomID,
		X:         s.x,
		Y:         s.y,
		Direction: int(s.direction),
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("Movement not sent")
	}
}

// SendChat posts text to the room. The local log only shows it once the relay
// echoes it back.
func (s *Session) SendChat(text string) error {
	if s.closed {
		return ErrClosed
	}
	if text == "" {
		return nil
	}
	if len(text) > protocol.MaxChatBytes {
		return fmt.Errorf("chat message is %d bytes, max %d", len(text), protocol.MaxChatBytes)
	}

	return s.conn.Send(protocol.ChatSend{
		RoomType: s.roomType,
		RoomID:   s.roomID,
		ClientID: s.self.ID,
		UserName: s.self.Nickname,
		Message:  text,
	})
}

// SyncBoard is called once per frame and sends the whiteboard when it changed.
func (s *Session) SyncBoard() {
	if s.closed {
		return
	}
	if _, err := s.syncer.Poll(s.board); err != nil {
		s.logger.Debug().Err(err).Msg("Whiteboard edit not sent")
	}
}

// Close releases every subscription and tears down the presence store.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.release()
	if s.avatar != nil {
		s.avatar.Remove()
	}
	s.store.Close()
	s.logger.Info().Msg("Session closed")
}

func (s *Session) release() {
	for _, r := range s.releases {
		r()
	}
	s.releases = nil
}

// facing picks the sprite row for a step, preferring the horizontal axis.
func facing(dx, dy float64) presence.Direction {
	ax, ay := dx, dy
	if ax < 0 {
		ax = -ax
	}
	if ay < 0 {
		ay = -ay
	}

	switch {
	case ax >= ay && dx > 0:
		return presence.Right
	case ax >= ay && dx < 0:
		return presence.Left
	case dy < 0:
		return presence.Up
	default:
		return presence.Down
	}
}
