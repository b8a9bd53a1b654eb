package relay

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"metaverse/internal/app/board"
	"metaverse/internal/app/protocol"
	"metaverse/internal/pkg/errs"
)

// RoomType is the kind of space a room represents.
type RoomType string

const (
	RoomLobby    RoomType = "lobby"
	RoomMeeting  RoomType = "meeting"
	RoomPersonal RoomType = "personal"
	RoomQuest    RoomType = "quest"
)

const (
	// RoomInactivityTimeout is how long an empty room lives before it stops.
	RoomInactivityTimeout = 5 * time.Minute

	DefaultMaxClients     = 50
	PersonalMaxClients    = 10
	DefaultMeetingClients = 10
	MaxMeetingClients     = 50

	boardIOTimeout = 5 * time.Second
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ParseRoomType returns the RoomType named by s.
func ParseRoomType(s string) (RoomType, bool) {
	switch t := RoomType(s); t {
	case RoomLobby, RoomMeeting, RoomPersonal, RoomQuest:
		return t, true
	}
	return "", false
}

// IsValidRoomID reports whether id can name a room.
func IsValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// Key is the manager's index for a room.
func Key(t RoomType, id string) string {
	return string(t) + "/" + id
}

// member is a connected user and the last position the room saw from it.
// A member is announced to the others on its first movement.
type member struct {
	peer       *Peer
	positioned bool
	x, y       float64
	direction  int
}

// inbound is a decoded frame, or a decode failure, from one peer.
type inbound struct {
	from  *Peer
	event protocol.ClientEvent
	err   *errs.CustomError
}

type roomOptions struct {
	Type       RoomType
	ID         string
	MaxClients int
	Boards     board.Store
	Timeout    time.Duration
	Cleanup    chan<- *Room
	Logger     zerolog.Logger
}

// Room relays events between the peers in one space. All member and board
// state is owned by the Run goroutine; mu only guards reads from other
// goroutines.
type Room struct {
	Type       RoomType
	ID         string
	MaxClients int
	key        string

	mu      sync.RWMutex
	members map[string]*member
	board   []byte

	register   chan *Peer
	unregister chan *Peer
	inbound    chan inbound

	stopChan chan struct{}
	stopOnce sync.Once
	closing  chan struct{}
	done     chan struct{}

	boards    board.Store
	saves     chan []byte
	saverDone chan struct{}

	timeout time.Duration
	cleanup chan<- *Room
	logger  zerolog.Logger
}

func newRoom(opts roomOptions) *Room {
	if opts.Timeout <= 0 {
		opts.Timeout = RoomInactivityTimeout
	}
	if opts.Boards == nil {
		opts.Boards = board.NewMemoryStore()
	}

	key := Key(opts.Type, opts.ID)
	return &Room{
		Type:       opts.Type,
		ID:         opts.ID,
		MaxClients: opts.MaxClients,
		key:        key,
		members:    make(map[string]*member),
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		inbound:    make(chan inbound, 256),
		stopChan:   make(chan struct{}),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		boards:     opts.Boards,
		saves:      make(chan []byte, 1),
		saverDone:  make(chan struct{}),
		timeout:    opts.Timeout,
		cleanup:    opts.Cleanup,
		logger:     opts.Logger.With().Str("room", key).Logger(),
	}
}

// Key returns "<type>/<id>".
func (r *Room) Key() string { return r.key }

// MemberCount returns the number of connected members.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Board returns a copy of the latest whiteboard content, or nil.
func (r *Room) Board() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.board) == 0 {
		return nil
	}
	return append([]byte(nil), r.board...)
}

// Stop ends Run. It is safe to call more than once.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

// Stopped reports whether the room no longer accepts peers.
func (r *Room) Stopped() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Done is closed once Run has returned and pending board saves are flushed.
func (r *Room) Done() <-chan struct{} { return r.done }

// Run is the room's event loop.
func (r *Room) Run() {
	r.loadBoard()
	go r.saveLoop()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	defer r.shutdown()

	r.logger.Info().Int("max_clients", r.MaxClients).Msg("Room started")

	for {
		select {
		case p := <-r.register:
			r.handleRegister(p)
			if len(r.members) > 0 {
				timer.Stop()
			}

		case p := <-r.unregister:
			r.handleUnregister(p)
			if len(r.members) == 0 {
				timer.Reset(r.timeout)
			}

		case in := <-r.inbound:
			r.handleInbound(in)

		case <-timer.C:
			if len(r.members) == 0 {
				r.logger.Info().Dur("timeout", r.timeout).Msg("Room inactive, stopping")
				return
			}

		case <-r.stopChan:
			r.logger.Info().Msg("Room stopped")
			return
		}
	}
}

func (r *Room) loadBoard() {
	ctx, cancel := context.WithTimeout(context.Background(), boardIOTimeout)
	defer cancel()

	content, err := r.boards.Load(ctx, r.key)
	switch {
	case errors.Is(err, board.ErrNotFound):
	case err != nil:
		r.logger.Warn().Err(err).Msg("Could not load saved board, starting empty")
	default:
		r.board = content
		r.logger.Debug().Int("bytes", len(content)).Msg("Board restored")
	}
}

// saveLoop writes board snapshots in order, skipping ones superseded while a
// save was in flight.
func (r *Room) saveLoop() {
	defer close(r.saverDone)
	for content := range r.saves {
		ctx, cancel := context.WithTimeout(context.Background(), boardIOTimeout)
		if err := r.boards.Save(ctx, r.key, content); err != nil {
			r.logger.Error().Err(err).Msg("Board save failed")
		}
		cancel()
	}
}

// persist queues content for saving, replacing any snapshot not yet picked up.
func (r *Room) persist(content []byte) {
	for {
		select {
		case r.saves <- content:
			return
		default:
		}
		select {
		case <-r.saves:
		default:
		}
	}
}

func (r *Room) shutdown() {
	close(r.closing)

	r.mu.Lock()
	for id, m := range r.members {
		m.peer.close(websocket.CloseGoingAway, "room closed")
		delete(r.members, id)
	}
	r.mu.Unlock()

	close(r.saves)
	<-r.saverDone
	close(r.done)

	if r.cleanup != nil {
		select {
		case r.cleanup <- r:
		default:
			r.logger.Warn().Msg("Cleanup queue full, room left for lazy removal")
		}
	}
}

func (r *Room) handleRegister(p *Peer) {
	id := p.user.ID

	if existing, ok := r.members[id]; ok {
		existing.peer.sendError(errs.NewError(errs.ErrSessionKicked))
		existing.peer.close(CloseKicked, "replaced by a new connection")

		r.mu.Lock()
		existing.peer = p
		r.mu.Unlock()

		r.logger.Info().Str("user_id", id).Msg("Duplicate connection replaced the previous one")
	} else {
		if r.MaxClients > 0 && len(r.members) >= r.MaxClients {
			p.sendError(errs.NewError(errs.ErrRoomIsFull))
			p.close(websocket.ClosePolicyViolation, "room is full")
			r.logger.Warn().Str("user_id", id).Int("max_clients", r.MaxClients).Msg("Rejected join, room full")
			return
		}

		r.mu.Lock()
		r.members[id] = &member{peer: p}
		r.mu.Unlock()

		r.logger.Info().Str("user_id", id).Int("members", len(r.members)).Msg("Peer joined")
	}

	for otherID, m := range r.members {
		if otherID == id || !m.positioned {
			continue
		}
		p.enqueue(m.enter(otherID))
	}
	if len(r.board) > 0 {
		p.enqueue(protocol.Edit{Content: r.board})
	}
}

func (r *Room) handleUnregister(p *Peer) {
	m, ok := r.members[p.user.ID]
	if !ok || m.peer != p {
		return
	}
	r.remove(p.user.ID, m, websocket.CloseNormalClosure, "")
}

// remove drops a member, closes its queue and tells the others it left.
func (r *Room) remove(id string, m *member, code int, text string) {
	r.mu.Lock()
	delete(r.members, id)
	r.mu.Unlock()

	m.peer.close(code, text)
	if m.positioned {
		r.broadcast(protocol.Leave{UserID: id}, id)
	}
	r.logger.Info().Str("user_id", id).Int("members", len(r.members)).Msg("Peer left")
}

func (r *Room) handleInbound(in inbound) {
	id := in.from.user.ID
	m, ok := r.members[id]
	if !ok || m.peer != in.from {
		return
	}

	if in.err != nil {
		in.from.sendError(in.err)
		return
	}

	switch ev := in.event.(type) {
	case protocol.Movement:
		first := !m.positioned
		m.positioned = true
		m.x, m.y, m.direction = ev.X, ev.Y, ev.Direction

		if first {
			r.broadcast(m.enter(id), id)
			return
		}
		r.broadcast(protocol.Movement{
			UserID:    id,
			RoomID:    r.ID,
			X:         ev.X,
			Y:         ev.Y,
			Direction: ev.Direction,
			Nickname:  in.from.user.Nickname,
		}, id)

	case protocol.ChatSend:
		r.broadcast(protocol.ChatReceived{
			UserName: in.from.user.Nickname,
			Message:  ev.Message,
		}, "")

	case protocol.Edit:
		if len(ev.Content) > board.MaxContentBytes {
			in.from.sendError(errs.NewError(errs.ErrBoardContentTooLarge))
			return
		}

		r.mu.Lock()
		r.board = ev.Content
		r.mu.Unlock()

		r.broadcast(ev, id)
		r.persist(ev.Content)
	}
}

// broadcast sends msg to every member except the one with id exclude. Members
// whose queue is full are dropped.
func (r *Room) broadcast(msg protocol.ServerEvent, exclude string) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error().Err(err).Str("event", string(msg.Event())).Msg("Failed to encode broadcast")
		return
	}

	var slow []string
	for id, m := range r.members {
		if id == exclude {
			continue
		}
		if !m.peer.enqueueFrame(frame) {
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		if m, ok := r.members[id]; ok {
			r.logger.Warn().Str("user_id", id).Msg("Send queue full, dropping peer")
			r.remove(id, m, websocket.CloseTryAgainLater, "too slow")
		}
	}
}

func (m *member) enter(id string) protocol.Enter {
	return protocol.Enter{
		UserID:    id,
		Nickname:  m.peer.user.Nickname,
		X:         m.x,
		Y:         m.y,
		Direction: m.direction,
	}
}
