/*
Package relay is the server side of the realtime protocol: a best-effort fan-out
hub that groups connections into rooms and forwards movement, chat and whiteboard
events between them.

Each Room runs its own goroutine; each Peer runs a read and a write pump. The
Manager owns the room index and removes rooms once they stop.
*/
package relay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"metaverse/internal/app/board"
	"metaverse/internal/pkg/errs"
	"metaverse/internal/pkg/logx"
	"metaverse/internal/pkg/randx"
)

const roomCodeAttempts = 5

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Boards persists whiteboard snapshots. Defaults to an in-memory store.
	Boards board.Store

	// RoomInactivityTimeout defaults to RoomInactivityTimeout.
	RoomInactivityTimeout time.Duration

	Logger *zerolog.Logger
}

// RoomInfo describes an active room.
type RoomInfo struct {
	Type       RoomType `json:"roomType"`
	ID         string   `json:"roomId"`
	Members    int      `json:"members"`
	MaxClients int      `json:"maxClients"`
}

// Manager indexes the active rooms by Key.
type Manager struct {
	rooms   map[string]*Room
	mu      sync.RWMutex
	closed  bool
	boards  board.Store
	timeout time.Duration

	cleanup  chan *Room
	quit     chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup

	logger zerolog.Logger
}

// NewManager starts a manager and its cleanup loop.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Boards == nil {
		opts.Boards = board.NewMemoryStore()
	}

	m := &Manager{
		rooms:    make(map[string]*Room),
		boards:   opts.Boards,
		timeout:  opts.RoomInactivityTimeout,
		cleanup:  make(chan *Room, 64),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	if opts.Logger != nil {
		m.logger = opts.Logger.With().Str("component", "relay").Logger()
	} else {
		m.logger = logx.Component("relay")
	}

	go m.runCleanupLoop()
	return m
}

func (m *Manager) runCleanupLoop() {
	defer close(m.loopDone)
	for {
		select {
		case r := <-m.cleanup:
			m.deleteRoom(r)
		case <-m.quit:
			return
		}
	}
}

// deleteRoom removes r from the index unless it was already replaced.
func (m *Manager) deleteRoom(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.rooms[r.key]; ok && current == r {
		delete(m.rooms, r.key)
		m.logger.Info().Str("room", r.key).Int("active_rooms", len(m.rooms)).Msg("Room removed")
	}
}

// Room returns the running room for (t, id). Lobby, quest and personal rooms are
// started on first use; meeting rooms must have been created with CreateMeeting.
func (m *Manager) Room(t RoomType, id string) (*Room, *errs.CustomError) {
	if _, ok := ParseRoomType(string(t)); !ok {
		return nil, errs.NewError(errs.ErrRoomTypeInvalid)
	}
	if !IsValidRoomID(id) {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	key := Key(t, id)

	m.mu.RLock()
	r, ok := m.rooms[key]
	m.mu.RUnlock()
	if ok && !r.Stopped() {
		return r, nil
	}

	if t == RoomMeeting {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}
	if r, ok := m.rooms[key]; ok && !r.Stopped() {
		return r, nil
	}

	maxClients := DefaultMaxClients
	if t == RoomPersonal {
		maxClients = PersonalMaxClients
	}
	return m.startLocked(t, id, maxClients), nil
}

// CreateMeeting starts a meeting room under a fresh room code.
func (m *Manager) CreateMeeting(maxClients int) (*Room, *errs.CustomError) {
	if maxClients == 0 {
		maxClients = DefaultMeetingClients
	}
	if maxClients < 2 || maxClients > MaxMeetingClients {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errs.NewError(errs.ErrUnknown)
	}

	for range roomCodeAttempts {
		code, err := randx.RoomCode()
		if err != nil {
			return nil, errs.NewError(errs.ErrUnknown, err)
		}
		if _, taken := m.rooms[Key(RoomMeeting, code)]; taken {
			continue
		}
		return m.startLocked(RoomMeeting, code, maxClients), nil
	}

	m.logger.Error().Int("attempts", roomCodeAttempts).Msg("Could not find a free room code")
	return nil, errs.NewError(errs.ErrRoomCodeExists)
}

func (m *Manager) startLocked(t RoomType, id string, maxClients int) *Room {
	r := newRoom(roomOptions{
		Type:       t,
		ID:         id,
		MaxClients: maxClients,
		Boards:     m.boards,
		Timeout:    m.timeout,
		Cleanup:    m.cleanup,
		Logger:     m.logger,
	})
	m.rooms[r.key] = r

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.Run()
	}()

	m.logger.Info().Str("room", r.key).Int("active_rooms", len(m.rooms)).Msg("Room created")
	return r
}

// Lookup returns the running room for (t, id) without starting one.
func (m *Manager) Lookup(t RoomType, id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[Key(t, id)]
	if !ok || r.Stopped() {
		return nil, false
	}
	return r, true
}

// Rooms lists the running rooms ordered by key.
func (m *Manager) Rooms() []RoomInfo {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if !r.Stopped() {
			rooms = append(rooms, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].key < rooms[j].key })

	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, RoomInfo{
			Type:       r.Type,
			ID:         r.ID,
			Members:    r.MemberCount(),
			MaxClients: r.MaxClients,
		})
	}
	return infos
}

// Board returns the latest whiteboard content for (t, id): the live room's when
// it is running, otherwise the saved snapshot.
func (m *Manager) Board(ctx context.Context, t RoomType, id string) ([]byte, *errs.CustomError) {
	if _, ok := ParseRoomType(string(t)); !ok {
		return nil, errs.NewError(errs.ErrRoomTypeInvalid)
	}
	if !IsValidRoomID(id) {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	if r, ok := m.Lookup(t, id); ok {
		if content := r.Board(); content != nil {
			return content, nil
		}
		return nil, errs.NewError(errs.ErrBoardNotFound)
	}

	content, err := m.boards.Load(ctx, Key(t, id))
	switch {
	case errors.Is(err, board.ErrNotFound):
		return nil, errs.NewError(errs.ErrBoardNotFound)
	case err != nil:
		m.logger.Error().Err(err).Str("room", Key(t, id)).Msg("Board load failed")
		return nil, errs.NewError(errs.ErrStorageFailed)
	}
	return content, nil
}

// Shutdown stops every room, waits for their boards to be saved and stops the
// cleanup loop. Later calls to Room and CreateMeeting fail.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	m.logger.Info().Int("rooms", len(rooms)).Msg("Stopping rooms")
	for _, r := range rooms {
		r.Stop()
	}
	m.wg.Wait()

	close(m.quit)
	<-m.loopDone
	m.logger.Info().Msg("Relay shut down")
}
