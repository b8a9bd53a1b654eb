package relay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"metaverse/internal/app/board"
	"metaverse/internal/app/protocol"
	"metaverse/internal/app/user"
	"metaverse/internal/pkg/errs"
	"metaverse/internal/pkg/randx"
)

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
	nick string
}

func newTestRelay(t *testing.T, opts ManagerOptions) (*Manager, *httptest.Server) {
	t.Helper()

	m := NewManager(opts)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/ws/"), "/")
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		room, cerr := m.Room(RoomType(parts[0]), parts[1])
		if cerr != nil {
			http.Error(w, cerr.Message, http.StatusNotFound)
			return
		}
		u, err := user.New(r.URL.Query().Get("uid"), r.URL.Query().Get("nn"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = NewPeer(conn, room, u).Serve()
	}))

	t.Cleanup(func() {
		m.Shutdown()
		srv.Close()
	})
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server, room, id, nick string) *testClient {
	t.Helper()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + room +
		"?uid=" + url.QueryEscape(id) + "&nn=" + url.QueryEscape(nick)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", room, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, id: id, nick: nick}
}

func (c *testClient) send(msg protocol.ClientEvent) {
	c.t.Helper()
	frame, err := protocol.Encode(msg)
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) move(x, y float64, dir int) {
	c.t.Helper()
	c.send(protocol.Movement{UserID: c.id, RoomID: "ignored", X: x, Y: y, Direction: dir})
}

func (c *testClient) next() protocol.ServerEvent {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("%s read: %v", c.nick, err)
	}
	ev, err := protocol.DecodeServerEvent(frame)
	if err != nil {
		c.t.Fatalf("%s decode %s: %v", c.nick, frame, err)
	}
	return ev
}

func (c *testClient) expectClose(code int) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != code {
		c.t.Fatalf("%s: got %v, want close %d", c.nick, err, code)
	}
}

func expect[T protocol.ServerEvent](t *testing.T, ev protocol.ServerEvent) T {
	t.Helper()
	v, ok := ev.(T)
	if !ok {
		var zero T
		t.Fatalf("got %#v, want %T", ev, zero)
	}
	return v
}

func TestPresenceFlow(t *testing.T) {
	_, srv := newTestRelay(t, ManagerOptions{})

	alice := dial(t, srv, "lobby/main", randx.ClientID(), "alice")
	bob := dial(t, srv, "lobby/main", randx.ClientID(), "bob")

	// Alice is announced on her first position.
	alice.move(10, 20, protocol.DirectionRight)
	enter := expect[protocol.Enter](t, bob.next())
	if enter.UserID != alice.id || enter.Nickname != "alice" || enter.X != 10 || enter.Y != 20 || enter.Direction != protocol.DirectionRight {
		t.Fatalf("enter = %+v", enter)
	}

	// Later positions are movements carrying the nickname and the room id.
	alice.move(12, 20, protocol.DirectionRight)
	mv := expect[protocol.Movement](t, bob.next())
	if mv.UserID != alice.id || mv.X != 12 || mv.Nickname != "alice" || mv.RoomID != "main" {
		t.Fatalf("movement = %+v", mv)
	}

	// A late joiner gets the roster with last positions.
	carol := dial(t, srv, "lobby/main", randx.ClientID(), "carol")
	roster := expect[protocol.Enter](t, carol.next())
	if roster.UserID != alice.id || roster.X != 12 {
		t.Fatalf("roster = %+v", roster)
	}

	// The sender never sees its own movement; the chat echo is its next event.
	alice.send(protocol.ChatSend{Message: "hi"})
	if c := expect[protocol.ChatReceived](t, alice.next()); c.UserName != "alice" || c.Message != "hi" {
		t.Fatalf("echo = %+v", c)
	}
	if c := expect[protocol.ChatReceived](t, bob.next()); c.Message != "hi" {
		t.Fatalf("bob chat = %+v", c)
	}
	expect[protocol.ChatReceived](t, carol.next())

	// Disconnect produces leave.
	_ = alice.conn.Close()
	if l := expect[protocol.Leave](t, bob.next()); l.UserID != alice.id {
		t.Fatalf("leave = %+v", l)
	}
	expect[protocol.Leave](t, carol.next())
}

func TestUnpositionedMemberLeavesSilently(t *testing.T) {
	_, srv := newTestRelay(t, ManagerOptions{})

	watcher := dial(t, srv, "quest/q1", randx.ClientID(), "watcher")
	lurker := dial(t, srv, "quest/q1", randx.ClientID(), "lurker")
	_ = lurker.conn.Close()

	mover := dial(t, srv, "quest/q1", randx.ClientID(), "mover")
	mover.move(1, 1, protocol.DirectionDown)
	if e := expect[protocol.Enter](t, watcher.next()); e.UserID != mover.id {
		t.Fatalf("watcher saw %+v before mover's enter", e)
	}
}

func TestEditRelayedAndPersisted(t *testing.T) {
	store := board.NewMemoryStore()
	m, srv := newTestRelay(t, ManagerOptions{Boards: store})

	a := dial(t, srv, "lobby/board", randx.ClientID(), "a")
	b := dial(t, srv, "lobby/board", randx.ClientID(), "b")

	content := []byte("compressed-board")
	a.send(protocol.Edit{Content: content})
	if e := expect[protocol.Edit](t, b.next()); !bytes.Equal(e.Content, content) {
		t.Fatalf("edit = %q", e.Content)
	}

	got, cerr := m.Board(context.Background(), RoomLobby, "board")
	if cerr != nil || !bytes.Equal(got, content) {
		t.Fatalf("live board = %q, %v", got, cerr)
	}

	c := dial(t, srv, "lobby/board", randx.ClientID(), "c")
	if e := expect[protocol.Edit](t, c.next()); !bytes.Equal(e.Content, content) {
		t.Fatalf("snapshot on join = %q", e.Content)
	}

	m.Shutdown()
	saved, err := store.Load(context.Background(), "lobby/board")
	if err != nil || !bytes.Equal(saved, content) {
		t.Fatalf("saved board = %q, %v", saved, err)
	}
}

func TestSavedBoardRestoredOnStart(t *testing.T) {
	store := board.NewMemoryStore()
	_ = store.Save(context.Background(), "personal/home", []byte("old"))
	m, srv := newTestRelay(t, ManagerOptions{Boards: store})

	got, cerr := m.Board(context.Background(), RoomPersonal, "home")
	if cerr != nil || string(got) != "old" {
		t.Fatalf("stored board = %q, %v", got, cerr)
	}

	c := dial(t, srv, "personal/home", randx.ClientID(), "owner")
	if e := expect[protocol.Edit](t, c.next()); string(e.Content) != "old" {
		t.Fatalf("snapshot on join = %q", e.Content)
	}
}

func TestRejectedFrames(t *testing.T) {
	_, srv := newTestRelay(t, ManagerOptions{})
	c := dial(t, srv, "lobby/main", randx.ClientID(), "c")

	tests := []struct {
		name  string
		frame string
		code  int
	}{
		{"not json", `{{`, errs.ErrEventPayloadInvalid},
		{"unknown event", `{"event":"teleport","data":{}}`, errs.ErrEventPayloadInvalid},
		{"enter from client", `{"event":"enter","data":{"user_id":"x","x":1,"y":1}}`, errs.ErrEventPayloadInvalid},
		{"chat too long", `{"event":"chat","data":{"message":"` + strings.Repeat("x", protocol.MaxChatBytes+1) + `"}}`, errs.ErrMessageContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatalf("write: %v", err)
			}
			e := expect[protocol.Error](t, c.next())
			if e.Code != tt.code {
				t.Fatalf("code = %d, want %d", e.Code, tt.code)
			}
		})
	}
}

func TestDuplicateConnectionKicksOld(t *testing.T) {
	_, srv := newTestRelay(t, ManagerOptions{})
	id := randx.ClientID()

	first := dial(t, srv, "lobby/main", id, "me")
	first.move(5, 5, protocol.DirectionDown)

	observer := dial(t, srv, "lobby/main", randx.ClientID(), "observer")
	expect[protocol.Enter](t, observer.next())

	dial(t, srv, "lobby/main", id, "me")
	if e := expect[protocol.Error](t, first.next()); e.Code != errs.ErrSessionKicked {
		t.Fatalf("code = %d", e.Code)
	}
	first.expectClose(CloseKicked)

	// The replacement keeps the member; nobody is told it left.
	observer.send(protocol.ChatSend{Message: "still here?"})
	expect[protocol.ChatReceived](t, observer.next())
}

func TestMeetingRooms(t *testing.T) {
	m, srv := newTestRelay(t, ManagerOptions{})

	if _, cerr := m.Room(RoomMeeting, "abc123"); cerr == nil || cerr.Code != errs.ErrRoomNotFound {
		t.Fatalf("unknown meeting: %v", cerr)
	}
	if _, cerr := m.CreateMeeting(1); cerr == nil || cerr.Code != errs.ErrInvalidParams {
		t.Fatalf("maxClients 1: %v", cerr)
	}

	room, cerr := m.CreateMeeting(2)
	if cerr != nil {
		t.Fatalf("CreateMeeting: %v", cerr)
	}
	if !randx.IsValidRoomCode(room.ID) {
		t.Fatalf("room id %q is not a room code", room.ID)
	}
	if got, _ := m.Room(RoomMeeting, room.ID); got != room {
		t.Fatal("Room did not return the created meeting")
	}

	path := "meeting/" + room.ID
	for _, nick := range []string{"one", "two"} {
		c := dial(t, srv, path, randx.ClientID(), nick)
		c.send(protocol.ChatSend{Message: "joined"})
		expect[protocol.ChatReceived](t, c.next())
	}
	third := dial(t, srv, path, randx.ClientID(), "three")

	if e := expect[protocol.Error](t, third.next()); e.Code != errs.ErrRoomIsFull {
		t.Fatalf("code = %d", e.Code)
	}
	third.expectClose(websocket.ClosePolicyViolation)
}

func TestRoomValidation(t *testing.T) {
	m := NewManager(ManagerOptions{})
	t.Cleanup(m.Shutdown)

	tests := []struct {
		name string
		typ  RoomType
		id   string
		code int
	}{
		{"bad type", "arena", "main", errs.ErrRoomTypeInvalid},
		{"empty id", RoomLobby, "", errs.ErrInvalidParams},
		{"slash in id", RoomLobby, "a/b", errs.ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, cerr := m.Room(tt.typ, tt.id); cerr == nil || cerr.Code != tt.code {
				t.Fatalf("err = %v, want code %d", cerr, tt.code)
			}
		})
	}
}

func TestRoomsListing(t *testing.T) {
	m := NewManager(ManagerOptions{})
	t.Cleanup(m.Shutdown)

	if _, cerr := m.Room(RoomQuest, "q1"); cerr != nil {
		t.Fatal(cerr)
	}
	if _, cerr := m.Room(RoomLobby, "main"); cerr != nil {
		t.Fatal(cerr)
	}

	rooms := m.Rooms()
	if len(rooms) != 2 || rooms[0].Type != RoomLobby || rooms[1].ID != "q1" {
		t.Fatalf("rooms = %+v", rooms)
	}
	if rooms[0].MaxClients != DefaultMaxClients || rooms[0].Members != 0 {
		t.Fatalf("lobby info = %+v", rooms[0])
	}
}

func TestInactiveRoomStops(t *testing.T) {
	m := NewManager(ManagerOptions{RoomInactivityTimeout: 20 * time.Millisecond})
	t.Cleanup(m.Shutdown)

	r, cerr := m.Room(RoomLobby, "idle")
	if cerr != nil {
		t.Fatal(cerr)
	}

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("empty room did not stop")
	}
	if _, ok := m.Lookup(RoomLobby, "idle"); ok {
		t.Fatal("stopped room still looked up")
	}

	again, cerr := m.Room(RoomLobby, "idle")
	if cerr != nil || again == r {
		t.Fatalf("stopped room not replaced: %v", cerr)
	}
}

func TestBoardNotFound(t *testing.T) {
	m := NewManager(ManagerOptions{})
	t.Cleanup(m.Shutdown)

	if _, cerr := m.Board(context.Background(), RoomLobby, "nothing"); cerr == nil || cerr.Code != errs.ErrBoardNotFound {
		t.Fatalf("err = %v", cerr)
	}
}
