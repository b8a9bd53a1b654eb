package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"metaverse/internal/app/protocol"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// relayStub accepts websockets, records client frames and lets the test push
// server events.
type relayStub struct {
	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
	accepted chan *websocket.Conn
}

func newRelayStub(t *testing.T) (*relayStub, *httptest.Server) {
	t.Helper()
	stub := &relayStub{accepted: make(chan *websocket.Conn, 8)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		stub.mu.Lock()
		stub.conns = append(stub.conns, ws)
		stub.mu.Unlock()
		stub.accepted <- ws

		for {
			_, frame, err := ws.ReadMessage()
			if err != nil {
				return
			}
			stub.mu.Lock()
			stub.received = append(stub.received, frame)
			stub.mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *relayStub) frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.received...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func accept(t *testing.T, stub *relayStub) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-stub.accepted:
		return ws
	case <-time.After(3 * time.Second):
		t.Fatal("relay never accepted a connection")
		return nil
	}
}

func push(t *testing.T, ws *websocket.Conn, msg protocol.ServerEvent) {
	t.Helper()
	frame, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

func TestSendReachesRelay(t *testing.T) {
	stub, srv := newRelayStub(t)
	c, err := Dial(context.Background(), Options{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	accept(t, stub)

	err = c.Send(protocol.Movement{UserID: "u1", RoomID: "lobby", X: 3, Y: 4, Direction: protocol.DirectionRight})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, "movement frame", func() bool { return len(stub.frames()) == 1 })

	ev, err := protocol.DecodeClientEvent(stub.frames()[0])
	if err != nil {
		t.Fatalf("relay could not decode frame: %v", err)
	}
	m, ok := ev.(protocol.Movement)
	if !ok || m.UserID != "u1" || m.X != 3 || m.Y != 4 {
		t.Fatalf("relay got %#v", ev)
	}
}

func TestDispatchRunsHandlersOnCaller(t *testing.T) {
	stub, srv := newRelayStub(t)
	c, err := Dial(context.Background(), Options{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	ws := accept(t, stub)

	var got []protocol.ServerEvent
	release := c.Subscribe(protocol.EventChat, func(ev protocol.ServerEvent) {
		got = append(got, ev)
	})
	defer release()

	push(t, ws, protocol.ChatReceived{UserName: "Ann", Message: "hi"})
	push(t, ws, protocol.Leave{UserID: "u9"})

	waitFor(t, "dispatch", func() bool {
		c.Dispatch()
		return len(got) == 1
	})

	chat := got[0].(protocol.ChatReceived)
	if chat.UserName != "Ann" || chat.Message != "hi" {
		t.Fatalf("chat = %+v", chat)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	stub, srv := newRelayStub(t)
	c, err := Dial(context.Background(), Options{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	ws := accept(t, stub)

	calls := 0
	release := c.Subscribe(protocol.EventLeave, func(protocol.ServerEvent) { calls++ })
	other := c.Subscribe(protocol.EventLeave, func(protocol.ServerEvent) {})
	if n := c.Subscribers(protocol.EventLeave); n != 2 {
		t.Fatalf("Subscribers = %d", n)
	}

	release()
	release()
	if n := c.Subscribers(protocol.EventLeave); n != 1 {
		t.Fatalf("Subscribers after double release = %d, want 1", n)
	}
	other()

	push(t, ws, protocol.Leave{UserID: "u1"})
	waitFor(t, "leave frame", func() bool { return c.Dispatch() > 0 })
	if calls != 0 {
		t.Fatal("released handler was invoked")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	stub, srv := newRelayStub(t)
	c, err := Dial(context.Background(), Options{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	accept(t, stub)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.Connected() {
		t.Fatal("still connected after Close")
	}
	if err := c.Send(protocol.ChatSend{Message: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
}

// Close must not write on the socket concurrently with writePump; run with -race.
func TestCloseWithFullOutboundQueue(t *testing.T) {
	stub, srv := newRelayStub(t)
	payload := make([]byte, 8<<10)

	for i := 0; i < 20; i++ {
		c, err := Dial(context.Background(), Options{URL: wsURL(srv), OutboundBuffer: 300})
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		accept(t, stub)

		for j := 0; j < 300; j++ {
			if err := c.Send(protocol.Edit{Content: payload}); err != nil && !errors.Is(err, ErrQueueFull) {
				t.Fatalf("Send: %v", err)
			}
		}

		closed := make(chan struct{})
		go func() {
			_ = c.Close()
			close(closed)
		}()
		select {
		case <-closed:
		case <-time.After(3 * time.Second):
			t.Fatalf("iteration %d: Close did not return", i)
		}
		if c.Connected() {
			t.Fatalf("iteration %d: still connected after Close", i)
		}
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := Dial(context.Background(), Options{URL: wsURL(srv)}); err == nil {
		t.Fatal("Dial to a non-websocket endpoint succeeded")
	}
}

func TestReconnectRunsHook(t *testing.T) {
	stub, srv := newRelayStub(t)
	c, err := Dial(context.Background(), Options{
		URL:         wsURL(srv),
		Reconnect:   true,
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	reconnected := 0
	defer c.OnReconnect(func() { reconnected++ })()

	first := accept(t, stub)
	_ = first.Close()

	second := accept(t, stub)
	waitFor(t, "reconnect hook", func() bool {
		c.Dispatch()
		return reconnected == 1
	})
	waitFor(t, "connected", c.Connected)

	var left string
	release := c.Subscribe(protocol.EventLeave, func(ev protocol.ServerEvent) {
		left = ev.(protocol.Leave).UserID
	})
	defer release()

	push(t, second, protocol.Leave{UserID: "u2"})
	waitFor(t, "event on new connection", func() bool {
		c.Dispatch()
		return left == "u2"
	})
}

func TestRoomURL(t *testing.T) {
	got := RoomURL("localhost:8080", "lobby", "main", "u-1", "Bob Smith")
	want := "ws://localhost:8080/ws/lobby/main?nn=Bob+Smith&uid=u-1"
	if got != want {
		t.Fatalf("RoomURL = %q, want %q", got, want)
	}
}
