/*
Package transport is the client side of the realtime connection.

A Conn owns one websocket to the relay. Network goroutines only read, decode and
queue; handlers run when the game loop calls Dispatch, so everything they touch
(presence store, whiteboard, chat log) stays on a single goroutine. Sends are
fire-and-forget: no acknowledgement, no retry, no replay after a reconnect.
*/
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"metaverse/internal/app/protocol"
	"metaverse/internal/pkg/logx"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	defaultInboundBuffer  = 512
	defaultOutboundBuffer = 256
	defaultBackoffBase    = 250 * time.Millisecond
	defaultBackoffMax     = 5 * time.Second
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("transport closed")

	// ErrNotConnected is returned by Send while the connection is down.
	ErrNotConnected = errors.New("transport not connected")

	// ErrQueueFull is returned by Send when the outbound queue is full.
	ErrQueueFull = errors.New("outbound queue full")
)

// Handler receives one decoded server event.
type Handler func(protocol.ServerEvent)

// Options configures Dial.
type Options struct {
	// URL is the full websocket URL, see RoomURL.
	URL string

	Dialer *websocket.Dialer

	// Reconnect redials with exponential backoff after the connection drops.
	Reconnect   bool
	BackoffBase time.Duration
	BackoffMax  time.Duration

	InboundBuffer  int
	OutboundBuffer int

	Logger *zerolog.Logger
}

type inboundItem struct {
	event     protocol.ServerEvent
	reconnect bool
}

// Conn is a live connection to the relay.
type Conn struct {
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	wsMu sync.Mutex
	ws   *websocket.Conn

	connected atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	send    chan []byte
	inbound chan inboundItem

	subMu      sync.Mutex
	nextSubID  uint64
	subs       map[protocol.Event]map[uint64]Handler
	reconnects map[uint64]func()
}

// RoomURL builds the relay websocket URL for a room.
func RoomURL(addr, roomType, roomID, userID, nickname string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   addr,
		Path:   "/ws/" + url.PathEscape(roomType) + "/" + url.PathEscape(roomID),
	}
	q := url.Values{}
	q.Set("uid", userID)
	q.Set("nn", nickname)
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial connects to opts.URL. The first connection attempt is made synchronously
// and its failure is returned; later drops are handled by the reconnect policy.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.InboundBuffer <= 0 {
		opts.InboundBuffer = defaultInboundBuffer
	}
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = defaultOutboundBuffer
	}

	logger := logx.Component("transport")
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "transport").Logger()
	}

	ws, _, err := opts.Dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		logger.Error().Err(err).Str("url", opts.URL).Msg("Failed to connect to relay")
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		opts:       opts,
		logger:     logger,
		ctx:        runCtx,
		cancel:     cancel,
		send:       make(chan []byte, opts.OutboundBuffer),
		inbound:    make(chan inboundItem, opts.InboundBuffer),
		subs:       make(map[protocol.Event]map[uint64]Handler),
		reconnects: make(map[uint64]func()),
	}
	c.connected.Store(true)

	c.wg.Add(1)
	go c.run(ws)

	logger.Info().Str("url", opts.URL).Msg("Connected to relay")
	return c, nil
}

// Connected reports whether a websocket is currently up.
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Send queues msg for delivery. It never blocks; a message that cannot be
// queued is dropped and the reason returned.
func (c *Conn) Send(msg protocol.ClientEvent) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.connected.Load() {
		c.logger.Debug().Str("event", string(msg.Event())).Msg("Dropping outbound event while disconnected")
		return ErrNotConnected
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Str("event", string(msg.Event())).Msg("Outbound queue full, dropping event")
		return ErrQueueFull
	}
}

// Subscribe registers h for event and returns its release function. Release is
// idempotent, so it can be deferred and also called on early-return paths.
func (c *Conn) Subscribe(event protocol.Event, h Handler) (release func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	if c.subs[event] == nil {
		c.subs[event] = make(map[uint64]Handler)
	}
	c.subs[event][id] = h
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs[event], id)
			c.subMu.Unlock()
		})
	}
}

// OnReconnect registers fn to run (from Dispatch) each time the connection is
// re-established after a drop.
func (c *Conn) OnReconnect(fn func()) (release func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.reconnects[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.reconnects, id)
			c.subMu.Unlock()
		})
	}
}

// Subscribers returns the number of handlers registered for event.
func (c *Conn) Subscribers(event protocol.Event) int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs[event])
}

// Dispatch delivers every queued inbound event to the current subscribers on
// the calling goroutine and returns the number of items processed.
func (c *Conn) Dispatch() int {
	n := 0
	for {
		select {
		case item := <-c.inbound:
			n++
			if item.reconnect {
				for _, fn := range c.reconnectHandlers() {
					fn()
				}
				continue
			}
			for _, h := range c.handlers(item.event.Event()) {
				h(item.event)
			}
		default:
			return n
		}
	}
}

func (c *Conn) handlers(event protocol.Event) []Handler {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	out := make([]Handler, 0, len(c.subs[event]))
	for _, h := range c.subs[event] {
		out = append(out, h)
	}
	return out
}

func (c *Conn) reconnectHandlers() []func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	out := make([]func(), 0, len(c.reconnects))
	for _, fn := range c.reconnects {
		out = append(out, fn)
	}
	return out
}

// Close disconnects, stops reconnecting and drops every subscription.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()

		// writePump may be mid-frame; only WriteControl and Close are safe
		// alongside it.
		c.wsMu.Lock()
		if c.ws != nil {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(writeWait))
			_ = c.ws.Close()
		}
		c.wsMu.Unlock()

		c.wg.Wait()

		c.subMu.Lock()
		c.subs = make(map[protocol.Event]map[uint64]Handler)
		c.reconnects = make(map[uint64]func())
		c.subMu.Unlock()

		c.logger.Info().Msg("Transport closed")
	})
	return nil
}

// run serves connections until Close or until a drop with reconnect disabled.
func (c *Conn) run(ws *websocket.Conn) {
	defer c.wg.Done()

	for ws != nil {
		c.serve(ws)

		if c.ctx.Err() != nil || !c.opts.Reconnect {
			return
		}

		ws = c.redial()
		if ws != nil {
			c.enqueue(inboundItem{reconnect: true})
			c.logger.Info().Msg("Reconnected to relay")
		}
	}
}

// redial retries with capped, jittered exponential backoff until it succeeds or
// the connection is closed.
func (c *Conn) redial() *websocket.Conn {
	backoff := retry.NewExponential(c.opts.BackoffBase)
	backoff = retry.WithCappedDuration(c.opts.BackoffMax, backoff)
	backoff = retry.WithJitterPercent(10, backoff)

	var ws *websocket.Conn
	err := retry.Do(c.ctx, backoff, func(ctx context.Context) error {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Reconnect attempt failed")
			return retry.RetryableError(err)
		}
		ws = conn
		return nil
	})
	if err != nil {
		return nil
	}
	return ws
}

// serve runs the pumps for one websocket and returns when it is gone.
func (c *Conn) serve(ws *websocket.Conn) {
	c.wsMu.Lock()
	if c.ctx.Err() != nil {
		c.wsMu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.wsMu.Unlock()

	c.connected.Store(true)

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ws, done)
	}()

	c.readPump(ws)

	c.connected.Store(false)
	close(done)
	<-writerDone

	c.wsMu.Lock()
	c.ws = nil
	c.wsMu.Unlock()
	_ = ws.Close()
}

func (c *Conn) readPump(ws *websocket.Conn) {
	ws.SetReadLimit(maxMessageSize)

	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("Connection to relay lost")
			}
			return
		}

		event, err := protocol.DecodeServerEvent(frame)
		if err != nil {
			c.logger.Warn().Err(err).Int("bytes", len(frame)).Msg("Dropping undecodable server event")
			continue
		}

		if e, ok := event.(protocol.Error); ok {
			c.logger.Warn().Int("code", e.Code).Str("message", e.Message).Msg("Relay reported an error")
		}

		c.enqueue(inboundItem{event: event})
	}
}

// enqueue keeps the newest items when the game loop falls behind.
func (c *Conn) enqueue(item inboundItem) {
	select {
	case c.inbound <- item:
		return
	default:
	}

	select {
	case <-c.inbound:
		c.logger.Warn().Msg("Inbound queue full, dropped oldest event")
	default:
	}

	select {
	case c.inbound <- item:
	default:
		c.logger.Warn().Msg("Inbound queue still full, dropping event")
	}
}

func (c *Conn) writePump(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case frame := <-c.send:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing message")
				_ = ws.Close()
				return
			}

		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				_ = ws.Close()
				return
			}
		}
	}
}
