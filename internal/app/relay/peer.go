package relay

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"metaverse/internal/app/protocol"
	"metaverse/internal/app/user"
	"metaverse/internal/pkg/errs"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20

	sendBuffer = 256
)

// CloseKicked is the close code sent to a connection replaced by a newer one
// for the same user.
const CloseKicked = 4001

// ErrRoomClosed is returned when joining a room that has stopped.
var ErrRoomClosed = errors.New("room closed")

// Peer is the relay side of one client connection.
//
// send is written and closed only by the room goroutine. closeCode and
// closeText are set before send is closed and read by WritePump after.
type Peer struct {
	conn *websocket.Conn
	room *Room
	user user.User
	send chan []byte

	closeCode int
	closeText string

	logger zerolog.Logger
}

// NewPeer wraps an upgraded connection for u in room.
func NewPeer(conn *websocket.Conn, room *Room, u user.User) *Peer {
	return &Peer{
		conn:      conn,
		room:      room,
		user:      u,
		send:      make(chan []byte, sendBuffer),
		closeCode: websocket.CloseNormalClosure,
		logger:    room.logger.With().Str("user_id", u.ID).Logger(),
	}
}

// Serve joins the room and pumps messages until the connection ends.
func (p *Peer) Serve() error {
	select {
	case p.room.register <- p:
	case <-p.room.closing:
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed")
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = p.conn.Close()
		return ErrRoomClosed
	}

	go p.WritePump()
	p.ReadPump()
	return nil
}

// ReadPump pumps frames from the connection to the room.
func (p *Peer) ReadPump() {
	defer func() {
		select {
		case p.room.unregister <- p:
		case <-p.room.closing:
		}
		_ = p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure, CloseKicked) {
				p.logger.Warn().Err(err).Msg("Unexpected websocket close")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		in := inbound{from: p}
		event, err := protocol.DecodeClientEvent(frame)
		switch {
		case errors.Is(err, protocol.ErrChatTooLong):
			in.err = errs.NewError(errs.ErrMessageContentTooLong, protocol.MaxChatBytes)
		case err != nil:
			p.logger.Debug().Err(err).Msg("Rejected inbound frame")
			in.err = errs.NewError(errs.ErrEventPayloadInvalid)
		default:
			in.event = event
		}

		select {
		case p.room.inbound <- in:
		case <-p.room.closing:
			return
		}
	}
}

// WritePump pumps queued frames to the connection, one frame per message.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				msg := websocket.FormatCloseMessage(p.closeCode, p.closeText)
				_ = p.conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}

			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				p.logger.Debug().Err(err).Msg("Write failed")
				return
			}

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue encodes msg onto the send queue. Room goroutine only.
func (p *Peer) enqueue(msg protocol.ServerEvent) bool {
	frame, err := protocol.Encode(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("event", string(msg.Event())).Msg("Failed to encode message")
		return true
	}
	return p.enqueueFrame(frame)
}

func (p *Peer) enqueueFrame(frame []byte) bool {
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *Peer) sendError(e *errs.CustomError) {
	if !p.enqueue(protocol.Error{Code: e.Code, Message: e.Message}) {
		p.logger.Warn().Int("code", e.Code).Msg("Error not delivered, send queue full")
	}
}

// close ends the write side with the given close frame. Room goroutine only,
// at most once per peer.
func (p *Peer) close(code int, text string) {
	p.closeCode = code
	p.closeText = text
	close(p.send)
}
