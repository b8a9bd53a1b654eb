/*
Package protocol defines the realtime wire contract shared by the relay server and
the avatar client.

Every websocket text frame carries one envelope {"event": "<name>", "data": {...}}.
Frames are decoded exactly once, at the connection boundary, into a closed set of
Go types: ServerEvent for what the relay sends to clients, ClientEvent for what
clients send to the relay. Anything that does not decode into one of those types is
rejected there, so malformed coordinates never reach position math.
*/
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Event names an envelope's payload kind.
type Event string

const (
	EventMovement Event = "movement"
	EventEnter    Event = "enter"
	EventLeave    Event = "leave"
	EventChat     Event = "chat"
	EventEdit     Event = "edit"
	EventError    Event = "error"
)

// MaxChatBytes bounds the text of one chat message.
const MaxChatBytes = 1000

// Direction facing values on the wire: Down, Up, Right, Left.
const (
	DirectionDown = iota
	DirectionUp
	DirectionRight
	DirectionLeft
)

var (
	// ErrUnknownEvent is returned for envelopes whose event name is not part of the contract.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrInvalidPayload is returned when a payload is malformed or fails validation.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrChatTooLong accompanies ErrInvalidPayload for chat text over MaxChatBytes.
	ErrChatTooLong = errors.New("chat message too long")
)

// Envelope is the frame wrapper.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Message is any payload that can be framed.
type Message interface {
	Event() Event
}

// ServerEvent is a payload the relay sends to clients.
type ServerEvent interface {
	Message
	serverEvent()
}

// ClientEvent is a payload a client sends to the relay.
type ClientEvent interface {
	Message
	clientEvent()
}

// Movement reports an avatar position. The relay adds Nickname when forwarding so
// that peers seeing a user for the first time can label it.
type Movement struct {
	UserID    string  `json:"user_id"`
	RoomID    string  `json:"room_id"`
	X         float64 `json:"position_x"`
	Y         float64 `json:"position_y"`
	Direction int     `json:"direction"`
	Nickname  string  `json:"nickname,omitempty"`
}

func (Movement) Event() Event { return EventMovement }
func (Movement) serverEvent() {}
func (Movement) clientEvent() {}

func (m Movement) validate() error {
	if m.UserID == "" {
		return fmt.Errorf("%w: movement without user_id", ErrInvalidPayload)
	}
	if !finite(m.X) || !finite(m.Y) {
		return fmt.Errorf("%w: movement position is not finite", ErrInvalidPayload)
	}
	if !validDirection(m.Direction) {
		return fmt.Errorf("%w: direction %d out of range", ErrInvalidPayload, m.Direction)
	}
	return nil
}

// Enter announces a participant. Older senders use user_name / position_x /
// position_y instead of nickname / x / y; both spellings decode.
type Enter struct {
	UserID    string
	Nickname  string
	X, Y      float64
	Direction int
}

func (Enter) Event() Event { return EventEnter }
func (Enter) serverEvent() {}

type enterWire struct {
	UserID    string   `json:"user_id"`
	Nickname  *string  `json:"nickname,omitempty"`
	UserName  *string  `json:"user_name,omitempty"`
	X         *float64 `json:"x,omitempty"`
	PositionX *float64 `json:"position_x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	PositionY *float64 `json:"position_y,omitempty"`
	Direction *int     `json:"direction,omitempty"`
}

// MarshalJSON writes the canonical spelling.
func (e Enter) MarshalJSON() ([]byte, error) {
	dir := e.Direction
	return json.Marshal(enterWire{
		UserID:    e.UserID,
		Nickname:  &e.Nickname,
		X:         &e.X,
		Y:         &e.Y,
		Direction: &dir,
	})
}

// UnmarshalJSON accepts either spelling; position fields are required.
func (e *Enter) UnmarshalJSON(b []byte) error {
	var w enterWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	x := firstFloat(w.X, w.PositionX)
	y := firstFloat(w.Y, w.PositionY)
	if x == nil || y == nil {
		return fmt.Errorf("%w: enter without position", ErrInvalidPayload)
	}

	e.UserID = w.UserID
	e.X, e.Y = *x, *y
	e.Nickname = ""
	if n := firstString(w.Nickname, w.UserName); n != nil {
		e.Nickname = *n
	}
	e.Direction = DirectionDown
	if w.Direction != nil {
		e.Direction = *w.Direction
	}
	return nil
}

func (e Enter) validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: enter without user_id", ErrInvalidPayload)
	}
	if !finite(e.X) || !finite(e.Y) {
		return fmt.Errorf("%w: enter position is not finite", ErrInvalidPayload)
	}
	if !validDirection(e.Direction) {
		return fmt.Errorf("%w: direction %d out of range", ErrInvalidPayload, e.Direction)
	}
	return nil
}

// Leave announces that a participant left the room.
type Leave struct {
	UserID string `json:"user_id"`
}

func (Leave) Event() Event { return EventLeave }
func (Leave) serverEvent() {}

func (l Leave) validate() error {
	if l.UserID == "" {
		return fmt.Errorf("%w: leave without user_id", ErrInvalidPayload)
	}
	return nil
}

// ChatSend is the outbound chat message a client emits.
type ChatSend struct {
	RoomType string `json:"room_type"`
	RoomID   string `json:"room_id"`
	ClientID string `json:"client_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message"`
}

func (ChatSend) Event() Event { return EventChat }
func (ChatSend) clientEvent() {}

func (c ChatSend) validate() error {
	if c.Message == "" {
		return fmt.Errorf("%w: empty chat message", ErrInvalidPayload)
	}
	if len(c.Message) > MaxChatBytes {
		return fmt.Errorf("%w: %w (%d bytes max)", ErrInvalidPayload, ErrChatTooLong, MaxChatBytes)
	}
	return nil
}

// ChatReceived is the chat message delivered to room members.
type ChatReceived struct {
	UserName string `json:"user_name"`
	Message  string `json:"message"`
}

func (ChatReceived) Event() Event { return EventChat }
func (ChatReceived) serverEvent() {}

// Edit carries a compressed whiteboard object list. encoding/json writes the
// bytes as base64.
type Edit struct {
	Content []byte `json:"content"`
}

func (Edit) Event() Event { return EventEdit }
func (Edit) serverEvent() {}
func (Edit) clientEvent() {}

func (e Edit) validate() error {
	if len(e.Content) == 0 {
		return fmt.Errorf("%w: empty edit content", ErrInvalidPayload)
	}
	return nil
}

// Error reports a relay-side rejection using an errs code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (Error) Event() Event { return EventError }
func (Error) serverEvent() {}

// Encode frames msg into an envelope.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Event(), err)
	}
	return json.Marshal(Envelope{Event: msg.Event(), Data: data})
}

// DecodeServerEvent decodes a frame received by a client.
func DecodeServerEvent(frame []byte) (ServerEvent, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Event {
	case EventMovement:
		return decodeValid[Movement](env)
	case EventEnter:
		return decodeValid[Enter](env)
	case EventLeave:
		return decodeValid[Leave](env)
	case EventChat:
		var c ChatReceived
		if err := unmarshalData(env, &c); err != nil {
			return nil, err
		}
		return c, nil
	case EventEdit:
		return decodeValid[Edit](env)
	case EventError:
		var e Error
		if err := unmarshalData(env, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// DecodeClientEvent decodes a frame received by the relay.
func DecodeClientEvent(frame []byte) (ClientEvent, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Event {
	case EventMovement:
		return decodeValid[Movement](env)
	case EventChat:
		return decodeValid[ChatSend](env)
	case EventEdit:
		return decodeValid[Edit](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

type validator interface {
	validate() error
}

func decodeValid[T any, PT interface {
	*T
	validator
}](env Envelope) (T, error) {
	var v T
	if err := unmarshalData(env, PT(&v)); err != nil {
		return v, err
	}
	if err := PT(&v).validate(); err != nil {
		return v, err
	}
	return v, nil
}

func decodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("%w: envelope without event", ErrInvalidPayload)
	}
	return env, nil
}

func unmarshalData(env Envelope, dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrInvalidPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func validDirection(d int) bool {
	return d >= DirectionDown && d <= DirectionLeft
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
