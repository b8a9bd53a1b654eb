package main

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"
	"golang.org/x/image/font"

	"metaverse/internal/app/presence"
	"metaverse/internal/app/render"
	"metaverse/internal/app/render/screen"
	"metaverse/internal/app/session"
	"metaverse/internal/app/transport"
	"metaverse/internal/app/user"
	"metaverse/internal/app/whiteboard"
	"metaverse/internal/app/world"
	"metaverse/internal/configs"
)

const (
	walkSpeed    = 2.0
	chatLines    = 6
	noteSize     = 48
	portalSprite = "objects/portal.png"
)

var noteColor = color.RGBA{R: 0xff, G: 0xe0, B: 0x66, A: 0xc0}

// game hosts one room visit at a time and swaps it when the avatar walks
// through a portal.
type game struct {
	ctx         context.Context
	cfg         *configs.ClientConfig
	self        user.User
	maps        map[string]*world.Map
	fallbackMap string
	images      *render.ImageCache
	face        font.Face
	loop        *render.Loop
	appearance  func(string) render.Appearance

	joiner   *session.Joiner
	conn     *transport.Conn
	sess     *session.Session
	renderer *render.Renderer
	room     *world.Map

	typing bool
	input  []rune

	logger zerolog.Logger
}

// mapFor picks the map named after the room type, or the first map.
func (g *game) mapFor(roomType string) *world.Map {
	if m, ok := g.maps[roomType]; ok {
		return m
	}
	return g.maps[g.fallbackMap]
}

func (g *game) dial(ctx context.Context, roomType, roomID string) (*transport.Conn, error) {
	conn, err := transport.Dial(ctx, transport.Options{
		URL:       transport.RoomURL(g.cfg.ServerAddr, roomType, roomID, g.self.ID, g.self.Nickname),
		Reconnect: true,
	})
	if err != nil {
		return nil, fmt.Errorf("join %s/%s: %w", roomType, roomID, err)
	}
	return conn, nil
}

// enter joins a room synchronously. Only used before the game loop starts.
func (g *game) enter(roomType, roomID string) error {
	conn, err := g.dial(g.ctx, roomType, roomID)
	if err != nil {
		return err
	}
	return g.attach(conn, roomType, roomID)
}

// attach starts a visit on an open connection. The current visit is only
// replaced once the new session is set up.
func (g *game) attach(conn *transport.Conn, roomType, roomID string) error {
	m := g.mapFor(roomType)

	store := presence.NewStore(presence.Options{})
	renderer := render.NewRenderer(store, g.images, render.Options{
		Appearance:   g.appearance,
		PortalSprite: portalSprite,
	})
	w, h := renderer.SpriteSize()
	avatar := m.Place(m.SpawnX, m.SpawnY, w, h)

	sess, err := session.New(conn, store, session.Options{
		Self:     g.self,
		RoomType: roomType,
		RoomID:   roomID,
		Avatar:   avatar,
	})
	if err != nil {
		avatar.Remove()
		_ = conn.Close()
		return err
	}

	g.leave()
	g.conn, g.sess, g.renderer, g.room = conn, sess, renderer, m
	renderer.SetRoom(m, backgroundKey(m.Name))
	sess.Announce()

	g.logger.Info().Str("room", roomType+"/"+roomID).Str("map", m.Name).Msg("Entered room")
	return nil
}

func (g *game) leave() {
	if g.sess != nil {
		g.sess.Close()
		g.sess = nil
	}
	if g.conn != nil {
		_ = g.conn.Close()
		g.conn = nil
	}
}

func (g *game) Update() error {
	if g.loop.Stopped() {
		return ebiten.Termination
	}

	g.conn.Dispatch()

	if joined, ok := g.joiner.Poll(); ok && joined.Err == nil {
		if err := g.attach(joined.Conn, joined.Portal.RoomType, joined.Portal.RoomID); err != nil {
			g.logger.Warn().Err(err).Str("portal", joined.Portal.Name).Msg("Portal visit not started")
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		if g.typing {
			g.typing, g.input = false, g.input[:0]
		} else {
			g.loop.Stop()
			return nil
		}
	}

	if g.typing {
		g.updateChatInput()
	} else {
		if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
			g.typing = true
		}
		g.updateMovement()
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonRight) {
		x, y := ebiten.CursorPosition()
		g.sess.Board().Add(whiteboard.Object{
			Type:   whiteboard.KindRect,
			Left:   float64(x),
			Top:    float64(y),
			Width:  noteSize,
			Height: noteSize,
			ScaleX: 1,
			ScaleY: 1,
			Fill:   "#ffe066",
		})
	}
	g.sess.SyncBoard()

	return nil
}

func (g *game) updateMovement() {
	var dx, dy float64
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) || ebiten.IsKeyPressed(ebiten.KeyA) {
		dx -= walkSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) || ebiten.IsKeyPressed(ebiten.KeyD) {
		dx += walkSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) || ebiten.IsKeyPressed(ebiten.KeyW) {
		dy -= walkSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) || ebiten.IsKeyPressed(ebiten.KeyS) {
		dy += walkSpeed
	}

	if dx == 0 && dy == 0 {
		return
	}

	// The joiner dials in the background; the visit swaps in a later Update.
	g.joiner.Touch(g.sess.MoveLocal(dx, dy))
}

func (g *game) updateChatInput() {
	g.input = ebiten.AppendInputChars(g.input)

	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) && len(g.input) > 0 {
		g.input = g.input[:len(g.input)-1]
	}
	if !inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		return
	}

	if err := g.sess.SendChat(string(g.input)); err != nil {
		g.logger.Warn().Err(err).Msg("Chat not sent")
	}
	g.typing, g.input = false, g.input[:0]
}

func (g *game) Draw(dst *ebiten.Image) {
	now := time.Now()
	if !g.loop.Tick(now) {
		return
	}

	c := &screen.Canvas{Target: dst, Face: g.face}
	g.renderer.DrawFrame(c, now)

	for _, o := range g.sess.Board().Objects() {
		c.FillRect(world.Rect{X: o.Left, Y: o.Top, W: o.Width * scale(o.ScaleX), H: o.Height * scale(o.ScaleY)}, noteColor)
	}

	g.drawChat(dst)
}

func (g *game) drawChat(dst *ebiten.Image) {
	entries := g.sess.Chat().Entries()
	if len(entries) > chatLines {
		entries = entries[len(entries)-chatLines:]
	}

	y := dst.Bounds().Dy() - (chatLines+1)*16
	for _, e := range entries {
		ebitenutil.DebugPrintAt(dst, e.UserName+": "+e.Message, 8, y)
		y += 16
	}
	if g.typing {
		ebitenutil.DebugPrintAt(dst, "> "+string(g.input), 8, y)
	}
}

func (g *game) Layout(_, _ int) (int, int) {
	if g.room == nil {
		return 640, 480
	}
	return g.room.Size()
}

func scale(s float64) float64 {
	if s == 0 {
		return 1
	}
	return s
}
