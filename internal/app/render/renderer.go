/*
Package render draws a room: the map background, portals, NPCs and every avatar
at its interpolated position with the right animation frame.

Drawing goes through the Canvas interface. The ebiten implementation lives in
render/screen; tests use an in-memory recorder.
*/
package render

import (
	"hash/fnv"
	"image"
	"image/color"
	"time"

	"metaverse/internal/app/presence"
	"metaverse/internal/app/world"
)

// Layer is one slice of the character sprite, drawn bottom to top.
type Layer int

const (
	LayerBody Layer = iota
	LayerEyes
	LayerClothes
	LayerHair
)

// Layers lists the sprite layers in draw order.
var Layers = [...]Layer{LayerBody, LayerEyes, LayerClothes, LayerHair}

func (l Layer) String() string {
	switch l {
	case LayerBody:
		return "body"
	case LayerEyes:
		return "eyes"
	case LayerClothes:
		return "clothes"
	case LayerHair:
		return "hair"
	}
	return "unknown"
}

const (
	DefaultFrameWidth     = 32
	DefaultFrameHeight    = 32
	DefaultCharacterScale = 2.0

	labelGap = 2
)

var (
	defaultLabelColor       = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	defaultPlaceholderColor = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xc0}
)

// Appearance holds the image path of each sprite layer, indexed by Layer.
type Appearance [len(Layers)]string

// Canvas is the surface a frame is drawn on.
type Canvas interface {
	Clear()
	// DrawImage draws the src part of img with its top-left corner at (x, y).
	DrawImage(img Image, src image.Rectangle, x, y, scale float64)
	FillRect(r world.Rect, clr color.Color)
	// DrawLabel draws s horizontally centered on centerX, starting at topY.
	DrawLabel(s string, centerX, topY float64, clr color.Color)
}

// Options tunes a Renderer. Zero values select the defaults.
type Options struct {
	FrameWidth     int
	FrameHeight    int
	CharacterScale float64
	FrameCadence   time.Duration

	// Appearance picks the sprite set of a user. Defaults to VariantAppearance
	// over a single "default" variant.
	Appearance func(userID string) Appearance

	// PortalSprite is drawn over every portal when set.
	PortalSprite string

	LabelColor       color.Color
	PlaceholderColor color.Color
}

// Renderer draws frames from a presence store.
type Renderer struct {
	store  *presence.Store
	images *ImageCache
	anim   *Animator
	opts   Options

	background string
	room       *world.Map
}

// NewRenderer creates a renderer sampling store and loading sprites through images.
func NewRenderer(store *presence.Store, images *ImageCache, opts Options) *Renderer {
	if opts.FrameWidth <= 0 {
		opts.FrameWidth = DefaultFrameWidth
	}
	if opts.FrameHeight <= 0 {
		opts.FrameHeight = DefaultFrameHeight
	}
	if opts.CharacterScale <= 0 {
		opts.CharacterScale = DefaultCharacterScale
	}
	if opts.Appearance == nil {
		opts.Appearance = VariantAppearance("default")
	}
	if opts.LabelColor == nil {
		opts.LabelColor = defaultLabelColor
	}
	if opts.PlaceholderColor == nil {
		opts.PlaceholderColor = defaultPlaceholderColor
	}

	return &Renderer{
		store:  store,
		images: images,
		anim:   NewAnimator(opts.FrameCadence),
		opts:   opts,
	}
}

// SetRoom switches the map whose portals and NPCs are drawn and the cache key
// of its background image.
func (r *Renderer) SetRoom(m *world.Map, background string) {
	r.room = m
	r.background = background
}

// SpriteSize returns the on-screen size of one character frame.
func (r *Renderer) SpriteSize() (float64, float64) {
	return float64(r.opts.FrameWidth) * r.opts.CharacterScale, float64(r.opts.FrameHeight) * r.opts.CharacterScale
}

// DrawFrame advances interpolation to now and draws one complete frame.
func (r *Renderer) DrawFrame(c Canvas, now time.Time) {
	r.store.Advance(now)

	c.Clear()

	if bg, ok := r.images.Get(r.background); ok {
		c.DrawImage(bg, bg.Bounds(), 0, 0, 1)
	}

	if r.room != nil {
		for _, p := range r.room.Portals {
			r.drawStatic(c, r.opts.PortalSprite, p.Bounds)
		}
		for _, n := range r.room.NPCs {
			r.drawStatic(c, n.Sprite, n.Bounds)
		}
	}

	users := r.store.Snapshot()
	keep := make(map[string]struct{}, len(users))
	for _, u := range users {
		keep[u.ID] = struct{}{}
		r.drawUser(c, u, now)
	}
	r.anim.Retain(keep)
}

// drawStatic draws a portal or NPC, or a placeholder while its image loads.
func (r *Renderer) drawStatic(c Canvas, path string, at world.Rect) {
	img, ok := r.images.Get(path)
	if !ok {
		c.FillRect(at, r.opts.PlaceholderColor)
		return
	}
	c.DrawImage(img, img.Bounds(), at.X, at.Y, 1)
}

func (r *Renderer) drawUser(c Canvas, u presence.RemoteUser, now time.Time) {
	look := r.opts.Appearance(u.ID)
	sprites, ok := r.images.GetAll(look[:]...)
	if !ok {
		return
	}

	frame := r.anim.Frame(u.ID, u.IsMoving, now)
	fw, fh := r.opts.FrameWidth, r.opts.FrameHeight
	src := image.Rect(frame*fw, int(u.Direction)*fh, (frame+1)*fw, (int(u.Direction)+1)*fh)

	for _, layer := range Layers {
		c.DrawImage(sprites[layer], src, u.Draw.X, u.Draw.Y, r.opts.CharacterScale)
	}

	if u.Nickname != "" {
		w, h := r.SpriteSize()
		c.DrawLabel(u.Nickname, u.Draw.X+w/2, u.Draw.Y+h+labelGap, r.opts.LabelColor)
	}
}

// VariantAppearance returns an Appearance func that spreads users over the
// given sprite variants by hashing their id. Sprite paths have the form
// "characters/<layer>/<variant>.png".
func VariantAppearance(variants ...string) func(string) Appearance {
	if len(variants) == 0 {
		variants = []string{"default"}
	}
	return func(userID string) Appearance {
		h := fnv.New32a()
		_, _ = h.Write([]byte(userID))
		v := variants[h.Sum32()%uint32(len(variants))]

		var a Appearance
		for _, l := range Layers {
			a[l] = "characters/" + l.String() + "/" + v + ".png"
		}
		return a
	}
}
