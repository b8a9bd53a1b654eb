// Package screen implements render.Canvas on top of ebiten.
package screen

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"io/fs"

	"github.com/golang/freetype/truetype"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/text" //nolint:staticcheck // text/v2 has no freetype face adapter
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"metaverse/internal/app/render"
	"metaverse/internal/app/world"
)

// Canvas draws onto an ebiten screen image.
type Canvas struct {
	Target *ebiten.Image
	Face   font.Face
}

var _ render.Canvas = (*Canvas)(nil)

func (c *Canvas) Clear() {
	c.Target.Clear()
}

func (c *Canvas) DrawImage(img render.Image, src image.Rectangle, x, y, scale float64) {
	eimg, ok := img.(*ebiten.Image)
	if !ok {
		return
	}
	sub, ok := eimg.SubImage(src).(*ebiten.Image)
	if !ok {
		return
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(x, y)
	c.Target.DrawImage(sub, op)
}

func (c *Canvas) FillRect(r world.Rect, clr color.Color) {
	vector.FillRect(c.Target, float32(r.X), float32(r.Y), float32(r.W), float32(r.H), clr, false)
}

func (c *Canvas) DrawLabel(s string, centerX, topY float64, clr color.Color) {
	if c.Face == nil {
		return
	}
	bounds := text.BoundString(c.Face, s)
	x := int(centerX) - bounds.Dx()/2
	y := int(topY) - bounds.Min.Y
	text.Draw(c.Target, s, c.Face, x, y, clr)
}

// LabelFace returns the Go Regular face at size points.
func LabelFace(size float64) (font.Face, error) {
	parsed, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{Size: size}), nil
}

// FileLoader loads PNG images from fsys as ebiten images.
func FileLoader(fsys fs.FS) render.Loader {
	return func(ctx context.Context, path string) (render.Image, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, _, err := ebitenutil.NewImageFromFileSystem(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("load image %s: %w", path, err)
		}
		return img, nil
	}
}

// WithImages serves the given decoded images, such as rendered map
// backgrounds, under their keys and defers every other path to fallback.
func WithImages(images map[string]image.Image, fallback render.Loader) render.Loader {
	return func(ctx context.Context, path string) (render.Image, error) {
		if src, ok := images[path]; ok {
			return ebiten.NewImageFromImage(src), nil
		}
		return fallback(ctx, path)
	}
}
