/*
Package world loads the Tiled maps rooms are drawn on and resolves avatar movement
against their walls and portals.

Maps are read from an fs.FS so the client can pass an embed.FS or os.DirFS.
Layer and object group names are fixed: a "Collision" tile layer marks walls,
"Portals" objects lead to other rooms, "NPCs" objects are static characters and
the first "Spawn" object is where avatars appear.
*/
package world

import (
	"fmt"
	"image"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lafriks/go-tiled"
	"github.com/lafriks/go-tiled/render"
	"github.com/solarlune/resolv"
)

const (
	layerCollision = "Collision"
	groupPortals   = "Portals"
	groupNPCs      = "NPCs"
	groupSpawn     = "Spawn"

	tagSolid  = "solid"
	tagPortal = "portal"
	tagAvatar = "avatar"
)

// Rect is an axis-aligned rectangle in map pixels.
type Rect struct {
	X, Y, W, H float64
}

// Overlaps reports whether r and o share any area.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Portal leads to another room when an avatar walks into it.
type Portal struct {
	Name     string
	RoomType string
	RoomID   string
	Bounds   Rect
}

// NPC is a static character drawn from an image path.
type NPC struct {
	Name   string
	Sprite string
	Bounds Rect
}

// Map is one parsed room map. Width and Height are in pixels.
type Map struct {
	Name       string
	Width      int
	Height     int
	TileWidth  int
	TileHeight int

	SpawnX, SpawnY float64

	Walls   []Rect
	Portals []Portal
	NPCs    []NPC

	raw   *tiled.Map
	space *resolv.Space
}

// Load parses the TMX file at path.
func Load(fsys fs.FS, path string) (*Map, error) {
	tm, err := tiled.LoadFile(path, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", path, err)
	}

	m := &Map{
		Name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Width:      tm.Width * tm.TileWidth,
		Height:     tm.Height * tm.TileHeight,
		TileWidth:  tm.TileWidth,
		TileHeight: tm.TileHeight,
		raw:        tm,
	}
	m.SpawnX, m.SpawnY = float64(m.Width)/2, float64(m.Height)/2

	tileW, tileH := float64(tm.TileWidth), float64(tm.TileHeight)
	for _, layer := range tm.Layers {
		if layer.Name != layerCollision {
			continue
		}
		for y := 0; y < tm.Height; y++ {
			for x := 0; x < tm.Width; x++ {
				tile := layer.Tiles[y*tm.Width+x]
				if tile == nil || tile.IsNil() {
					continue
				}
				m.Walls = append(m.Walls, Rect{X: float64(x) * tileW, Y: float64(y) * tileH, W: tileW, H: tileH})
			}
		}
		break
	}

	for _, og := range tm.ObjectGroups {
		switch og.Name {
		case groupPortals:
			for _, o := range og.Objects {
				m.Portals = append(m.Portals, Portal{
					Name:     o.Name,
					RoomType: o.Properties.GetString("roomType"),
					RoomID:   o.Properties.GetString("roomId"),
					Bounds:   Rect{X: o.X, Y: o.Y, W: o.Width, H: o.Height},
				})
			}
		case groupNPCs:
			for _, o := range og.Objects {
				m.NPCs = append(m.NPCs, NPC{
					Name:   o.Name,
					Sprite: o.Properties.GetString("sprite"),
					Bounds: Rect{X: o.X, Y: o.Y, W: o.Width, H: o.Height},
				})
			}
		case groupSpawn:
			if len(og.Objects) > 0 {
				m.SpawnX, m.SpawnY = og.Objects[0].X, og.Objects[0].Y
			}
		}
	}

	m.buildSpace()
	return m, nil
}

// LoadAll loads every .tmx file in dir, keyed by file stem, plus the sorted
// list of stems.
func LoadAll(fsys fs.FS, dir string) (map[string]*Map, []string, error) {
	pattern := dir + "/*.tmx"
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no .tmx files found in %s", dir)
	}

	maps := make(map[string]*Map, len(matches))
	names := make([]string, 0, len(matches))
	for _, path := range matches {
		m, err := Load(fsys, path)
		if err != nil {
			return nil, nil, err
		}
		maps[m.Name] = m
		names = append(names, m.Name)
	}

	sort.Strings(names)
	return maps, names, nil
}

// Size returns the map's pixel size, the logical screen a client lays out.
func (m *Map) Size() (w, h int) {
	return m.Width, m.Height
}

func (m *Map) buildSpace() {
	cellW, cellH := m.TileWidth, m.TileHeight
	if cellW <= 0 || cellH <= 0 {
		cellW, cellH = 16, 16
	}
	m.space = resolv.NewSpace(m.Width, m.Height, cellW, cellH)

	for _, w := range m.Walls {
		m.space.Add(resolv.NewObject(w.X, w.Y, w.W, w.H, tagSolid))
	}
	for i, p := range m.Portals {
		obj := resolv.NewObject(p.Bounds.X, p.Bounds.Y, p.Bounds.W, p.Bounds.H, tagPortal)
		obj.Data = i
		m.space.Add(obj)
	}
}

// RenderBackground draws the visible tile layers into one image. Tileset images
// are read from fsys relative to the map file.
func (m *Map) RenderBackground(fsys fs.FS) (image.Image, error) {
	renderer, err := render.NewRendererWithFileSystem(m.raw, fsys)
	if err != nil {
		return nil, fmt.Errorf("create renderer for %s: %w", m.Name, err)
	}

	for i, layer := range m.raw.Layers {
		if !layer.Visible || layer.Name == layerCollision {
			continue
		}
		if err := renderer.RenderLayer(i); err != nil {
			return nil, fmt.Errorf("render layer %q of %s: %w", layer.Name, m.Name, err)
		}
	}
	return renderer.Result, nil
}

// Avatar is a body placed in a map's collision space.
type Avatar struct {
	m   *Map
	obj *resolv.Object
}

// Place puts a w×h body at (x, y).
func (m *Map) Place(x, y, w, h float64) *Avatar {
	obj := resolv.NewObject(x, y, w, h, tagAvatar)
	m.space.Add(obj)
	return &Avatar{m: m, obj: obj}
}

// Position returns the top-left corner of the body.
func (a *Avatar) Position() (float64, float64) {
	return a.obj.X, a.obj.Y
}

// Bounds returns the body rectangle.
func (a *Avatar) Bounds() Rect {
	return Rect{X: a.obj.X, Y: a.obj.Y, W: a.obj.W, H: a.obj.H}
}

// Move slides the body by (dx, dy), one axis at a time, stopping at walls and
// map edges. It returns the portal the body ends up touching, if any.
func (a *Avatar) Move(dx, dy float64) (Portal, bool) {
	if dx != 0 {
		a.obj.X += a.clearance(dx, 0)
	}
	if dy != 0 {
		a.obj.Y += a.clearance(0, dy)
	}

	a.obj.X = clamp(a.obj.X, 0, float64(a.m.Width)-a.obj.W)
	a.obj.Y = clamp(a.obj.Y, 0, float64(a.m.Height)-a.obj.H)
	a.obj.Update()

	return a.Portal()
}

// Portal reports the portal the body currently overlaps.
func (a *Avatar) Portal() (Portal, bool) {
	check := a.obj.Check(0, 0, tagPortal)
	if check == nil {
		return Portal{}, false
	}

	body := a.Bounds()
	for _, obj := range check.ObjectsByTags(tagPortal) {
		idx, ok := obj.Data.(int)
		if !ok || idx < 0 || idx >= len(a.m.Portals) {
			continue
		}
		if p := a.m.Portals[idx]; body.Overlaps(p.Bounds) {
			return p, true
		}
	}
	return Portal{}, false
}

// Remove takes the body out of the collision space.
func (a *Avatar) Remove() {
	a.m.space.Remove(a.obj)
}

// clearance shortens a single-axis move so the body stops flush against the
// nearest wall in its path.
func (a *Avatar) clearance(dx, dy float64) float64 {
	check := a.obj.Check(dx, dy, tagSolid)
	if check == nil {
		if dx != 0 {
			return dx
		}
		return dy
	}

	target := a.Bounds()
	target.X += dx
	target.Y += dy

	allowed := dx + dy
	for _, wall := range check.ObjectsByTags(tagSolid) {
		wr := Rect{X: wall.X, Y: wall.Y, W: wall.W, H: wall.H}
		if !target.Overlaps(wr) {
			continue
		}

		var gap float64
		switch {
		case dx > 0:
			gap = wr.X - (a.obj.X + a.obj.W)
		case dx < 0:
			gap = (wr.X + wr.W) - a.obj.X
		case dy > 0:
			gap = wr.Y - (a.obj.Y + a.obj.H)
		case dy < 0:
			gap = (wr.Y + wr.H) - a.obj.Y
		}

		// Already overlapping this wall: do not push further in.
		if (allowed > 0 && gap < 0) || (allowed < 0 && gap > 0) {
			gap = 0
		}
		if abs(gap) < abs(allowed) {
			allowed = gap
		}
	}
	return allowed
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
