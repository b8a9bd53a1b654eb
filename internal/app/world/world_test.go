package world

import (
	"os"
	"testing"
)

func loadLobby(t *testing.T) *Map {
	t.Helper()
	m, err := Load(os.DirFS("testdata"), "lobby.tmx")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestLoadParsesLayersAndGroups(t *testing.T) {
	m := loadLobby(t)

	if m.Name != "lobby" || m.Width != 96 || m.Height != 64 {
		t.Fatalf("map = %s %dx%d", m.Name, m.Width, m.Height)
	}
	if w, h := m.Size(); w != 96 || h != 64 {
		t.Fatalf("Size = %dx%d, want 96x64 pixels", w, h)
	}
	if len(m.Walls) != 4 {
		t.Fatalf("walls = %d, want 4", len(m.Walls))
	}
	for _, w := range m.Walls {
		if w.X != 48 || w.W != 16 || w.H != 16 {
			t.Fatalf("unexpected wall %+v", w)
		}
	}

	if len(m.Portals) != 1 {
		t.Fatalf("portals = %d", len(m.Portals))
	}
	if p := m.Portals[0]; p.RoomType != "meeting" || p.RoomID != "m1" || p.Bounds != (Rect{0, 48, 16, 16}) {
		t.Fatalf("portal = %+v", p)
	}

	if len(m.NPCs) != 1 || m.NPCs[0].Sprite != "npc/guide.png" || m.NPCs[0].Name != "guide" {
		t.Fatalf("npcs = %+v", m.NPCs)
	}
	if m.SpawnX != 8 || m.SpawnY != 8 {
		t.Fatalf("spawn = (%v, %v)", m.SpawnX, m.SpawnY)
	}
}

func TestLoadAll(t *testing.T) {
	maps, names, err := LoadAll(os.DirFS("."), "testdata")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(names) != 1 || names[0] != "lobby" || maps["lobby"] == nil {
		t.Fatalf("names = %v", names)
	}

	if _, _, err := LoadAll(os.DirFS("."), "missing"); err == nil {
		t.Fatal("LoadAll on an empty directory succeeded")
	}
}

func TestMoveStopsFlushAgainstWall(t *testing.T) {
	m := loadLobby(t)
	a := m.Place(8, 8, 8, 8)

	a.Move(40, 0)
	if x, _ := a.Position(); x != 40 {
		t.Fatalf("x = %v, want 40 (flush with wall at 48)", x)
	}

	a.Move(5, 0)
	if x, _ := a.Position(); x != 40 {
		t.Fatalf("x = %v after pushing into wall", x)
	}

	a.Move(-10, 0)
	if x, _ := a.Position(); x != 30 {
		t.Fatalf("x = %v after moving away", x)
	}
}

func TestMoveClampsToMapEdges(t *testing.T) {
	m := loadLobby(t)
	a := m.Place(8, 8, 8, 8)

	a.Move(-100, -100)
	if x, y := a.Position(); x != 0 || y != 0 {
		t.Fatalf("position = (%v, %v), want origin", x, y)
	}
}

func TestMoveIntoPortal(t *testing.T) {
	m := loadLobby(t)
	a := m.Place(8, 8, 8, 8)

	if _, ok := a.Move(0, 10); ok {
		t.Fatal("portal reported away from any portal")
	}

	p, ok := a.Move(0, 30)
	if !ok {
		x, y := a.Position()
		t.Fatalf("no portal at (%v, %v)", x, y)
	}
	if p.RoomType != "meeting" || p.RoomID != "m1" {
		t.Fatalf("portal = %+v", p)
	}

	a.Remove()
}

func TestRectOverlaps(t *testing.T) {
	base := Rect{X: 0, Y: 0, W: 10, H: 10}
	tests := []struct {
		name  string
		other Rect
		want  bool
	}{
		{"inside", Rect{2, 2, 2, 2}, true},
		{"partial", Rect{5, 5, 10, 10}, true},
		{"touching edge", Rect{10, 0, 5, 5}, false},
		{"apart", Rect{20, 20, 1, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Overlaps(tt.other); got != tt.want {
				t.Fatalf("Overlaps(%+v) = %v, want %v", tt.other, got, tt.want)
			}
		})
	}
}
