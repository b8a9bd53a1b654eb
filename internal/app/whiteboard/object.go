/*
Package whiteboard implements the shared drawing surface of a room: the object
model, whole-document change detection for outbound edits, and key-based
reconciliation of inbound snapshots.
*/
package whiteboard

import (
	"strconv"
	"strings"
)

// Object kinds drawn by the client.
const (
	KindRect   = "rect"
	KindCircle = "circle"
	KindLine   = "line"
	KindPath   = "path"
	KindText   = "text"
)

// Object is one drawable item. Geometry follows the usual canvas-object layout:
// Left/Top is the origin, Width/Height the unscaled size, ScaleX/ScaleY and Angle
// (degrees) the transform.
type Object struct {
	ID     string  `json:"id,omitempty"`
	Type   string  `json:"type"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
	Angle  float64 `json:"angle"`

	Fill        string  `json:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`

	Radius float64      `json:"radius,omitempty"`
	Points [][2]float64 `json:"points,omitempty"`
	Text   string       `json:"text,omitempty"`
}

// KeyFunc derives the identity used to match objects between two documents.
type KeyFunc func(Object) string

// StructuralKey fingerprints an object by kind, geometry and transform. Two
// objects with identical values collapse to the same key, and any geometry
// change produces a new key.
func StructuralKey(o Object) string {
	var b strings.Builder
	b.WriteString(o.Type)
	for _, v := range []float64{o.Left, o.Top, o.Width, o.Height, o.ScaleX, o.ScaleY, o.Angle} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// IdentityKey matches objects by their ID and falls back to StructuralKey for
// objects without one. Geometry changes to an object with an ID still produce a
// delete+add pair because IdentityKey includes the structural key.
func IdentityKey(o Object) string {
	if o.ID == "" {
		return StructuralKey(o)
	}
	return o.ID + "#" + StructuralKey(o)
}
