package whiteboard

import (
	"encoding/json"

	"metaverse/internal/pkg/randx"
)

// Document is the ordered object list of one whiteboard. Like the presence
// store it is owned by the game goroutine.
type Document struct {
	objects []Object
}

// NewDocument returns a document holding a copy of objects.
func NewDocument(objects ...Object) *Document {
	d := &Document{}
	d.objects = append(d.objects, objects...)
	return d
}

// Objects returns a copy of the object list in z-order.
func (d *Document) Objects() []Object {
	out := make([]Object, len(d.objects))
	copy(out, d.objects)
	return out
}

// Len returns the number of objects.
func (d *Document) Len() int {
	return len(d.objects)
}

// Add appends o, assigning an ID when it has none, and returns the stored object.
func (d *Document) Add(o Object) Object {
	if o.ID == "" {
		o.ID = randx.ObjectID()
	}
	if o.ScaleX == 0 {
		o.ScaleX = 1
	}
	if o.ScaleY == 0 {
		o.ScaleY = 1
	}
	d.objects = append(d.objects, o)
	return o
}

// Remove deletes the object with the given ID.
func (d *Document) Remove(id string) bool {
	for i, o := range d.objects {
		if o.ID == id {
			d.objects = append(d.objects[:i], d.objects[i+1:]...)
			return true
		}
	}
	return false
}

// Update applies fn to the object with the given ID.
func (d *Document) Update(id string, fn func(*Object)) bool {
	for i := range d.objects {
		if d.objects[i].ID == id {
			fn(&d.objects[i])
			return true
		}
	}
	return false
}

// Clear removes every object.
func (d *Document) Clear() {
	d.objects = nil
}

// Serialize renders the full document as a string for change detection.
func (d *Document) Serialize() (string, error) {
	objects := d.objects
	if objects == nil {
		objects = []Object{}
	}
	b, err := json.Marshal(objects)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// removeKeys drops every object whose key is in keys.
func (d *Document) removeKeys(keys map[string]struct{}, key KeyFunc) int {
	kept := d.objects[:0]
	removed := 0
	for _, o := range d.objects {
		if _, drop := keys[key(o)]; drop {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	d.objects = kept
	return removed
}
