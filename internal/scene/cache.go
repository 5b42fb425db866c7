package scene

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mattfrayser/scenesync/internal/geometry"
)

// Cache holds the reconciled state of one scene.
//
// The keyed part (Upsert/Clear) backs the push channel and is what gets
// persisted. The draw log (Append) backs polling: the poll protocol carries
// no identifiers, so every delivered primitive is kept and drawn once.
type Cache struct {
	order   []string
	objects map[string]geometry.DrawingObject
	log     []geometry.Primitive
	cursor  int64
	mu      sync.RWMutex
}

// New returns an empty scene.
func New() *Cache {
	return &Cache{
		objects: make(map[string]geometry.DrawingObject),
	}
}

// Upsert: stores p under id. An existing id keeps its position.
func (c *Cache) Upsert(id string, p geometry.Primitive) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.objects == nil {
		c.objects = make(map[string]geometry.DrawingObject)
	}
	if _, exists := c.objects[id]; !exists {
		c.order = append(c.order, id)
	}
	c.objects[id] = geometry.DrawingObject{ID: id, Shape: p}
}

// Clear: drops every keyed object and the draw log. The cursor is kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = nil
	c.objects = make(map[string]geometry.DrawingObject)
	c.log = nil
}

// Append: adds p to the draw log
func (c *Cache) Append(p geometry.Primitive) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log = append(c.log, p)
}

// CurrentCursor returns the timestamp of the latest applied poll update.
func (c *Cache) CurrentCursor() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cursor
}

// AdvanceCursor moves the cursor forward. Values at or below the current
// cursor are ignored; the return value reports whether it moved.
func (c *Cache) AdvanceCursor(value int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value <= c.cursor {
		return false
	}
	c.cursor = value
	return true
}

// Get: retrieves a keyed object by id
func (c *Cache) Get(id string) (geometry.DrawingObject, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	obj, ok := c.objects[id]
	return obj, ok
}

// Objects: snapshot of keyed objects in insertion order
func (c *Cache) Objects() []geometry.DrawingObject {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make([]geometry.DrawingObject, 0, len(c.order))
	for _, id := range c.order {
		snapshot = append(snapshot, c.objects[id])
	}
	return snapshot
}

// Len: number of keyed objects
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.objects)
}

// Log: snapshot of the draw log
func (c *Cache) Log() []geometry.Primitive {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make([]geometry.Primitive, len(c.log))
	copy(snapshot, c.log)
	return snapshot
}

// LogLen: number of primitives drawn through polling
func (c *Cache) LogLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.log)
}

// MarshalJSON encodes the keyed objects as an id → object map, in
// insertion order.
func (c *Cache) MarshalJSON() ([]byte, error) {
	objects := c.Objects()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, obj := range objects {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(obj.ID)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", obj.ID, err)
		}
		value, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the keyed objects with the encoded map, keeping the
// encoded order.
func (c *Cache) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("snapshot is not an object")
	}

	order := make([]string, 0)
	objects := make(map[string]geometry.DrawingObject)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read snapshot key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("snapshot key is not a string")
		}

		var obj geometry.DrawingObject
		if err := dec.Decode(&obj); err != nil {
			return fmt.Errorf("read snapshot object %q: %w", key, err)
		}
		obj.ID = key

		if _, exists := objects[key]; !exists {
			order = append(order, key)
		}
		objects[key] = obj
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read snapshot end: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = order
	c.objects = objects
	return nil
}
