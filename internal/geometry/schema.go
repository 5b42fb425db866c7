package geometry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks wire data that decodes but is missing required parts.
var ErrMalformed = errors.New("malformed drawing")

// =============================================================================
// Poll wire shapes
// =============================================================================

// Drawing is the poll response one-of. Exactly one field is set.
type Drawing struct {
	Line      *LineData      `json:"line,omitempty"`
	Rectangle *RectangleData `json:"rectangle,omitempty"`
	Circle    *CircleData    `json:"circle,omitempty"`
}

type LineData struct {
	From *Point `json:"from" validate:"required"`
	To   *Point `json:"to" validate:"required"`
}

type RectangleData struct {
	LowerLeft  *Point `json:"lowerLeft" validate:"required"`
	UpperRight *Point `json:"upperRight" validate:"required"`
}

type CircleData struct {
	Center *Point  `json:"center" validate:"required"`
	Radius float64 `json:"radius" validate:"min=0,max=1000000"`
}

// Primitive converts the one-of into its variant.
func (d Drawing) Primitive() (Primitive, error) {
	set := 0
	if d.Line != nil {
		set++
	}
	if d.Rectangle != nil {
		set++
	}
	if d.Circle != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: %d variants set", ErrUnknownVariant, set)
	}

	switch {
	case d.Line != nil:
		if d.Line.From == nil || d.Line.To == nil {
			return nil, fmt.Errorf("%w: line endpoints missing", ErrMalformed)
		}
		return Line{From: *d.Line.From, To: *d.Line.To}, nil
	case d.Rectangle != nil:
		if d.Rectangle.LowerLeft == nil || d.Rectangle.UpperRight == nil {
			return nil, fmt.Errorf("%w: rectangle corners missing", ErrMalformed)
		}
		return Rectangle{LowerLeft: *d.Rectangle.LowerLeft, UpperRight: *d.Rectangle.UpperRight}, nil
	default:
		if d.Circle.Center == nil {
			return nil, fmt.Errorf("%w: circle center missing", ErrMalformed)
		}
		return Circle{Center: *d.Circle.Center, Radius: d.Circle.Radius}, nil
	}
}

// NewDrawing wraps a primitive in its wire one-of.
func NewDrawing(p Primitive) (Drawing, error) {
	var d Drawing
	err := Visit(p, drawingBuilder{&d})
	return d, err
}

type drawingBuilder struct{ d *Drawing }

func (b drawingBuilder) VisitLine(l Line) error {
	b.d.Line = &LineData{From: ptr(l.From), To: ptr(l.To)}
	return nil
}

func (b drawingBuilder) VisitRectangle(r Rectangle) error {
	b.d.Rectangle = &RectangleData{LowerLeft: ptr(r.LowerLeft), UpperRight: ptr(r.UpperRight)}
	return nil
}

func (b drawingBuilder) VisitCircle(c Circle) error {
	b.d.Circle = &CircleData{Center: ptr(c.Center), Radius: c.Radius}
	return nil
}

func ptr(p Point) *Point { return &p }

// =============================================================================
// Keyed object shapes (push channel and snapshots)
// =============================================================================

// LineContent is the content of a push "line" message.
type LineContent struct {
	Begin *Point `json:"begin" validate:"required"`
	End   *Point `json:"end" validate:"required"`
}

type objectJSON struct {
	ID      string          `json:"id"`
	Type    Kind            `json:"type"`
	Content json.RawMessage `json:"content"`
}

// DecodeContent builds the primitive for kind from its JSON content.
func DecodeContent(kind Kind, raw []byte) (Primitive, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: %s content missing", ErrMalformed, kind)
	}

	switch kind {
	case KindLine:
		var c LineContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode line content: %w", err)
		}
		if c.Begin == nil || c.End == nil {
			return nil, fmt.Errorf("%w: line endpoints missing", ErrMalformed)
		}
		return Line{From: *c.Begin, To: *c.End}, nil
	case KindRectangle:
		var d Drawing
		d.Rectangle = &RectangleData{}
		if err := json.Unmarshal(raw, d.Rectangle); err != nil {
			return nil, fmt.Errorf("decode rectangle content: %w", err)
		}
		return d.Primitive()
	case KindCircle:
		var d Drawing
		d.Circle = &CircleData{}
		if err := json.Unmarshal(raw, d.Circle); err != nil {
			return nil, fmt.Errorf("decode circle content: %w", err)
		}
		return d.Primitive()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, kind)
	}
}

// EncodeContent is the inverse of DecodeContent.
func EncodeContent(p Primitive) (Kind, []byte, error) {
	var content any
	err := Visit(p, contentBuilder{&content})
	if err != nil {
		return "", nil, err
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s content: %w", p.Kind(), err)
	}
	return p.Kind(), raw, nil
}

type contentBuilder struct{ out *any }

func (b contentBuilder) VisitLine(l Line) error {
	*b.out = LineContent{Begin: ptr(l.From), End: ptr(l.To)}
	return nil
}

func (b contentBuilder) VisitRectangle(r Rectangle) error {
	*b.out = RectangleData{LowerLeft: ptr(r.LowerLeft), UpperRight: ptr(r.UpperRight)}
	return nil
}

func (b contentBuilder) VisitCircle(c Circle) error {
	*b.out = CircleData{Center: ptr(c.Center), Radius: c.Radius}
	return nil
}

// MarshalJSON writes {"id", "type", "content"}.
func (o DrawingObject) MarshalJSON() ([]byte, error) {
	kind, content, err := EncodeContent(o.Shape)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", o.ID, err)
	}
	return json.Marshal(objectJSON{ID: o.ID, Type: kind, Content: content})
}

func (o *DrawingObject) UnmarshalJSON(data []byte) error {
	var raw objectJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal object: %w", err)
	}
	shape, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return fmt.Errorf("object %s: %w", raw.ID, err)
	}
	o.ID = raw.ID
	o.Shape = shape
	return nil
}
