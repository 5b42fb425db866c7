package geometry

import (
	"errors"
	"fmt"
)

// ErrUnknownVariant is returned when a primitive or wire drawing carries no
// recognised shape.
var ErrUnknownVariant = errors.New("unknown primitive variant")

// Kind names a primitive variant on the wire and in snapshots
type Kind string

const (
	KindLine      Kind = "line"
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
)

// Point: normalized scene coordinate, conventionally within [-1, 1]
type Point struct {
	X float64 `json:"x" validate:"min=-1000000,max=1000000"`
	Y float64 `json:"y" validate:"min=-1000000,max=1000000"`
}

// Primitive is the closed set of drawable shapes. Only Line, Rectangle and
// Circle implement it.
type Primitive interface {
	Kind() Kind
	primitive()
}

// Line: stroked segment between two points
type Line struct {
	From Point
	To   Point
}

// Rectangle: axis-aligned box given by its geometric corners
type Rectangle struct {
	LowerLeft  Point
	UpperRight Point
}

// Circle: full circle around Center
type Circle struct {
	Center Point
	Radius float64
}

func (Line) Kind() Kind      { return KindLine }
func (Rectangle) Kind() Kind { return KindRectangle }
func (Circle) Kind() Kind    { return KindCircle }

func (Line) primitive()      {}
func (Rectangle) primitive() {}
func (Circle) primitive()    {}

// Visitor handles every primitive variant. Adding a variant to the set adds a
// method here, so every consumer fails to compile until it handles it.
type Visitor interface {
	VisitLine(Line) error
	VisitRectangle(Rectangle) error
	VisitCircle(Circle) error
}

// Visit dispatches p to the matching Visitor method. Nil primitives, typed
// nil pointers included, are an unknown variant.
func Visit(p Primitive, v Visitor) error {
	switch shape := p.(type) {
	case nil:
		return fmt.Errorf("%w: nil primitive", ErrUnknownVariant)
	case Line:
		return v.VisitLine(shape)
	case *Line:
		if shape != nil {
			return v.VisitLine(*shape)
		}
	case Rectangle:
		return v.VisitRectangle(shape)
	case *Rectangle:
		if shape != nil {
			return v.VisitRectangle(*shape)
		}
	case Circle:
		return v.VisitCircle(shape)
	case *Circle:
		if shape != nil {
			return v.VisitCircle(*shape)
		}
	}
	return fmt.Errorf("%w: %T", ErrUnknownVariant, p)
}

// DrawingObject: an identified primitive. IDs are unique within one scene.
type DrawingObject struct {
	ID    string
	Shape Primitive
}
