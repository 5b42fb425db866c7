package limits

import (
	"fmt"
)

// Defaults for inbound push traffic. A line payload is two levels deep
// with six fields.
const (
	DefaultMaxMessageSize    = 64 * 1024
	DefaultMaxObjects        = 100000
	DefaultMaxObjectDepth    = 4
	DefaultMaxObjectElements = 16
)

// ObjectCounter interface for counting objects (avoids import cycle with scene)
type ObjectCounter interface {
	Len() int
}

// configuration for inbound message limits
type Limits struct {
	MaxMessageSize    int
	MaxObjects        int
	MaxObjectDepth    int
	MaxObjectElements int
}

// New: creates a new Limits configuration
func New(maxMessageSize, maxObjects, maxObjectDepth, maxObjectElements int) *Limits {
	return &Limits{
		MaxMessageSize:    maxMessageSize,
		MaxObjects:        maxObjects,
		MaxObjectDepth:    maxObjectDepth,
		MaxObjectElements: maxObjectElements,
	}
}

// Default: limits used when nothing is configured
func Default() *Limits {
	return New(DefaultMaxMessageSize, DefaultMaxObjects, DefaultMaxObjectDepth, DefaultMaxObjectElements)
}

// CanAddObject: checks if a scene has space for one more keyed object
func (l *Limits) CanAddObject(counter ObjectCounter) bool {
	return l.MaxObjects <= 0 || counter.Len() < l.MaxObjects
}

// ValidateMessageSize: checks if a message is within the size limit
func (l *Limits) ValidateMessageSize(msgSize int) bool {
	return l.MaxMessageSize <= 0 || msgSize <= l.MaxMessageSize
}

// ValidateContent bounds the shape of a decoded drawing payload. Depth
// counts nested objects and arrays; fields counts object keys at every level.
func (l *Limits) ValidateContent(content any) error {
	depth, fields := measure(content)

	if l.MaxObjectDepth > 0 && depth > l.MaxObjectDepth {
		return fmt.Errorf("content nesting too deep: %d levels (max %d)", depth, l.MaxObjectDepth)
	}
	if l.MaxObjectElements > 0 && fields > l.MaxObjectElements {
		return fmt.Errorf("content has too many fields: %d (max %d)", fields, l.MaxObjectElements)
	}
	return nil
}

func measure(v any) (depth, fields int) {
	var children []any
	switch node := v.(type) {
	case map[string]any:
		fields = len(node)
		for _, child := range node {
			children = append(children, child)
		}
	case []any:
		children = node
	default:
		return 0, 0
	}

	deepest := 0
	for _, child := range children {
		d, f := measure(child)
		deepest = max(deepest, d)
		fields += f
	}
	return deepest + 1, fields
}
