package render

import (
	"fmt"
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

// Palette modes
const (
	PaletteMono     = "mono"
	PaletteDistinct = "distinct"
)

const goldenRatio = 0.618033988749895

// Palette: picks the stroke colour of each drawn primitive
type Palette struct {
	mode string
	base colorful.Color
	hue  float64 // next hue, in turns
	mu   sync.Mutex
}

// NewPalette parses the base stroke colour ("#rrggbb"). In distinct mode
// the base colour is only used by Base.
func NewPalette(mode, stroke string) (*Palette, error) {
	base, err := colorful.Hex(stroke)
	if err != nil {
		return nil, fmt.Errorf("invalid stroke color %q: %w", stroke, err)
	}

	switch mode {
	case "", PaletteMono:
		mode = PaletteMono
	case PaletteDistinct:
	default:
		return nil, fmt.Errorf("unknown palette %q", mode)
	}

	return &Palette{mode: mode, base: base}, nil
}

// Base: configured stroke colour
func (p *Palette) Base() colorful.Color {
	return p.base
}

// NextColor: returns the next stroke colour. Distinct mode walks the hue
// circle in golden ratio steps so neighbours stay far apart
func (p *Palette) NextColor() colorful.Color {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode != PaletteDistinct {
		return p.base
	}

	c := colorful.Hsl(p.hue*360, 0.85, 0.55)
	_, p.hue = math.Modf(p.hue + goldenRatio)
	return c
}

// Reset restarts the sequence, so a full redraw repeats the same colours.
func (p *Palette) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.hue = 0
}
