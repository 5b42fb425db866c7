package render

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"

	"github.com/gogpu/gg"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/mattfrayser/scenesync/internal/geometry"
	"github.com/mattfrayser/scenesync/internal/scene"
)

const (
	DefaultWidth      = 800
	DefaultHeight     = 800
	DefaultLineWidth  = 0.0025
	DefaultStroke     = "#000000"
	DefaultBackground = "#ffffff"
)

// Surface is the subset of *gg.Context the renderer draws with.
type Surface interface {
	Width() int
	Height() int
	Identity()
	Scale(x, y float64)
	Translate(x, y float64)
	SetColor(c color.Color)
	SetLineWidth(width float64)
	ClearWithColor(c gg.RGBA)
	MoveTo(x, y float64)
	LineTo(x, y float64)
	DrawRectangle(x, y, w, h float64)
	DrawCircle(x, y, r float64)
	Stroke() error
	Image() image.Image
}

var _ Surface = (*gg.Context)(nil)

// NewSurface creates a software gg surface.
func NewSurface(width, height int) *gg.Context {
	return gg.NewContext(width, height)
}

// Transform maps a normalized scene point to device pixels on a width x
// height surface: y points up in the scene and down on the surface.
func Transform(width, height int, x, y float64) (float64, float64) {
	w, h := float64(width), float64(height)
	return w / 2 * (x + 1), h / 2 * (1 - y)
}

// Options: rendering settings
type Options struct {
	LineWidth  float64
	Background string
	Palette    *Palette
	Sink       FrameSink
	Logger     *slog.Logger
}

// Renderer draws scene state onto a Surface. It only reads the scene.
type Renderer struct {
	surface    Surface
	lineWidth  float64
	background gg.RGBA
	palette    *Palette
	sink       FrameSink
	frames     int
	logger     *slog.Logger
	mu         sync.Mutex
}

// New sets up the surface transform once and returns a renderer for it.
func New(surface Surface, opts Options) (*Renderer, error) {
	if opts.LineWidth <= 0 {
		opts.LineWidth = DefaultLineWidth
	}
	if opts.Background == "" {
		opts.Background = DefaultBackground
	}
	if opts.Palette == nil {
		p, err := NewPalette(PaletteMono, DefaultStroke)
		if err != nil {
			return nil, err
		}
		opts.Palette = p
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	bg, err := colorful.Hex(opts.Background)
	if err != nil {
		return nil, fmt.Errorf("invalid background color %q: %w", opts.Background, err)
	}

	r := &Renderer{
		surface:    surface,
		lineWidth:  opts.LineWidth,
		background: gg.FromColor(bg),
		palette:    opts.Palette,
		sink:       opts.Sink,
		logger:     opts.Logger,
	}
	r.setup()
	return r, nil
}

// setup: normalized [-1,1]² y-up onto the pixel grid, applied once
func (r *Renderer) setup() {
	w, h := float64(r.surface.Width()), float64(r.surface.Height())

	r.surface.Identity()
	r.surface.Scale(w/2, -h/2)
	r.surface.Translate(1, -1)
	r.surface.SetLineWidth(r.lineWidth)
	r.surface.ClearWithColor(r.background)
}

// Redraw clears the surface and draws every keyed object in order.
func (r *Renderer) Redraw(cache *scene.Cache) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.surface.ClearWithColor(r.background)
	r.palette.Reset()

	for _, obj := range cache.Objects() {
		if err := r.stroke(obj.Shape); err != nil {
			return fmt.Errorf("draw object %s: %w", obj.ID, err)
		}
	}
	return r.emit()
}

// Draw strokes prims over the current surface content.
func (r *Renderer) Draw(prims ...geometry.Primitive) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range prims {
		if err := r.stroke(p); err != nil {
			return err
		}
	}
	return r.emit()
}

// Frames: number of completed render passes
func (r *Renderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.frames
}

// Image returns the current surface content.
func (r *Renderer) Image() image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.surface.Image()
}

func (r *Renderer) stroke(p geometry.Primitive) error {
	r.surface.SetColor(r.palette.NextColor())
	if err := geometry.Visit(p, pathBuilder{r.surface}); err != nil {
		return err
	}
	return r.surface.Stroke()
}

func (r *Renderer) emit() error {
	r.frames++
	if r.sink == nil {
		return nil
	}
	if err := r.sink.WriteFrame(r.surface.Image()); err != nil {
		r.logger.Warn("failed to write frame", "frame", r.frames, "error", err)
	}
	return nil
}

// pathBuilder adds one primitive to the current path, in scene coordinates.
type pathBuilder struct {
	s Surface
}

func (b pathBuilder) VisitLine(l geometry.Line) error {
	b.s.MoveTo(l.From.X, l.From.Y)
	b.s.LineTo(l.To.X, l.To.Y)
	return nil
}

// VisitRectangle starts at the upper left corner and uses a negative height,
// so under the y flip the stroked box lands on the geometric corners.
func (b pathBuilder) VisitRectangle(rect geometry.Rectangle) error {
	ll, ur := rect.LowerLeft, rect.UpperRight
	b.s.DrawRectangle(ll.X, ur.Y, ur.X-ll.X, ll.Y-ur.Y)
	return nil
}

func (b pathBuilder) VisitCircle(c geometry.Circle) error {
	b.s.DrawCircle(c.Center.X, c.Center.Y, c.Radius)
	return nil
}
