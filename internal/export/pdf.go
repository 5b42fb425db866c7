package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/mattfrayser/scenesync/internal/geometry"
	"github.com/mattfrayser/scenesync/internal/scene"
)

const (
	pageMargin = 15.0 // mm
	// DefaultLineWidth in mm, about one device pixel of an 800px surface
	DefaultLineWidth = 0.25
)

// Options: PDF page settings
type Options struct {
	Title     string
	Stroke    colorful.Color
	LineWidth float64
}

// Primitives: keyed objects in insertion order followed by the draw log
func Primitives(cache *scene.Cache) []geometry.Primitive {
	objects := cache.Objects()
	prims := make([]geometry.Primitive, 0, len(objects)+cache.LogLen())
	for _, obj := range objects {
		prims = append(prims, obj.Shape)
	}
	return append(prims, cache.Log()...)
}

// WritePDF draws prims on one A4 page. The normalized scene square fills the
// page width inside the margins, y up as on screen.
func WritePDF(w io.Writer, prims []geometry.Primitive, opts Options) error {
	pdf, err := build(prims, opts)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

// WritePDFFile is WritePDF to a file.
func WritePDFFile(path string, prims []geometry.Primitive, opts Options) error {
	pdf, err := build(prims, opts)
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(path)
}

func build(prims []geometry.Primitive, opts Options) (*gofpdf.Fpdf, error) {
	if opts.LineWidth <= 0 {
		opts.LineWidth = DefaultLineWidth
	}

	p := gofpdf.New("P", "mm", "A4", "")
	if opts.Title != "" {
		p.SetTitle(opts.Title, true)
	}
	p.AddPage()

	r, g, b := opts.Stroke.RGB255()
	p.SetDrawColor(int(r), int(g), int(b))
	p.SetLineWidth(opts.LineWidth)

	pageWidth, _ := p.GetPageSize()
	page := pageTransform{origin: pageMargin, side: pageWidth - 2*pageMargin}
	drawer := pdfDrawer{pdf: p, page: page}

	for i, prim := range prims {
		if err := geometry.Visit(prim, drawer); err != nil {
			return nil, fmt.Errorf("primitive %d: %w", i, err)
		}
	}
	if err := p.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}
	return p, nil
}

// pageTransform maps normalized coordinates onto a square on the page.
type pageTransform struct {
	origin float64
	side   float64
}

func (t pageTransform) point(pt geometry.Point) (float64, float64) {
	return t.origin + t.side/2*(pt.X+1), t.origin + t.side/2*(1-pt.Y)
}

func (t pageTransform) length(l float64) float64 {
	return t.side / 2 * l
}

type pdfDrawer struct {
	pdf  *gofpdf.Fpdf
	page pageTransform
}

func (d pdfDrawer) VisitLine(l geometry.Line) error {
	x1, y1 := d.page.point(l.From)
	x2, y2 := d.page.point(l.To)
	d.pdf.Line(x1, y1, x2, y2)
	return nil
}

func (d pdfDrawer) VisitRectangle(r geometry.Rectangle) error {
	// upper left on the page is (lowerLeft.x, upperRight.y) in the scene
	x, y := d.page.point(geometry.Point{X: r.LowerLeft.X, Y: r.UpperRight.Y})
	d.pdf.Rect(x, y, d.page.length(r.UpperRight.X-r.LowerLeft.X), d.page.length(r.UpperRight.Y-r.LowerLeft.Y), "D")
	return nil
}

func (d pdfDrawer) VisitCircle(c geometry.Circle) error {
	x, y := d.page.point(c.Center)
	d.pdf.Circle(x, y, d.page.length(c.Radius), "D")
	return nil
}
