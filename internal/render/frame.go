package render

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// FrameSink receives the surface after every render pass.
type FrameSink interface {
	WriteFrame(img image.Image) error
}

// PNGSink keeps the latest frame in a PNG file. The file is replaced
// atomically so readers never see a partial image.
type PNGSink struct {
	path string
}

func NewPNGSink(path string) *PNGSink {
	return &PNGSink{path: path}
}

func (s *PNGSink) WriteFrame(img image.Image) error {
	return WritePNG(s.path, img)
}

// WritePNG encodes img to path via a temporary file in the same directory.
func WritePNG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*.png")
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close frame file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
