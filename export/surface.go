package export

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// maxSurfaceArea is the largest raster surface that can be allocated, the
// same ceiling browsers put on a canvas.
const maxSurfaceArea = 268_435_456

// Surface is a raster drawing target.
type Surface interface {
	Size() (width, height int)
	// Fill paints the whole surface with c.
	Fill(c color.Color)
	// DrawScaled draws img into the rectangle (x, y, w, h), scaling as needed.
	DrawScaled(img image.Image, x, y, w, h int)
	// Encode writes the surface in the given format.
	Encode(w io.Writer, format Format, jpegQuality int) error
}

// SurfaceFactory allocates a surface or reports why it cannot.
type SurfaceFactory func(width, height int) (Surface, error)

type ggSurface struct {
	dc *gg.Context
}

// NewSurface allocates an in-memory RGBA surface.
func NewSurface(width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface %dx%d: empty", width, height)
	}
	if int64(width)*int64(height) > maxSurfaceArea {
		return nil, fmt.Errorf("surface %dx%d: exceeds %d pixels", width, height, maxSurfaceArea)
	}
	return &ggSurface{dc: gg.NewContext(width, height)}, nil
}

func (s *ggSurface) Size() (int, int) { return s.dc.Width(), s.dc.Height() }

func (s *ggSurface) Fill(c color.Color) {
	s.dc.SetColor(c)
	s.dc.Clear()
}

func (s *ggSurface) DrawScaled(img image.Image, x, y, w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Over, nil)
		img = scaled
	}
	s.dc.DrawImage(img, x, y)
}

func (s *ggSurface) Encode(w io.Writer, format Format, jpegQuality int) error {
	switch format.MIMEType() {
	case "image/jpeg":
		return jpeg.Encode(w, s.dc.Image(), &jpeg.Options{Quality: jpegQuality})
	default:
		return s.dc.EncodePNG(w)
	}
}
