// Package export turns the live rendered diagram into a raster artifact:
// a padded, white-backed PNG or JPEG (or a one-page PDF embedding the PNG)
// delivered as a data URI.
//
// The pipeline is a fixed sequence. ResolveBoundingBox picks the export
// rectangle, PrepareForExport produces a detached copy with styles inlined
// and pan/zoom state stripped, and Rasterize serializes, decodes under a
// deadline, composites onto a white surface and encodes. Every failure is
// one of the sentinel errors below; Message maps them to user-facing text.
//
// Usage:
//
//	p := export.New(export.Config{Decoder: export.NewNativeDecoder()})
//	art, err := p.Export(ctx, doc, export.FormatPNG)
//	if err != nil {
//	    notice := export.Message(err)
//	}
package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hazyhaar/diagrammer/idgen"
	"github.com/hazyhaar/diagrammer/svgdom"
)

// Defaults for Config.
const (
	DefaultPadding      = 20
	DefaultMaxDimension = 16384
	DefaultLoadTimeout  = 10 * time.Second
	DefaultJPEGQuality  = 92

	// minArtifactLen is the shortest data URI accepted as a real image.
	minArtifactLen = 100
	// emptyDataURI is what a canvas yields when it has nothing to encode.
	emptyDataURI = "data:,"
)

// Format is a requested output format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a format name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatPNG, FormatJPG, FormatJPEG, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// MIMEType returns the media type of the encoded artifact.
func (f Format) MIMEType() string {
	switch f {
	case FormatJPG, FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	}
	return "image/png"
}

// Filename is the fixed download name for the format.
func (f Format) Filename() string {
	return "diagram." + string(f)
}

// BoundingBox is the export rectangle in diagram user units.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) viewBox() string {
	return fmt.Sprintf("%s %s %s %s",
		svgdom.FormatNumber(b.X), svgdom.FormatNumber(b.Y),
		svgdom.FormatNumber(b.Width), svgdom.FormatNumber(b.Height))
}

// Artifact is a produced export.
type Artifact struct {
	ID       string `json:"id"`
	DataURI  string `json:"data_uri"`
	MIMEType string `json:"mime_type"`
	Filename string `json:"filename"`
	Format   Format `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Bytes decodes the artifact payload.
func (a *Artifact) Bytes() ([]byte, error) {
	_, payload, ok := strings.Cut(a.DataURI, ";base64,")
	if !ok {
		return nil, fmt.Errorf("export: artifact %s is not base64 encoded", a.ID)
	}
	return base64.StdEncoding.DecodeString(payload)
}

// StyleSheet is a host-page stylesheet considered for inlining. Sheets with
// an Href are loaded from elsewhere and are never inlined.
type StyleSheet struct {
	Href string
	CSS  string
}

// Config configures a Pipeline. Zero values take the defaults above.
type Config struct {
	Padding      int
	MaxDimension float64
	LoadTimeout  time.Duration
	JPEGQuality  int

	// Decoder turns the serialized diagram into a bitmap. Default: NativeDecoder.
	Decoder Decoder
	// Surfaces allocates the raster surface. Default: NewSurface.
	Surfaces SurfaceFactory
	// StyleSheets returns the host-page sheets to inline on each export.
	StyleSheets func() []StyleSheet

	// NewID names artifacts. Default: idgen.Prefixed("exp_", idgen.Default).
	NewID  idgen.Generator
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Padding <= 0 {
		c.Padding = DefaultPadding
	}
	if c.MaxDimension <= 0 {
		c.MaxDimension = DefaultMaxDimension
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = DefaultLoadTimeout
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = DefaultJPEGQuality
	}
	if c.Decoder == nil {
		c.Decoder = NewNativeDecoder()
	}
	if c.Surfaces == nil {
		c.Surfaces = NewSurface
	}
	if c.StyleSheets == nil {
		c.StyleSheets = func() []StyleSheet { return nil }
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("exp_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline runs exports. It holds no per-export state and is safe for
// concurrent use as long as its Decoder is.
type Pipeline struct {
	cfg Config
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{cfg: cfg}
}

// Padding is the blank margin added on every side of the raster.
func (p *Pipeline) Padding() int { return p.cfg.Padding }

// Export runs the whole pipeline on the live diagram. The live document is
// only read.
func (p *Pipeline) Export(ctx context.Context, live *svgdom.Document, format Format) (*Artifact, error) {
	if live == nil {
		return nil, ErrNoDiagram
	}
	box, err := ResolveBoundingBox(live)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Debug("export: bounding box", "x", box.X, "y", box.Y, "width", box.Width, "height", box.Height)

	// Oversized diagrams are refused before the copy is even made.
	if box.Width > p.cfg.MaxDimension || box.Height > p.cfg.MaxDimension {
		p.cfg.Logger.Warn("export: diagram exceeds maximum dimension",
			"width", box.Width, "height", box.Height, "max", p.cfg.MaxDimension)
		return nil, ErrDiagramTooLarge
	}

	prepared := PrepareForExport(live, p.cfg.StyleSheets(), p.cfg.Logger)
	return p.Rasterize(ctx, prepared, box, format)
}

// invalidDimension reports widths and heights no surface can be built for.
func invalidDimension(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v <= 0
}
