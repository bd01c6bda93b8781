package export

import (
	"errors"
	"fmt"
)

// Failure kinds. Each export attempt ends in exactly one of them or succeeds.
var (
	ErrNoDiagram         = errors.New("export: no diagram")
	ErrUnsupportedFormat = errors.New("export: unsupported format")
	ErrDimensionsInvalid = errors.New("export: invalid dimensions")
	ErrDiagramTooLarge   = fmt.Errorf("%w: exceeds maximum dimension", ErrDimensionsInvalid)
	ErrEncodingFailed    = errors.New("export: encoding failed")
	ErrImageLoadTimeout  = errors.New("export: image load timeout")
	ErrImageLoad         = errors.New("export: image load error")
	ErrImageIncomplete   = errors.New("export: image incomplete")
	ErrCanvasUnavailable = errors.New("export: canvas unavailable")
	ErrExportBlocked     = errors.New("export: export blocked")
	ErrExportEmpty       = errors.New("export: export empty")
	ErrExportFailed      = errors.New("export: export failed")
)

// kinds is ordered: the first matching entry wins, so ErrDiagramTooLarge is
// listed before the ErrDimensionsInvalid it wraps. Both report the
// dimensions_invalid kind; only the message tells them apart.
var kinds = []struct {
	err     error
	kind    string
	message string
}{
	{ErrNoDiagram, "no_diagram", "No diagram to download."},
	{ErrDiagramTooLarge, "dimensions_invalid", "Diagram size is too large to export."},
	{ErrDimensionsInvalid, "dimensions_invalid", "Invalid diagram dimensions. Please try regenerating the diagram."},
	{ErrEncodingFailed, "encoding_failed", "Failed to encode diagram. Please try a different diagram type."},
	{ErrImageLoadTimeout, "image_load_timeout", "Image loading timeout. Please try a simpler diagram."},
	{ErrImageLoad, "image_load_error", "Failed to load image. The SVG may contain unsupported features."},
	{ErrImageIncomplete, "image_incomplete", "Image not fully loaded. Please try again."},
	{ErrCanvasUnavailable, "canvas_unavailable", "Failed to create canvas context."},
	{ErrExportBlocked, "export_blocked", "Failed to export image. Browser security policy blocked the export."},
	{ErrExportEmpty, "export_empty", "Failed to generate image. Please try a smaller or simpler diagram."},
	{ErrUnsupportedFormat, "unsupported_format", "Unsupported export format."},
}

const genericMessage = "Failed to export image. Some diagram features may not be compatible."

// Message returns the user-facing notice for an export failure.
func Message(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.message
		}
	}
	return genericMessage
}

// IsExportError reports whether err is one of the failure kinds above.
func IsExportError(err error) bool {
	if errors.Is(err, ErrExportFailed) {
		return true
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return true
		}
	}
	return false
}

// Kind returns a stable machine-readable name for an export failure.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "export_failed"
}
