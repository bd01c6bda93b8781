package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// NativeDecoder rasterizes SVG in-process. It needs no browser but does not
// draw text, so labels are missing from its output; use BrowserDecoder for
// full-fidelity exports when Chrome is available.
type NativeDecoder struct{}

// NewNativeDecoder returns the pure Go decoder.
func NewNativeDecoder() *NativeDecoder { return &NativeDecoder{} }

func (NativeDecoder) Decode(ctx context.Context, dataURI string, width, height int) (*Bitmap, error) {
	data, err := decodeDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("oksvg: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	icon.SetTarget(0, 0, float64(width), float64(height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Bitmap{
		Image:         img,
		Complete:      true,
		NaturalWidth:  int(math.Round(icon.ViewBox.W)),
		NaturalHeight: int(math.Round(icon.ViewBox.H)),
	}, nil
}
