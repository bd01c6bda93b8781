package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"time"
	"unicode/utf8"
)

// svgDataURIPrefix heads every encoded diagram handed to a Decoder.
const svgDataURIPrefix = "data:image/svg+xml;base64,"

// Bitmap is a decoded image together with the load state a decoder reports.
// A decoder may return successfully with an unusable bitmap; Rasterize
// checks Complete and the natural size before drawing.
type Bitmap struct {
	Image         image.Image
	Complete      bool
	NaturalWidth  int
	NaturalHeight int
}

// Decoder turns an SVG data URI into a bitmap of roughly width×height
// pixels. Decoders should honour ctx: it is cancelled when the load
// deadline passes.
type Decoder interface {
	Decode(ctx context.Context, dataURI string, width, height int) (*Bitmap, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, dataURI string, width, height int) (*Bitmap, error)

func (f DecoderFunc) Decode(ctx context.Context, dataURI string, width, height int) (*Bitmap, error) {
	return f(ctx, dataURI, width, height)
}

// encodeDataURI encodes serialized markup as a base64 SVG data URI. Markup
// that is not valid UTF-8 cannot be encoded.
func encodeDataURI(markup string) (string, error) {
	if !utf8.ValidString(markup) {
		return "", ErrEncodingFailed
	}
	return svgDataURIPrefix + base64.StdEncoding.EncodeToString([]byte(markup)), nil
}

// decodeDataURI returns the payload of a base64 data URI.
func decodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URI is not base64 encoded")
	}
	return base64.StdEncoding.DecodeString(payload)
}

type decodeResult struct {
	bm  *Bitmap
	err error
}

// decodeWithDeadline races the decoder against the load timeout. Exactly one
// outcome is reported. The decoder runs on its own goroutine and delivers
// into a buffered channel, so when the timer wins the late result is
// dropped without blocking or any further effect.
func (p *Pipeline) decodeWithDeadline(ctx context.Context, uri string, width, height int) (*Bitmap, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan decodeResult, 1)
	go func() {
		var r decodeResult
		defer func() {
			if v := recover(); v != nil {
				r = decodeResult{err: fmt.Errorf("decoder panic: %v", v)}
			}
			done <- r
		}()
		r.bm, r.err = p.cfg.Decoder.Decode(dctx, uri, width, height)
	}()

	timer := time.NewTimer(p.cfg.LoadTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrImageLoad, r.err)
		}
		return r.bm, nil
	case <-timer.C:
		return nil, ErrImageLoadTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, ctx.Err())
	}
}
