package export

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserSource leases the shared browser. browser.Manager satisfies it;
// Chrome is not recycled until release is called.
type BrowserSource interface {
	Acquire() (b *rod.Browser, release func(), err error)
}

// BrowserDecoder decodes through headless Chrome, loading the data URI into
// an <img> and drawing it onto a canvas, which renders text and CSS exactly
// as the editor page shows them.
type BrowserDecoder struct {
	src BrowserSource
}

// NewBrowserDecoder creates a decoder backed by src.
func NewBrowserDecoder(src BrowserSource) *BrowserDecoder {
	return &BrowserDecoder{src: src}
}

// decodeJS resolves with the image load state and, when the image is usable,
// its pixels drawn at the requested size as a PNG data URI.
const decodeJS = `(src, w, h) => new Promise((resolve, reject) => {
	const img = new Image();
	img.onload = () => {
		const out = { complete: img.complete, naturalWidth: img.naturalWidth, naturalHeight: img.naturalHeight, png: "" };
		if (img.complete && img.naturalWidth > 0) {
			const c = document.createElement("canvas");
			c.width = w;
			c.height = h;
			const ctx = c.getContext("2d");
			if (ctx) {
				ctx.drawImage(img, 0, 0, w, h);
				out.png = c.toDataURL("image/png");
			}
		}
		resolve(out);
	};
	img.onerror = () => reject(new Error("image load error"));
	img.src = src;
})`

func (d *BrowserDecoder) Decode(ctx context.Context, dataURI string, width, height int) (*Bitmap, error) {
	b, release, err := d.src.Acquire()
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}
	defer release()
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	res, err := page.Context(ctx).Eval(decodeJS, dataURI, width, height)
	if err != nil {
		return nil, fmt.Errorf("browser: decode: %w", err)
	}
	bm := &Bitmap{
		Complete:      res.Value.Get("complete").Bool(),
		NaturalWidth:  res.Value.Get("naturalWidth").Int(),
		NaturalHeight: res.Value.Get("naturalHeight").Int(),
	}
	pngURI := res.Value.Get("png").Str()
	if pngURI == "" {
		return bm, nil
	}
	data, err := decodeDataURI(pngURI)
	if err != nil {
		return nil, fmt.Errorf("browser: canvas output: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("browser: canvas output: %w", err)
	}
	bm.Image = img
	return bm, nil
}
