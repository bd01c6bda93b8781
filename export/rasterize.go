package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/color"
	"math"

	"github.com/hazyhaar/diagrammer/svgdom"
)

// Rasterize converts a prepared copy into an artifact. prepared is modified
// (its size attributes are pinned to box) and must not be the live diagram.
// Every failure wraps one of the package's sentinel errors; nothing is
// retried.
func (p *Pipeline) Rasterize(ctx context.Context, prepared *svgdom.Document, box BoundingBox, format Format) (art *Artifact, err error) {
	log := p.cfg.Logger
	switch format {
	case FormatPNG, FormatJPG, FormatJPEG, FormatPDF:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	// Checked before any serialization so oversize input costs nothing.
	if invalidDimension(box.Width) || invalidDimension(box.Height) {
		log.Warn("export: invalid dimensions", "width", box.Width, "height", box.Height)
		return nil, ErrDimensionsInvalid
	}
	if box.Width > p.cfg.MaxDimension || box.Height > p.cfg.MaxDimension {
		log.Warn("export: dimensions exceed maximum", "width", box.Width, "height", box.Height)
		return nil, ErrDiagramTooLarge
	}

	sizeForExport(prepared, box)
	markup, err := serialize(prepared)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	uri, err := encodeDataURI(markup)
	if err != nil {
		log.Error("export: svg encoding failed", "error", err)
		return nil, err
	}

	drawW, drawH := int(math.Round(box.Width)), int(math.Round(box.Height))
	bm, err := p.decodeWithDeadline(ctx, uri, max(drawW, 1), max(drawH, 1))
	if err != nil {
		log.Error("export: image load failed", "error", err, "data_uri_len", len(uri))
		return nil, err
	}
	if bm == nil || bm.Image == nil || !bm.Complete || bm.NaturalWidth == 0 || bm.NaturalHeight == 0 {
		log.Error("export: image not fully loaded")
		return nil, ErrImageIncomplete
	}

	// Surface sizes truncate the way canvas width/height assignment does.
	pad := p.cfg.Padding
	surfW := int(box.Width + 2*float64(pad))
	surfH := int(box.Height + 2*float64(pad))
	surf, err := p.newSurface(surfW, surfH)
	if err != nil {
		log.Error("export: surface allocation failed", "width", surfW, "height", surfH, "error", err)
		return nil, err
	}

	defer func() {
		if v := recover(); v != nil {
			art, err = nil, fmt.Errorf("%w: %v", ErrExportFailed, v)
			log.Error("export: conversion panic", "panic", v)
		}
	}()

	surf.Fill(color.White)
	surf.DrawScaled(bm.Image, pad, pad, drawW, drawH)

	var buf bytes.Buffer
	rasterFormat := format
	if format == FormatPDF {
		rasterFormat = FormatPNG
	}
	if err := surf.Encode(&buf, rasterFormat, p.cfg.JPEGQuality); err != nil {
		log.Error("export: surface encoding failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrExportBlocked, err)
	}
	payload := buf.Bytes()
	if format == FormatPDF {
		if payload, err = wrapPDF(payload); err != nil {
			log.Error("export: pdf wrapping failed", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrExportBlocked, err)
		}
	}

	dataURI := emptyDataURI
	if len(payload) > 0 {
		dataURI = "data:" + format.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(payload)
	}
	if dataURI == emptyDataURI || len(dataURI) < minArtifactLen {
		log.Error("export: generated data URI is empty", "length", len(dataURI), "width", surfW, "height", surfH)
		return nil, ErrExportEmpty
	}

	art = &Artifact{
		ID:       p.cfg.NewID(),
		DataURI:  dataURI,
		MIMEType: format.MIMEType(),
		Filename: format.Filename(),
		Format:   format,
		Width:    surfW,
		Height:   surfH,
	}
	log.Info("export: artifact ready", "id", art.ID, "format", format, "width", surfW, "height", surfH, "bytes", len(payload))
	return art, nil
}

// newSurface allocates through the configured factory. Allocation panics
// (out of memory on huge surfaces) count as an unavailable surface.
func (p *Pipeline) newSurface(w, h int) (s Surface, err error) {
	defer func() {
		if v := recover(); v != nil {
			s, err = nil, fmt.Errorf("%w: %v", ErrCanvasUnavailable, v)
		}
	}()
	s, err = p.cfg.Surfaces(w, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanvasUnavailable, err)
	}
	if s == nil {
		return nil, ErrCanvasUnavailable
	}
	return s, nil
}
