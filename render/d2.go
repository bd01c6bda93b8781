package render

import (
	"context"
	"fmt"
	"sync"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	"oss.terrastruct.com/d2/lib/textmeasure"
	"oss.terrastruct.com/util-go/go2"
)

// D2 renders D2 source in-process with the dagre layout.
type D2 struct {
	themeID int64
	pad     int64

	// The ruler caches font faces and is not safe for concurrent use.
	mu    sync.Mutex
	ruler *textmeasure.Ruler
}

// NewD2 creates a D2 renderer with the neutral theme.
func NewD2() (*D2, error) {
	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return nil, fmt.Errorf("render: d2 ruler: %w", err)
	}
	return &D2{
		themeID: d2themescatalog.NeutralDefault.ID,
		pad:     5,
		ruler:   ruler,
	}, nil
}

func dagre(string) (d2graph.LayoutGraph, error) {
	return d2dagrelayout.DefaultLayout, nil
}

// Render compiles, lays out and renders source. Compile failures are
// reported as *SyntaxError.
func (d *D2) Render(ctx context.Context, source string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	opts := &d2svg.RenderOpts{
		Pad:     go2.Pointer(d.pad),
		ThemeID: go2.Pointer(d.themeID),
	}
	diagram, _, err := d2lib.Compile(ctx, source, &d2lib.CompileOptions{
		LayoutResolver: dagre,
		Ruler:          d.ruler,
	}, opts)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &SyntaxError{Engine: EngineD2, Message: err.Error()}
	}
	out, err := d2svg.Render(diagram, opts)
	if err != nil {
		return "", fmt.Errorf("render: d2 svg: %w", err)
	}
	return string(out), nil
}
