// Package render turns diagram source text into SVG markup. Renderers are
// black boxes: source in, markup or a *SyntaxError out.
//
// Two engines are provided: Mermaid, evaluated in headless Chrome, and D2,
// compiled in-process. Mux picks the engine from the source's first
// keyword.
package render

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
)

// Engine names.
const (
	EngineMermaid = "mermaid"
	EngineD2      = "d2"
)

// ErrNoEngine is returned by Mux when the selected engine is not configured.
var ErrNoEngine = errors.New("render: engine not available")

// Renderer renders diagram source to SVG markup.
type Renderer interface {
	Render(ctx context.Context, source string) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, source string) (string, error)

func (f RendererFunc) Render(ctx context.Context, source string) (string, error) {
	return f(ctx, source)
}

// SyntaxError is a diagram the engine refused. Message is shown to the user
// in place of the diagram.
type SyntaxError struct {
	Engine  string
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("render: %s syntax error: %s", e.Engine, e.Message)
}

// IsSyntaxError reports whether err carries a *SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// Mux dispatches to a renderer by engine.
type Mux struct {
	engines  map[string]Renderer
	fallback string
}

// NewMux creates a Mux. fallback is used when the source does not identify
// its engine.
func NewMux(fallback string, engines map[string]Renderer) *Mux {
	return &Mux{engines: engines, fallback: fallback}
}

// Engines lists the configured engine names.
func (m *Mux) Engines() []string {
	out := make([]string, 0, len(m.engines))
	for _, name := range []string{EngineMermaid, EngineD2} {
		if m.engines[name] != nil {
			out = append(out, name)
		}
	}
	return out
}

// Engine returns the engine that would render source.
func (m *Mux) Engine(source string) string {
	if Detect(source) == EngineMermaid {
		return EngineMermaid
	}
	if m.fallback != "" {
		return m.fallback
	}
	return EngineD2
}

// Render renders with the engine chosen by Engine.
func (m *Mux) Render(ctx context.Context, source string) (string, error) {
	name := m.Engine(source)
	r := m.engines[name]
	if r == nil {
		return "", fmt.Errorf("%w: %s", ErrNoEngine, name)
	}
	return r.Render(ctx, source)
}

// mermaidKeywords open every Mermaid diagram type.
var mermaidKeywords = []string{
	"graph", "flowchart", "sequenceDiagram", "classDiagram", "stateDiagram",
	"stateDiagram-v2", "erDiagram", "journey", "gantt", "pie", "quadrantChart",
	"requirementDiagram", "gitGraph", "C4Context", "C4Container", "C4Component",
	"C4Dynamic", "C4Deployment", "mindmap", "timeline", "sankey", "sankey-beta",
	"xychart", "xychart-beta", "block", "block-beta", "packet", "packet-beta",
	"kanban", "architecture", "architecture-beta", "radar-beta", "treemap",
	"treemap-beta", "zenuml", "info",
}

// Detect identifies the engine from the source's first significant line.
// Mermaid front matter and %% directives mark Mermaid; anything else is
// reported as "" so the caller's default applies.
func Detect(source string) string {
	sc := bufio.NewScanner(strings.NewReader(source))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "---", strings.HasPrefix(line, "%%"):
			return EngineMermaid
		}
		word := line
		if i := strings.IndexAny(line, " \t:;{"); i >= 0 {
			word = line[:i]
		}
		for _, k := range mermaidKeywords {
			if word == k {
				return EngineMermaid
			}
		}
		return ""
	}
	return ""
}
