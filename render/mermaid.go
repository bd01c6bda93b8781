package render

import (
	"context"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/ysmood/gson"

	"github.com/hazyhaar/diagrammer/browser"
)

// DefaultMermaidScript is the Mermaid bundle loaded when no local copy is
// configured.
const DefaultMermaidScript = "https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.min.js"

// Evaluator runs a JS function expression in a page that has Mermaid loaded.
// *browser.Session implements it.
type Evaluator interface {
	Eval(ctx context.Context, js string, args ...any) (gson.JSON, error)
}

const mermaidInit = `() => {
	mermaid.initialize({
		startOnLoad: false,
		securityLevel: 'strict',
		flowchart: { htmlLabels: false, useMaxWidth: false },
		gantt: { displayMode: 'compact', todayMarker: 'off' },
	});
	return true;
}`

const mermaidReady = `() => typeof mermaid !== 'undefined'`

// mermaidRender never rejects: parse failures come back as {error}. Mermaid
// leaves a temporary container behind on failure, which is removed here.
const mermaidRender = `async (code) => {
	try {
		const { svg } = await mermaid.render('graphDiv', code);
		return { svg };
	} catch (e) {
		document.getElementById('dgraphDiv')?.remove();
		return { error: (e && e.message) || String(e) };
	}
}`

// MermaidPage builds the session document. script is either an http(s) URL
// or a local file whose content is inlined.
func MermaidPage(script string) (browser.SessionConfig, error) {
	if script == "" {
		script = DefaultMermaidScript
	}
	var tag string
	if strings.HasPrefix(script, "http://") || strings.HasPrefix(script, "https://") {
		tag = `<script src="` + html.EscapeString(script) + `"></script>`
	} else {
		body, err := os.ReadFile(script)
		if err != nil {
			return browser.SessionConfig{}, fmt.Errorf("render: read mermaid script: %w", err)
		}
		tag = "<script>" + strings.ReplaceAll(string(body), "</script", `<\/script`) + "</script>"
	}
	return browser.SessionConfig{
		HTML:  "<!DOCTYPE html><html><head><meta charset=\"utf-8\">" + tag + "</head><body></body></html>",
		Ready: mermaidReady,
		Setup: mermaidInit,
	}, nil
}

// Mermaid renders Mermaid source through a browser page.
type Mermaid struct {
	eval Evaluator
}

// NewMermaid creates a Mermaid renderer.
func NewMermaid(eval Evaluator) *Mermaid {
	return &Mermaid{eval: eval}
}

// Render returns the SVG markup Mermaid produced, or a *SyntaxError.
func (m *Mermaid) Render(ctx context.Context, source string) (string, error) {
	res, err := m.eval.Eval(ctx, mermaidRender, source)
	if err != nil {
		return "", fmt.Errorf("render: mermaid: %w", err)
	}
	if msg, ok := res.Get("error").Val().(string); ok {
		return "", &SyntaxError{Engine: EngineMermaid, Message: msg}
	}
	svg := res.Get("svg").Str()
	if svg == "" {
		return "", &SyntaxError{Engine: EngineMermaid, Message: "empty diagram"}
	}
	return svg, nil
}
