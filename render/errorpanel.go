package render

import (
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ErrorTitle heads the panel shown in place of a diagram that failed to
// render.
const ErrorTitle = "Diagram Syntax Error:"

var panelPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("div", "pre")
	p.AllowAttrs("class").OnElements("div", "pre")
	p.AllowStyles(
		"color", "background-color", "border", "padding", "border-radius",
		"text-align", "overflow", "font-weight", "margin-bottom", "margin",
		"white-space", "font-family", "font-size",
	).Globally()
	return p
}()

// ErrorPanel returns the HTML fragment displayed instead of a diagram. The
// message is shown verbatim as text. Errors that are not syntax errors are
// displayed by their message too.
func ErrorPanel(err error) string {
	msg := err.Error()
	var se *SyntaxError
	if errors.As(err, &se) {
		msg = se.Message
	}
	return ErrorPanelMessage(msg)
}

// ErrorPanelMessage renders the panel for a raw message.
func ErrorPanelMessage(msg string) string {
	var b strings.Builder
	b.WriteString(`<div class="diagram-error" style="color: #721c24; background-color: #f8d7da; border: 1px solid #f5c6cb; padding: 15px; border-radius: 4px; text-align: left; overflow: auto;">`)
	b.WriteString(`<div style="font-weight: bold; margin-bottom: 10px;">`)
	b.WriteString(ErrorTitle)
	b.WriteString(`</div><pre style="margin: 0; white-space: pre-wrap; font-family: monospace; font-size: 14px;">`)
	b.WriteString(html.EscapeString(msg))
	b.WriteString(`</pre></div>`)
	return panelPolicy.Sanitize(b.String())
}
