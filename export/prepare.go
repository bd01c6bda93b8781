package export

import (
	"log/slog"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"

	"github.com/hazyhaar/diagrammer/svgdom"
)

// PrepareForExport returns a detached copy of live ready for serialization:
// same-origin style rules inlined as a leading <style> element and the
// pan/zoom viewport stripped of its transform and inline style. live is
// never modified.
func PrepareForExport(live *svgdom.Document, sheets []StyleSheet, logger *slog.Logger) *svgdom.Document {
	if logger == nil {
		logger = slog.Default()
	}
	doc := live.Clone()

	style := svgdom.NewElement("style")
	if css := CollectStyles(sheets, logger); css != "" {
		style.AppendChild(svgdom.NewText(css))
	}
	svgdom.PrependChild(doc.Root(), style)

	if vp := doc.FindByClass(ViewportClass); vp != nil {
		svgdom.RemoveAttr(vp, "transform")
		svgdom.RemoveAttr(vp, "style")
	}
	return doc
}

// CollectStyles concatenates the rules of every inline sheet, one per line.
// Rules referencing external resources through url(...) are dropped; data:
// URIs and #fragment references are kept. A sheet that does not parse is
// skipped with a warning.
func CollectStyles(sheets []StyleSheet, logger *slog.Logger) string {
	var rules []string
	for _, sheet := range sheets {
		if sheet.Href != "" {
			continue
		}
		ss, err := parser.Parse(sheet.CSS)
		if err != nil {
			logger.Warn("export: cannot read stylesheet", "error", err)
			continue
		}
		for _, r := range ss.Rules {
			text := cssText(r)
			if referencesExternalURL(text) {
				continue
			}
			rules = append(rules, text)
		}
	}
	return strings.Join(rules, "\n")
}

// cssText renders a rule on a single line.
func cssText(r *css.Rule) string {
	var b strings.Builder
	if r.Kind == css.QualifiedRule {
		b.WriteString(strings.Join(r.Selectors, ", "))
	} else {
		b.WriteString(r.Name)
		if r.Prelude != "" {
			b.WriteString(" " + r.Prelude)
		}
	}
	if len(r.Declarations) == 0 && len(r.Rules) == 0 {
		b.WriteString(";")
		return b.String()
	}
	b.WriteString(" {")
	for _, d := range r.Declarations {
		b.WriteString(" " + d.String())
	}
	for _, sub := range r.Rules {
		b.WriteString(" " + cssText(sub))
	}
	b.WriteString(" }")
	return b.String()
}

// referencesExternalURL reports whether css contains a url( whose target is
// neither a data: URI nor a #fragment. Whitespace is allowed between "url"
// and "(" but not inside the parenthesis before the target.
func referencesExternalURL(css string) bool {
	lower := strings.ToLower(css)
	for i := 0; ; {
		j := strings.Index(lower[i:], "url")
		if j < 0 {
			return false
		}
		k := i + j + len("url")
		for k < len(lower) && isCSSSpace(lower[k]) {
			k++
		}
		i += j + len("url")
		if k >= len(lower) || lower[k] != '(' {
			continue
		}
		target := lower[k+1:]
		if len(target) > 0 && (target[0] == '"' || target[0] == '\'') {
			target = target[1:]
		}
		if !strings.HasPrefix(target, "data:") && !strings.HasPrefix(target, "#") {
			return true
		}
	}
}

func isCSSSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

// sizeForExport pins the copy's size to the export box so the serialized
// markup no longer depends on the surrounding layout.
func sizeForExport(doc *svgdom.Document, box BoundingBox) {
	root := doc.Root()
	for _, prop := range []string{"width", "height", "max-width"} {
		svgdom.SetStyleProperty(root, prop, "")
	}
	svgdom.SetAttr(root, "width", svgdom.FormatNumber(box.Width))
	svgdom.SetAttr(root, "height", svgdom.FormatNumber(box.Height))
	svgdom.SetAttr(root, "viewBox", box.viewBox())
}

// serialize renders the prepared copy and strips NUL characters.
func serialize(doc *svgdom.Document) (string, error) {
	out, err := doc.String()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(out, "\x00", ""), nil
}
