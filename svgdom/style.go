package svgdom

import (
	"strings"

	"golang.org/x/net/html"
)

// StyleProperty returns an inline style declaration value from n's style
// attribute.
func StyleProperty(n *html.Node, prop string) (string, bool) {
	v, ok := Attr(n, "style")
	if !ok {
		return "", false
	}
	for _, d := range parseDeclarations(v) {
		if d.prop == prop {
			return d.val, true
		}
	}
	return "", false
}

// SetStyleProperty sets one inline style declaration. An empty value removes
// the declaration, and the style attribute itself once it is empty.
func SetStyleProperty(n *html.Node, prop, val string) {
	cur, _ := Attr(n, "style")
	decls := parseDeclarations(cur)
	out := decls[:0]
	found := false
	for _, d := range decls {
		if d.prop == prop {
			found = true
			if val == "" {
				continue
			}
			d.val = val
		}
		out = append(out, d)
	}
	if !found && val != "" {
		out = append(out, declaration{prop: prop, val: val})
	}
	if len(out) == 0 {
		RemoveAttr(n, "style")
		return
	}
	parts := make([]string, len(out))
	for i, d := range out {
		parts[i] = d.prop + ": " + d.val
	}
	SetAttr(n, "style", strings.Join(parts, "; ")+";")
}

type declaration struct {
	prop, val string
}

func parseDeclarations(s string) []declaration {
	var out []declaration
	for _, part := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(val)
		if prop == "" {
			continue
		}
		out = append(out, declaration{prop: prop, val: val})
	}
	return out
}

// presentation returns a presentation attribute or the equivalent inline
// style property, style winning as in CSS.
func presentation(n *html.Node, name string) (string, bool) {
	if v, ok := StyleProperty(n, name); ok {
		return v, true
	}
	return Attr(n, name)
}

// inherited walks n and its ancestors for an inheritable presentation value.
func inherited(n *html.Node, name string) (string, bool) {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if v, ok := presentation(p, name); ok && v != "inherit" {
			return v, true
		}
	}
	return "", false
}
