// Package svgdom is the document model for rendered diagrams. It parses SVG
// markup with the x/net/html foreign-content parser so that the element and
// attribute name adjustments browsers apply (viewBox, foreignObject, xlink:href)
// survive a parse/serialize round trip.
//
// Usage:
//
//	doc, err := svgdom.Parse(markup)
//	vp := doc.FindByClass("svg-pan-zoom_viewport")
//	box, ok := svgdom.BBox(vp)
//	out, err := doc.Clone().String()
package svgdom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Namespace URIs written on serialization when the markup omits them.
const (
	NamespaceSVG   = "http://www.w3.org/2000/svg"
	NamespaceXLink = "http://www.w3.org/1999/xlink"
)

// ErrNoSVG is returned by Parse when the markup contains no <svg> element.
var ErrNoSVG = errors.New("svgdom: no <svg> element in markup")

// Document is a parsed vector graphic. The root is always an <svg> element
// detached from any enclosing markup.
type Document struct {
	root *html.Node
}

// Parse parses SVG markup. Leading XML declarations, doctypes and comments are
// tolerated; the first <svg> element found becomes the document root.
func Parse(markup string) (*Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("svgdom: parse: %w", err)
	}
	for _, n := range nodes {
		if svg := findFirst(n, isSVGElement); svg != nil {
			if svg.Parent != nil {
				svg.Parent.RemoveChild(svg)
			}
			return &Document{root: svg}, nil
		}
	}
	return nil, ErrNoSVG
}

// New wraps an existing <svg> node.
func New(root *html.Node) (*Document, error) {
	if !isSVGElement(root) {
		return nil, ErrNoSVG
	}
	return &Document{root: root}, nil
}

// Root returns the <svg> element.
func (d *Document) Root() *html.Node { return d.root }

// Clone returns a deep copy. Mutations on the copy never reach d.
func (d *Document) Clone() *Document {
	return &Document{root: cloneNode(d.root)}
}

// FindByClass returns the first element (document order) carrying class.
func (d *Document) FindByClass(class string) *html.Node {
	return findFirst(d.root, func(n *html.Node) bool { return HasClass(n, class) })
}

// FindElement returns the first element with the given local name.
func (d *Document) FindElement(name string) *html.Node {
	return findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	})
}

// String serializes the document. The SVG namespace declarations are added to
// the root when missing, the way an XML serializer would emit them, so the
// output is usable as a standalone image.
func (d *Document) String() (string, error) {
	root := d.root
	if _, ok := Attr(root, "xmlns"); !ok {
		root = shallowWithAttr(root, html.Attribute{Key: "xmlns", Val: NamespaceSVG})
	}
	if usesXLink(d.root) && !hasNSAttr(root, "xmlns", "xlink") {
		root = shallowWithAttr(root, html.Attribute{Namespace: "xmlns", Key: "xlink", Val: NamespaceXLink})
	}
	var b strings.Builder
	if err := html.Render(&b, root); err != nil {
		return "", fmt.Errorf("svgdom: render: %w", err)
	}
	return b.String(), nil
}

// shallowWithAttr renders n with one extra attribute without touching n itself.
// Children are shared; the returned node must only be used for rendering.
func shallowWithAttr(n *html.Node, a html.Attribute) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append(append([]html.Attribute(nil), n.Attr...), a),
	}
	c.FirstChild, c.LastChild = n.FirstChild, n.LastChild
	return c
}

// Attr returns the value of a non-namespaced attribute.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets (or replaces) a non-namespaced attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes a non-namespaced attribute. It reports whether the
// attribute was present.
func RemoveAttr(n *html.Node, key string) bool {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

// HasClass reports whether n is an element whose class list contains class.
func HasClass(n *html.Node, class string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	v, ok := Attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// NewElement creates a detached SVG element.
func NewElement(name string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:      html.ElementNode,
		Data:      name,
		DataAtom:  atom.Lookup([]byte(name)),
		Namespace: "svg",
		Attr:      attrs,
	}
}

// NewText creates a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// PrependChild inserts c as the first child of n.
func PrependChild(n, c *html.Node) {
	if n.FirstChild == nil {
		n.AppendChild(c)
		return
	}
	n.InsertBefore(c, n.FirstChild)
}

// TextContent concatenates the text of all descendant text nodes.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func isSVGElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == "svg"
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func cloneNode(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(cloneNode(ch))
	}
	return c
}

func hasNSAttr(n *html.Node, ns, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == ns && a.Key == key {
			return true
		}
	}
	return false
}

func usesXLink(n *html.Node) bool {
	return findFirst(n, func(n *html.Node) bool {
		for _, a := range n.Attr {
			if a.Namespace == "xlink" {
				return true
			}
		}
		return false
	}) != nil
}
