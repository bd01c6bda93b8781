package svgdom

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Box is an axis-aligned rectangle in user units.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Union returns the smallest box containing b and o.
func (b Box) Union(o Box) Box {
	var e extent
	e.add(b.X, b.Y)
	e.add(b.X+b.Width, b.Y+b.Height)
	e.add(o.X, o.Y)
	e.add(o.X+o.Width, o.Y+o.Height)
	return e.box()
}

// ParseViewBox parses a viewBox attribute value ("x y w h", comma or space
// separated).
func ParseViewBox(s string) (Box, error) {
	nums, err := parseNumberList(s)
	if err != nil {
		return Box{}, fmt.Errorf("svgdom: viewBox %q: %w", s, err)
	}
	if len(nums) != 4 {
		return Box{}, fmt.Errorf("svgdom: viewBox %q: want 4 numbers, got %d", s, len(nums))
	}
	return Box{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}, nil
}

// ViewBox returns the root's declared view window, if it parses.
func (d *Document) ViewBox() (Box, bool) {
	v, ok := Attr(d.root, "viewBox")
	if !ok {
		return Box{}, false
	}
	b, err := ParseViewBox(v)
	if err != nil {
		return Box{}, false
	}
	return b, true
}

// FormatNumber renders a float the way attribute values are usually written:
// shortest representation, no exponent for ordinary diagram magnitudes.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Matrix is a 2D affine transform:
//
//	x' = A*x + C*y + E
//	y' = B*x + D*y + F
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity is the neutral transform.
var Identity = Matrix{A: 1, D: 1}

// Mul returns m·n: n is applied first, then m.
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

// Apply transforms a point.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// String formats m as an SVG matrix() transform.
func (m Matrix) String() string {
	return fmt.Sprintf("matrix(%s,%s,%s,%s,%s,%s)",
		FormatNumber(m.A), FormatNumber(m.B), FormatNumber(m.C),
		FormatNumber(m.D), FormatNumber(m.E), FormatNumber(m.F))
}

var transformFunc = regexp.MustCompile(`([A-Za-z]+)\s*\(([^)]*)\)`)

// ParseTransform parses an SVG transform list into a single matrix.
func ParseTransform(s string) (Matrix, error) {
	m := Identity
	matches := transformFunc.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 && strings.TrimSpace(s) != "" {
		return Identity, fmt.Errorf("svgdom: transform %q: no functions", s)
	}
	for _, fm := range matches {
		args, err := parseNumberList(fm[2])
		if err != nil {
			return Identity, fmt.Errorf("svgdom: transform %q: %w", s, err)
		}
		t, err := transformOf(fm[1], args)
		if err != nil {
			return Identity, err
		}
		m = m.Mul(t)
	}
	return m, nil
}

func transformOf(name string, a []float64) (Matrix, error) {
	switch {
	case name == "matrix" && len(a) == 6:
		return Matrix{A: a[0], B: a[1], C: a[2], D: a[3], E: a[4], F: a[5]}, nil
	case name == "translate" && len(a) == 1:
		return Matrix{A: 1, D: 1, E: a[0]}, nil
	case name == "translate" && len(a) == 2:
		return Matrix{A: 1, D: 1, E: a[0], F: a[1]}, nil
	case name == "scale" && len(a) == 1:
		return Matrix{A: a[0], D: a[0]}, nil
	case name == "scale" && len(a) == 2:
		return Matrix{A: a[0], D: a[1]}, nil
	case name == "rotate" && (len(a) == 1 || len(a) == 3):
		rad := a[0] * math.Pi / 180
		sin, cos := math.Sincos(rad)
		r := Matrix{A: cos, B: sin, C: -sin, D: cos}
		if len(a) == 3 {
			to := Matrix{A: 1, D: 1, E: a[1], F: a[2]}
			back := Matrix{A: 1, D: 1, E: -a[1], F: -a[2]}
			return to.Mul(r).Mul(back), nil
		}
		return r, nil
	case name == "skewX" && len(a) == 1:
		return Matrix{A: 1, C: math.Tan(a[0] * math.Pi / 180), D: 1}, nil
	case name == "skewY" && len(a) == 1:
		return Matrix{A: 1, B: math.Tan(a[0] * math.Pi / 180), D: 1}, nil
	}
	return Identity, fmt.Errorf("svgdom: transform %s(%d args) unsupported", name, len(a))
}

// nonRendered lists elements whose content never contributes geometry.
var nonRendered = map[string]bool{
	"defs": true, "style": true, "script": true, "title": true, "desc": true,
	"metadata": true, "marker": true, "clipPath": true, "mask": true,
	"pattern": true, "linearGradient": true, "radialGradient": true,
	"symbol": true, "filter": true,
}

// BBox computes the tight geometric bounding box of n in n's own user space:
// descendant transforms are applied, n's own transform is not, and strokes
// are ignored. It reports false when n has no rendered geometry.
func BBox(n *html.Node) (Box, bool) {
	if n == nil || n.Type != html.ElementNode {
		return Box{}, false
	}
	var e extent
	if isContainer(n.Data) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			addNode(&e, c, Identity)
		}
	} else {
		addShape(&e, n, Identity)
	}
	if !e.ok {
		return Box{}, false
	}
	return e.box(), true
}

func isContainer(name string) bool {
	switch name {
	case "svg", "g", "a", "switch":
		return true
	}
	return false
}

func addNode(e *extent, n *html.Node, parent Matrix) {
	if n.Type != html.ElementNode || nonRendered[n.Data] {
		return
	}
	if v, ok := presentation(n, "display"); ok && strings.TrimSpace(v) == "none" {
		return
	}
	m := parent
	if t, ok := Attr(n, "transform"); ok {
		if tm, err := ParseTransform(t); err == nil {
			m = parent.Mul(tm)
		}
	}
	switch n.Data {
	case "svg":
		// A nested viewport contributes its declared rectangle when it has
		// one; otherwise its content, offset by x/y.
		x, y := length(n, "x"), length(n, "y")
		w, wok := lengthOK(n, "width")
		h, hok := lengthOK(n, "height")
		if wok && hok && w > 0 && h > 0 {
			addRect(e, m, x, y, w, h)
			return
		}
		inner := m.Mul(Matrix{A: 1, D: 1, E: x, F: y})
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			addNode(e, c, inner)
		}
	case "g", "a", "switch":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			addNode(e, c, m)
		}
	default:
		addShape(e, n, m)
	}
}

func addShape(e *extent, n *html.Node, m Matrix) {
	switch n.Data {
	case "rect", "image", "use", "foreignObject":
		w, h := length(n, "width"), length(n, "height")
		if n.Data == "use" && w == 0 && h == 0 {
			// The referenced content is not resolved; its origin still counts.
			e.addT(m, length(n, "x"), length(n, "y"))
			return
		}
		addRect(e, m, length(n, "x"), length(n, "y"), w, h)
	case "circle":
		r := length(n, "r")
		addEllipse(e, m, length(n, "cx"), length(n, "cy"), r, r)
	case "ellipse":
		addEllipse(e, m, length(n, "cx"), length(n, "cy"), length(n, "rx"), length(n, "ry"))
	case "line":
		e.addT(m, length(n, "x1"), length(n, "y1"))
		e.addT(m, length(n, "x2"), length(n, "y2"))
	case "polyline", "polygon":
		v, _ := Attr(n, "points")
		nums, err := parseNumberList(v)
		if err != nil {
			return
		}
		for i := 0; i+1 < len(nums); i += 2 {
			e.addT(m, nums[i], nums[i+1])
		}
	case "path":
		d, _ := Attr(n, "d")
		addPath(e, m, d)
	case "text":
		addText(e, n, m)
	}
}

func addRect(e *extent, m Matrix, x, y, w, h float64) {
	if w < 0 || h < 0 {
		return
	}
	e.addT(m, x, y)
	e.addT(m, x+w, y)
	e.addT(m, x, y+h)
	e.addT(m, x+w, y+h)
}

func addEllipse(e *extent, m Matrix, cx, cy, rx, ry float64) {
	if rx <= 0 || ry <= 0 {
		return
	}
	if m.B == 0 && m.C == 0 {
		addRect(e, m, cx-rx, cy-ry, 2*rx, 2*ry)
		return
	}
	const steps = 32
	for i := 0; i < steps; i++ {
		sin, cos := math.Sincos(2 * math.Pi * float64(i) / steps)
		e.addT(m, cx+rx*cos, cy+ry*sin)
	}
}

// addText estimates text extents from font size and character count; exact
// glyph metrics need a font engine, which the export path never has.
func addText(e *extent, n *html.Node, m Matrix) {
	type line struct {
		x, y float64
		text string
		node *html.Node
	}
	x, y := firstLength(n, "x"), firstLength(n, "y")
	var lines []line
	cur := line{x: x, y: y, node: n}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			cur.text += c.Data
		case c.Type == html.ElementNode && c.Data == "tspan":
			_, hasX := Attr(c, "x")
			_, hasY := Attr(c, "y")
			_, hasDY := Attr(c, "dy")
			if hasX || hasY || hasDY {
				if strings.TrimSpace(cur.text) != "" {
					lines = append(lines, cur)
				}
				nx, ny := cur.x, cur.y
				if hasX {
					nx = firstLength(c, "x")
				}
				if hasY {
					ny = firstLength(c, "y")
				}
				ny += firstLength(c, "dy")
				lines = append(lines, line{x: nx, y: ny, text: TextContent(c), node: c})
				cur = line{x: nx, y: ny, node: n}
				continue
			}
			cur.text += TextContent(c)
		}
	}
	if strings.TrimSpace(cur.text) != "" {
		lines = append(lines, cur)
	}
	for _, l := range lines {
		text := strings.TrimSpace(l.text)
		if text == "" {
			continue
		}
		size := fontSize(l.node)
		w := 0.6 * size * float64(utf8.RuneCountInString(text))
		left := l.x
		switch anchor(l.node) {
		case "middle":
			left -= w / 2
		case "end":
			left -= w
		}
		top := l.y - 0.8*size
		switch baseline(l.node) {
		case "central", "middle":
			top = l.y - size/2
		case "hanging", "text-before-edge":
			top = l.y
		}
		addRect(e, m, left, top, w, size)
	}
}

func fontSize(n *html.Node) float64 {
	if v, ok := inherited(n, "font-size"); ok {
		if f, ok := parseLength(v); ok && f > 0 {
			return f
		}
	}
	return 16
}

func anchor(n *html.Node) string {
	v, _ := inherited(n, "text-anchor")
	return strings.TrimSpace(v)
}

func baseline(n *html.Node) string {
	v, _ := inherited(n, "dominant-baseline")
	return strings.TrimSpace(v)
}

func length(n *html.Node, key string) float64 {
	f, _ := lengthOK(n, key)
	return f
}

func lengthOK(n *html.Node, key string) (float64, bool) {
	v, ok := Attr(n, key)
	if !ok {
		return 0, false
	}
	return parseLength(v)
}

// firstLength reads the first entry of a length list (text x/y may hold one
// coordinate per glyph).
func firstLength(n *html.Node, key string) float64 {
	v, ok := Attr(n, key)
	if !ok {
		return 0
	}
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	if len(fields) == 0 {
		return 0
	}
	f, _ := parseLength(fields[0])
	return f
}

// parseLength accepts unitless, px, pt and em lengths. Percentages depend on
// a layout viewport the model does not have and are rejected.
func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	scale := 1.0
	switch {
	case strings.HasSuffix(s, "%"):
		return 0, false
	case strings.HasSuffix(s, "px"):
		s = strings.TrimSuffix(s, "px")
	case strings.HasSuffix(s, "pt"):
		s, scale = strings.TrimSuffix(s, "pt"), 4.0/3.0
	case strings.HasSuffix(s, "em"):
		s, scale = strings.TrimSuffix(s, "em"), 16
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f * scale, true
}

// parseNumberList reads comma or whitespace separated numbers, as used by
// viewBox, points and transform arguments.
func parseNumberList(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return out, fmt.Errorf("malformed number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

type extent struct {
	minX, minY, maxX, maxY float64
	ok                     bool
}

func (e *extent) add(x, y float64) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return
	}
	if !e.ok {
		e.minX, e.maxX, e.minY, e.maxY = x, x, y, y
		e.ok = true
		return
	}
	e.minX = math.Min(e.minX, x)
	e.maxX = math.Max(e.maxX, x)
	e.minY = math.Min(e.minY, y)
	e.maxY = math.Max(e.maxY, y)
}

func (e *extent) addT(m Matrix, x, y float64) {
	e.add(m.Apply(x, y))
}

func (e *extent) box() Box {
	return Box{X: e.minX, Y: e.minY, Width: e.maxX - e.minX, Height: e.maxY - e.minY}
}
