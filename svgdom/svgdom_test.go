package svgdom

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const sample = `<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 100" width="100%">
  <g class="svg-pan-zoom_viewport" transform="matrix(2,0,0,2,100,100)" style="transform: matrix(2,0,0,2,100,100);">
    <rect x="0" y="0" width="10" height="10"/>
    <g transform="translate(5,5)"><rect width="10" height="10"/></g>
    <foreignObject x="0" y="0" width="1" height="1"></foreignObject>
  </g>
</svg>`

func TestParsePreservesSVGNames(t *testing.T) {
	doc, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	out, err := doc.String()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`viewBox="0 0 200 100"`, "<foreignObject", `xmlns="http://www.w3.org/2000/svg"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<?xml") {
		t.Errorf("xml declaration should not survive: %s", out)
	}
}

func TestParseNoSVG(t *testing.T) {
	_, err := Parse("<div>nothing here</div>")
	if !errors.Is(err, ErrNoSVG) {
		t.Fatalf("err = %v, want ErrNoSVG", err)
	}
}

func TestStringAddsNamespaces(t *testing.T) {
	doc, err := Parse(`<svg><use xlink:href="#a"/></svg>`)
	if err != nil {
		t.Fatal(err)
	}
	out, err := doc.String()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `xmlns="http://www.w3.org/2000/svg"`) {
		t.Errorf("missing svg namespace: %s", out)
	}
	if !strings.Contains(out, `xmlns:xlink="http://www.w3.org/1999/xlink"`) {
		t.Errorf("missing xlink namespace: %s", out)
	}
	if _, ok := Attr(doc.Root(), "xmlns"); ok {
		t.Error("String must not mutate the document")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	doc, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	before, _ := doc.String()

	c := doc.Clone()
	vp := c.FindByClass("svg-pan-zoom_viewport")
	if vp == nil {
		t.Fatal("viewport not found in clone")
	}
	RemoveAttr(vp, "transform")
	RemoveAttr(vp, "style")
	SetAttr(c.Root(), "width", "5")

	after, _ := doc.String()
	if before != after {
		t.Fatalf("clone mutation leaked into original:\nbefore %s\nafter  %s", before, after)
	}
}

func TestSetStyleProperty(t *testing.T) {
	n := NewElement("g")
	SetStyleProperty(n, "fill", "red")
	SetStyleProperty(n, "stroke", "blue")
	if v, _ := Attr(n, "style"); v != "fill: red; stroke: blue;" {
		t.Fatalf("style = %q", v)
	}
	SetStyleProperty(n, "fill", "green")
	if v, ok := StyleProperty(n, "fill"); !ok || v != "green" {
		t.Fatalf("fill = %q, %v", v, ok)
	}
	SetStyleProperty(n, "fill", "")
	SetStyleProperty(n, "stroke", "")
	if _, ok := Attr(n, "style"); ok {
		t.Fatal("empty style attribute should be removed")
	}
}

func TestParseTransform(t *testing.T) {
	tests := []struct {
		in   string
		x, y float64
	}{
		{"", 1, 2},
		{"translate(10)", 11, 2},
		{"translate(10, 20)", 11, 22},
		{"scale(2)", 2, 4},
		{"scale(2 3)", 2, 6},
		{"matrix(1 0 0 1 5 5)", 6, 7},
		{"rotate(90)", -2, 1},
		{"rotate(180 1 2)", 1, 2},
		{"translate(10,0) scale(2)", 12, 4},
	}
	for _, tt := range tests {
		m, err := ParseTransform(tt.in)
		if err != nil {
			t.Errorf("ParseTransform(%q): %v", tt.in, err)
			continue
		}
		x, y := m.Apply(1, 2)
		if !near(x, tt.x) || !near(y, tt.y) {
			t.Errorf("ParseTransform(%q).Apply(1,2) = (%g,%g), want (%g,%g)", tt.in, x, y, tt.x, tt.y)
		}
	}
	if _, err := ParseTransform("wobble(3)"); err == nil {
		t.Error("unknown transform function should fail")
	}
}

func TestViewBox(t *testing.T) {
	doc, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	vb, ok := doc.ViewBox()
	if !ok || vb != (Box{0, 0, 200, 100}) {
		t.Fatalf("ViewBox = %+v, %v", vb, ok)
	}
	if _, err := ParseViewBox("0 0 10"); err == nil {
		t.Error("three numbers should not parse")
	}
	if b, err := ParseViewBox("-5,-5,10,10"); err != nil || b != (Box{-5, -5, 10, 10}) {
		t.Errorf("comma separated viewBox = %+v, %v", b, err)
	}
}

func TestBBoxIgnoresOwnTransform(t *testing.T) {
	doc, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	vp := doc.FindByClass("svg-pan-zoom_viewport")
	got, ok := BBox(vp)
	if !ok {
		t.Fatal("no bbox")
	}
	assertBox(t, got, Box{0, 0, 15, 15})

	// Seen from the root, the viewport transform applies.
	got, ok = BBox(doc.Root())
	if !ok {
		t.Fatal("no root bbox")
	}
	assertBox(t, got, Box{100, 100, 30, 30})
}

func TestBBoxShapes(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   Box
	}{
		{"circle", `<circle cx="10" cy="10" r="5"/>`, Box{5, 5, 10, 10}},
		{"ellipse", `<ellipse cx="0" cy="0" rx="4" ry="2"/>`, Box{-4, -2, 8, 4}},
		{"line", `<line x1="3" y1="9" x2="-1" y2="4"/>`, Box{-1, 4, 4, 5}},
		{"polygon", `<polygon points="0,0 10,0 5,8"/>`, Box{0, 0, 10, 8}},
		{"path lines", `<path d="M10 10 h5 v5 H0 z"/>`, Box{0, 10, 15, 5}},
		{"path cubic", `<path d="M0 0 C0 0 10 0 10 0"/>`, Box{0, 0, 10, 0}},
		{"text", `<text x="10" y="20" font-size="10">abcd</text>`, Box{10, 12, 24, 10}},
		{"text middle", `<text x="50" y="20" font-size="10" text-anchor="middle">ab</text>`, Box{44, 12, 12, 10}},
		{"hidden", `<rect width="5" height="5"/><rect style="display: none" width="50" height="50"/>`, Box{0, 0, 5, 5}},
		{"defs skipped", `<defs><rect width="50" height="50"/></defs><rect x="1" y="1" width="2" height="2"/>`, Box{1, 1, 2, 2}},
		{"nested svg", `<svg x="5" y="5" width="10" height="20"><rect width="100" height="100"/></svg>`, Box{5, 5, 10, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse("<svg>" + tt.markup + "</svg>")
			if err != nil {
				t.Fatal(err)
			}
			got, ok := BBox(doc.Root())
			if !ok {
				t.Fatal("no bbox")
			}
			assertBox(t, got, tt.want)
		})
	}
}

func TestBBoxEmpty(t *testing.T) {
	doc, err := Parse(`<svg><defs><rect width="5" height="5"/></defs></svg>`)
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := BBox(doc.Root()); ok {
		t.Fatalf("expected no geometry, got %+v", b)
	}
}

func TestPathBounds(t *testing.T) {
	tests := []struct {
		name    string
		d       string
		want    Box
		wantErr bool
	}{
		{"relative implicit lines", "m1,1 2,0 0,2 l-1-1", Box{1, 1, 2, 2}, false},
		{"arc above chord", "M0 0 A5 5 0 0 1 10 0", Box{0, -5, 10, 5}, false},
		{"arc below chord", "M0 0 A5 5 0 0 0 10 0", Box{0, 0, 10, 5}, false},
		// The apex of the first cubic lies at y=75, well inside its control
		// polygon; the smooth segment reflects (60,100) to (140,-100).
		{"cubic apex", "M0 0 C0 100 60 100 100 0 S 200 -50 150 -10", Box{0, -58.52, 169, 133.52}, false},
		{"quadratic apex", "M0 0 Q50 100 100 0", Box{0, 0, 100, 50}, false},
		{"exponent numbers", "M1e1 0 L2e1-1e1", Box{10, -10, 10, 10}, false},
		{"malformed keeps prefix", "M0 0 L5 5 L oops", Box{0, 0, 5, 5}, true},
	}
	approx := cmpopts.EquateApprox(0, 0.1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := PathBounds(tt.d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !ok {
				t.Fatal("no geometry")
			}
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("bounds mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, ok, _ := PathBounds(""); ok {
		t.Fatal("empty path reported geometry")
	}
}

func TestBBoxPathUnderTransform(t *testing.T) {
	doc, err := Parse(`<svg><path transform="translate(10,20)" d="M0 0 C0 100 60 100 100 0"/></svg>`)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := BBox(doc.Root())
	if !ok {
		t.Fatal("no bbox")
	}
	want := Box{10, 20, 100, 75}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 0.05)); diff != "" {
		t.Errorf("bbox mismatch (-want +got):\n%s", diff)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func assertBox(t *testing.T, got, want Box) {
	t.Helper()
	if !near(got.X, want.X) || !near(got.Y, want.Y) || !near(got.Width, want.Width) || !near(got.Height, want.Height) {
		t.Fatalf("box = %+v, want %+v", got, want)
	}
}
