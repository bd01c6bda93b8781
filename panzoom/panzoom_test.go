package panzoom

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/diagrammer/svgdom"
)

const diagram = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 100" style="max-width: 200px;">` +
	`<style>rect{fill:red}</style><defs><marker id="m"/></defs>` +
	`<rect x="0" y="0" width="200" height="100"/><text x="10" y="20">A</text></svg>`

func attach(t *testing.T, markup string, size Size, opts Options) (*svgdom.Document, *Controller) {
	t.Helper()
	doc, err := svgdom.Parse(markup)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Attach(doc, size, opts)
	if err != nil {
		t.Fatal(err)
	}
	return doc, c
}

func TestAttachWrapsContent(t *testing.T) {
	doc, _ := attach(t, diagram, Size{400, 400}, DefaultOptions())
	root := doc.Root()

	var names []string
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		names = append(names, c.Data)
	}
	if diff := cmp.Diff([]string{"style", "defs", "g"}, names); diff != "" {
		t.Fatalf("root children (-want +got):\n%s", diff)
	}
	vp := doc.FindByClass(ViewportClass)
	if vp == nil || vp.FirstChild == nil || vp.FirstChild.Data != "rect" {
		t.Fatal("content not moved into viewport")
	}
	if _, ok := svgdom.Attr(root, "viewBox"); ok {
		t.Error("viewBox kept on root")
	}
	if w, _ := svgdom.Attr(root, "width"); w != "400" {
		t.Errorf("width = %q", w)
	}
	if _, ok := svgdom.StyleProperty(root, "max-width"); ok {
		t.Error("max-width kept")
	}
	if tr, _ := svgdom.Attr(vp, "transform"); tr != "matrix(2,0,0,2,0,100)" {
		t.Errorf("transform = %q", tr)
	}
	if st, _ := svgdom.StyleProperty(vp, "transform"); st != "matrix(2,0,0,2,0,100)" {
		t.Errorf("style transform = %q", st)
	}
}

func TestViewportBoxIgnoresTransform(t *testing.T) {
	doc, c := attach(t, diagram, Size{400, 400}, DefaultOptions())
	if err := c.ZoomBy(3); err != nil {
		t.Fatal(err)
	}
	box, ok := svgdom.BBox(doc.FindByClass(ViewportClass))
	if !ok {
		t.Fatal("no box")
	}
	if diff := cmp.Diff(svgdom.Box{X: 0, Y: 0, Width: 200, Height: 100}, box); diff != "" {
		t.Fatalf("box (-want +got):\n%s", diff)
	}
}

func TestZoomAroundCenter(t *testing.T) {
	_, c := attach(t, diagram, Size{400, 400}, DefaultOptions())
	if err := c.Zoom(2); err != nil {
		t.Fatal(err)
	}
	st, _ := c.State()
	want := State{
		Zoom: 2, Scale: 4, PanX: -200, PanY: 0,
		Container: Size{400, 400},
		Content:   svgdom.Box{Width: 200, Height: 100},
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Fatalf("state (-want +got):\n%s", diff)
	}
}

func TestZoomClamped(t *testing.T) {
	_, c := attach(t, diagram, Size{400, 400}, DefaultOptions())
	_ = c.Zoom(100)
	if st, _ := c.State(); st.Zoom != 10 {
		t.Errorf("zoom = %v, want 10", st.Zoom)
	}
	_ = c.ZoomBy(0.001)
	if st, _ := c.State(); st.Zoom != 0.5 {
		t.Errorf("zoom = %v, want 0.5", st.Zoom)
	}
}

func TestZoomDisabled(t *testing.T) {
	_, c := attach(t, diagram, Size{400, 400}, Options{Fit: true})
	if err := c.Zoom(2); !errors.Is(err, ErrZoomDisabled) {
		t.Fatalf("err = %v", err)
	}
}

func TestResizeFitCenter(t *testing.T) {
	_, c := attach(t, diagram, Size{400, 400}, DefaultOptions())
	_ = c.Pan(30, -10)
	if err := c.Resize(Size{100, 100}); err != nil {
		t.Fatal(err)
	}
	st, _ := c.State()
	if st.Scale != 2 || st.PanX != 30 {
		t.Fatalf("resize refitted: %+v", st)
	}
	_ = c.Fit()
	_ = c.Center()
	st, _ = c.State()
	if st.Scale != 0.5 || st.PanX != 0 || st.PanY != 25 {
		t.Fatalf("after fit+center: %+v", st)
	}
}

func TestAttachWithoutViewBox(t *testing.T) {
	_, c := attach(t, `<svg><circle cx="50" cy="50" r="10"/></svg>`, Size{40, 40}, Options{Fit: true})
	st, _ := c.State()
	if diff := cmp.Diff(svgdom.Box{X: 40, Y: 40, Width: 20, Height: 20}, st.Content); diff != "" {
		t.Fatalf("content (-want +got):\n%s", diff)
	}
	if st.Scale != 2 || st.PanX != -80 {
		t.Fatalf("state = %+v", st)
	}
}

func TestAttachEmpty(t *testing.T) {
	doc, _ := svgdom.Parse(`<svg></svg>`)
	if _, err := Attach(doc, Size{10, 10}, DefaultOptions()); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("err = %v", err)
	}
}

func TestDestroy(t *testing.T) {
	_, c := attach(t, diagram, Size{400, 400}, DefaultOptions())
	if err := c.Destroy(); err != nil {
		t.Fatal(err)
	}
	if err := c.Destroy(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("second Destroy = %v", err)
	}
	for name, op := range map[string]func() error{
		"Fit":    c.Fit,
		"Center": c.Center,
		"Zoom":   func() error { return c.Zoom(2) },
		"Pan":    func() error { return c.Pan(1, 1) },
		"Resize": func() error { return c.Resize(Size{1, 1}) },
	} {
		if err := op(); !errors.Is(err, ErrDestroyed) {
			t.Errorf("%s after Destroy = %v", name, err)
		}
	}
}

func TestReattachReusesViewport(t *testing.T) {
	doc, c := attach(t, diagram, Size{400, 400}, DefaultOptions())
	_ = c.Destroy()
	svgdom.SetAttr(doc.Root(), "viewBox", "0 0 200 100")
	if _, err := Attach(doc, Size{200, 200}, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	n := 0
	for ch := doc.Root().FirstChild; ch != nil; ch = ch.NextSibling {
		if svgdom.HasClass(ch, ViewportClass) {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("%d viewports after reattach", n)
	}
}
