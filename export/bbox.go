package export

import (
	"github.com/hazyhaar/diagrammer/svgdom"
)

// ViewportClass marks the group the pan/zoom controller applies its
// transform to.
const ViewportClass = "svg-pan-zoom_viewport"

// boxRule yields a bounding box when it applies to the document.
type boxRule struct {
	name  string
	apply func(doc *svgdom.Document) (BoundingBox, bool)
}

// boxRules is evaluated in order; the first rule that applies decides.
var boxRules = []boxRule{
	{"viewport", viewportBox},
	{"viewBox", declaredViewBox},
	{"element", elementBox},
}

// viewportBox is the tight box of the pan/zoom viewport content. The
// viewport's own transform is the user's current zoom and is ignored.
func viewportBox(doc *svgdom.Document) (BoundingBox, bool) {
	vp := doc.FindByClass(ViewportClass)
	if vp == nil {
		return BoundingBox{}, false
	}
	b, _ := svgdom.BBox(vp)
	// An empty viewport still decides: its zero box fails the dimension check
	// later, as an empty diagram should.
	return fromBox(b), true
}

func declaredViewBox(doc *svgdom.Document) (BoundingBox, bool) {
	vb, ok := doc.ViewBox()
	if !ok || !(vb.Width > 0) {
		return BoundingBox{}, false
	}
	return fromBox(vb), true
}

func elementBox(doc *svgdom.Document) (BoundingBox, bool) {
	b, _ := svgdom.BBox(doc.Root())
	return fromBox(b), true
}

func fromBox(b svgdom.Box) BoundingBox {
	return BoundingBox{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

// ResolveBoundingBox computes the export rectangle of the live diagram.
func ResolveBoundingBox(doc *svgdom.Document) (BoundingBox, error) {
	b, _, err := ResolveBoundingBoxRule(doc)
	return b, err
}

// ResolveBoundingBoxRule is ResolveBoundingBox also reporting which rule
// decided.
func ResolveBoundingBoxRule(doc *svgdom.Document) (BoundingBox, string, error) {
	if doc == nil {
		return BoundingBox{}, "", ErrNoDiagram
	}
	for _, r := range boxRules {
		if b, ok := r.apply(doc); ok {
			return b, r.name, nil
		}
	}
	return BoundingBox{}, "", ErrDimensionsInvalid
}
