package svgdom

import (
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"
)

// PathBounds returns the bounding box of path data d. Curves and arcs are
// flattened, so the box is exact to within a small fraction of a unit.
// When d is malformed the geometry parsed before the error is still
// measured; ok reports whether any point was found.
func PathBounds(d string) (box Box, ok bool, err error) {
	var e extent
	err = addPath(&e, Identity, d)
	return e.box(), e.ok, err
}

func addPath(e *extent, m Matrix, d string) error {
	var pc oksvg.PathCursor
	err := pc.CompilePath(d)
	if len(pc.Path) > 0 {
		pc.Path.AddTo(&pathExtent{e: e, m: m})
	}
	return err
}

// pathExtent is a rasterx.Adder that grows an extent instead of filling.
type pathExtent struct {
	e   *extent
	m   Matrix
	cur fixed.Point26_6
}

func (p *pathExtent) point(x, y float32) {
	p.e.addT(p.m, float64(x)/64, float64(y)/64)
}

func (p *pathExtent) Start(a fixed.Point26_6) {
	p.cur = a
	p.point(float32(a.X), float32(a.Y))
}

func (p *pathExtent) Line(b fixed.Point26_6) {
	p.cur = b
	p.point(float32(b.X), float32(b.Y))
}

func (p *pathExtent) QuadBezier(b, c fixed.Point26_6) {
	rasterx.QuadTo(float32(p.cur.X), float32(p.cur.Y),
		float32(b.X), float32(b.Y), float32(c.X), float32(c.Y), p.point)
	p.cur = c
}

func (p *pathExtent) CubeBezier(b, c, d fixed.Point26_6) {
	rasterx.CubeTo(float32(p.cur.X), float32(p.cur.Y),
		float32(b.X), float32(b.Y), float32(c.X), float32(c.Y),
		float32(d.X), float32(d.Y), p.point)
	p.cur = d
}

func (p *pathExtent) Stop(bool) {}
