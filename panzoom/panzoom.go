// Package panzoom attaches a pan/zoom controller to a rendered diagram. The
// controller wraps the diagram content in a viewport group and drives the
// group's transform; the outer <svg> is sized to the display container.
//
// The viewport group carries the class svg-pan-zoom_viewport, which is what
// the export pipeline looks for when it measures the diagram.
package panzoom

import (
	"errors"
	"math"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/diagrammer/svgdom"
)

// ViewportClass marks the group the controller transforms.
const ViewportClass = "svg-pan-zoom_viewport"

var (
	// ErrDestroyed is returned by every operation on a destroyed controller.
	ErrDestroyed = errors.New("panzoom: controller destroyed")
	// ErrZoomDisabled is returned by Zoom and ZoomBy when zooming is off.
	ErrZoomDisabled = errors.New("panzoom: zoom disabled")
	// ErrEmptyContent is returned by Attach when the diagram has no extent.
	ErrEmptyContent = errors.New("panzoom: diagram has no measurable content")
)

// Size is the display container size in CSS pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Options configures a controller.
type Options struct {
	ZoomEnabled bool
	Fit         bool
	Center      bool
	MinZoom     float64 // default 0.5
	MaxZoom     float64 // default 10
}

func (o *Options) defaults() {
	if o.MinZoom <= 0 {
		o.MinZoom = 0.5
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = 10
	}
	if o.MaxZoom < o.MinZoom {
		o.MaxZoom = o.MinZoom
	}
}

// DefaultOptions matches the editor: zoom on, fit and center on attach.
func DefaultOptions() Options {
	return Options{ZoomEnabled: true, Fit: true, Center: true, MinZoom: 0.5, MaxZoom: 10}
}

// State is a snapshot of the controller.
type State struct {
	Zoom      float64    `json:"zoom"`  // relative to the fit scale
	Scale     float64    `json:"scale"` // effective user-unit to pixel scale
	PanX      float64    `json:"pan_x"`
	PanY      float64    `json:"pan_y"`
	Container Size       `json:"container"`
	Content   svgdom.Box `json:"content"`
}

// Controller drives one diagram's viewport.
type Controller struct {
	mu        sync.Mutex
	opts      Options
	root      *html.Node
	viewport  *html.Node
	content   svgdom.Box
	container Size
	fitScale  float64
	zoom      float64
	panX      float64
	panY      float64
	destroyed bool
}

// Attach installs a controller on doc, sized to container.
func Attach(doc *svgdom.Document, container Size, opts Options) (*Controller, error) {
	opts.defaults()
	root := doc.Root()

	content, hasViewBox := doc.ViewBox()
	vp := doc.FindByClass(ViewportClass)
	if vp == nil {
		vp = wrapContent(root)
	}
	if !hasViewBox || content.Width <= 0 || content.Height <= 0 {
		b, ok := svgdom.BBox(vp)
		if !ok || b.Width <= 0 || b.Height <= 0 {
			return nil, ErrEmptyContent
		}
		content = b
	}
	svgdom.RemoveAttr(root, "viewBox")
	svgdom.SetStyleProperty(root, "max-width", "")

	c := &Controller{
		opts:     opts,
		root:     root,
		viewport: vp,
		content:  content,
		zoom:     1,
	}
	c.resize(container)
	c.fitScale = c.computeFit()
	c.panX, c.panY = -content.X*c.fitScale, -content.Y*c.fitScale
	if opts.Fit {
		c.fit()
	}
	if opts.Center {
		c.center()
	}
	c.apply()
	return c, nil
}

// wrapContent moves the root's drawable children into a new viewport group.
// <defs> and <style> stay where they are.
func wrapContent(root *html.Node) *html.Node {
	vp := svgdom.NewElement("g", html.Attribute{Key: "class", Val: ViewportClass})
	var move []*html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "defs" || c.Data == "style") {
			continue
		}
		move = append(move, c)
	}
	for _, c := range move {
		root.RemoveChild(c)
		vp.AppendChild(c)
	}
	root.AppendChild(vp)
	return vp
}

func (c *Controller) computeFit() float64 {
	if c.container.Width <= 0 || c.container.Height <= 0 {
		return 1
	}
	return math.Min(c.container.Width/c.content.Width, c.container.Height/c.content.Height)
}

func (c *Controller) scale() float64 { return c.fitScale * c.zoom }

func (c *Controller) resize(s Size) {
	c.container = s
	if s.Width > 0 {
		svgdom.SetAttr(c.root, "width", svgdom.FormatNumber(s.Width))
	}
	if s.Height > 0 {
		svgdom.SetAttr(c.root, "height", svgdom.FormatNumber(s.Height))
	}
}

func (c *Controller) fit() {
	c.fitScale = c.computeFit()
	c.zoom = 1
	c.panX = -c.content.X * c.fitScale
	c.panY = -c.content.Y * c.fitScale
}

func (c *Controller) center() {
	s := c.scale()
	c.panX = (c.container.Width-c.content.Width*s)/2 - c.content.X*s
	c.panY = (c.container.Height-c.content.Height*s)/2 - c.content.Y*s
}

func (c *Controller) apply() {
	s := c.scale()
	m := svgdom.Matrix{A: s, D: s, E: c.panX, F: c.panY}.String()
	svgdom.SetAttr(c.viewport, "transform", m)
	svgdom.SetStyleProperty(c.viewport, "transform", m)
	svgdom.SetStyleProperty(c.viewport, "-ms-transform", m)
}

// Resize records a new container size. The view is not refitted; call Fit
// and Center for that.
func (c *Controller) Resize(s Size) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.resize(s)
	c.apply()
	return nil
}

// Fit scales the content to fit the container at zoom 1.
func (c *Controller) Fit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.fit()
	c.apply()
	return nil
}

// Center pans so the content sits in the middle of the container.
func (c *Controller) Center() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.center()
	c.apply()
	return nil
}

// Zoom sets the zoom level relative to the fit scale, clamped to
// [MinZoom, MaxZoom]. The container center stays fixed.
func (c *Controller) Zoom(level float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	if !c.opts.ZoomEnabled {
		return ErrZoomDisabled
	}
	c.zoomTo(level)
	c.apply()
	return nil
}

// ZoomBy multiplies the current zoom level by factor.
func (c *Controller) ZoomBy(factor float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	if !c.opts.ZoomEnabled {
		return ErrZoomDisabled
	}
	c.zoomTo(c.zoom * factor)
	c.apply()
	return nil
}

func (c *Controller) zoomTo(level float64) {
	if math.IsNaN(level) || level <= 0 {
		return
	}
	level = math.Max(c.opts.MinZoom, math.Min(c.opts.MaxZoom, level))
	old := c.scale()
	cx, cy := c.container.Width/2, c.container.Height/2
	c.zoom = level
	k := c.scale() / old
	c.panX = cx - (cx-c.panX)*k
	c.panY = cy - (cy-c.panY)*k
}

// Pan moves the view by (dx, dy) pixels.
func (c *Controller) Pan(dx, dy float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.panX += dx
	c.panY += dy
	c.apply()
	return nil
}

// State returns a snapshot.
func (c *Controller) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return State{}, ErrDestroyed
	}
	return State{
		Zoom:      c.zoom,
		Scale:     c.scale(),
		PanX:      c.panX,
		PanY:      c.panY,
		Container: c.container,
		Content:   c.content,
	}, nil
}

// Destroy detaches the controller. The viewport group stays in the document
// with its last transform. A second Destroy returns ErrDestroyed.
func (c *Controller) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.destroyed = true
	return nil
}
