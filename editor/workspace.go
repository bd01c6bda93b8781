// Package editor holds the application state of the diagram editor: the
// current source, the live rendered diagram and its pan/zoom controller, the
// persisted layout preferences and the queue of transient notices. It is
// exposed over HTTP (http.go) and MCP (mcp.go).
//
// The workspace is one document. Every operation takes the workspace lock
// except while waiting on the renderer or the export decoder; a render that
// finishes after a newer one was requested is dropped.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hazyhaar/diagrammer/debounce"
	"github.com/hazyhaar/diagrammer/export"
	"github.com/hazyhaar/diagrammer/files"
	"github.com/hazyhaar/diagrammer/observability"
	"github.com/hazyhaar/diagrammer/panzoom"
	"github.com/hazyhaar/diagrammer/render"
	"github.com/hazyhaar/diagrammer/share"
	"github.com/hazyhaar/diagrammer/store"
	"github.com/hazyhaar/diagrammer/svgdom"
)

var (
	// ErrUnknownSample is returned by LoadSample for a name not in Samples.
	ErrUnknownSample = errors.New("editor: unknown sample")
	// ErrSuperseded is returned by a render that lost to a newer one.
	ErrSuperseded = errors.New("editor: render superseded")
	// ErrNoController is returned by view operations when no diagram is
	// attached to a pan/zoom controller.
	ErrNoController = errors.New("editor: no diagram displayed")
	// ErrInvalidSizes is returned by SetSplitSizes for unusable pane sizes.
	ErrInvalidSizes = errors.New("editor: invalid split sizes")
)

// Config configures a Workspace.
type Config struct {
	Store    *store.Store    // required
	Renderer render.Renderer // required
	Exporter *export.Pipeline
	Files    files.DirSaver
	Metrics  observability.Recorder

	// PanZoom is applied to every rendered diagram. Nil = panzoom.DefaultOptions.
	PanZoom   *panzoom.Options
	Container panzoom.Size // default 800x600

	RenderDebounce time.Duration // default 300ms
	ResizeDebounce time.Duration // default 300ms
	ToastDuration  time.Duration // default 3s
	RenderTimeout  time.Duration // default 30s, for debounced renders

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Exporter == nil {
		c.Exporter = export.New(export.Config{Logger: c.Logger})
	}
	if c.Files.Dir == "" {
		c.Files.Dir = "diagrams"
	}
	if c.Metrics == nil {
		c.Metrics = observability.Discard
	}
	if c.PanZoom == nil {
		o := panzoom.DefaultOptions()
		c.PanZoom = &o
	}
	if c.Container.Width <= 0 || c.Container.Height <= 0 {
		c.Container = panzoom.Size{Width: 800, Height: 600}
	}
	if c.RenderDebounce <= 0 {
		c.RenderDebounce = 300 * time.Millisecond
	}
	if c.ResizeDebounce <= 0 {
		c.ResizeDebounce = 300 * time.Millisecond
	}
	if c.ToastDuration <= 0 {
		c.ToastDuration = 3 * time.Second
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Workspace is the editor's application state.
type Workspace struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	source    string
	live      *svgdom.Document
	pz        *panzoom.Controller
	renderErr error
	gen       uint64
	rendered  uint64
	pattern   store.Pattern
	split     [2]float64
	container panzoom.Size
	pending   panzoom.Size
	seenStamp int64
	notices   []Notice

	renderDeb *debounce.Debouncer
	resizeDeb *debounce.Debouncer
	bg        context.Context
	cancel    context.CancelFunc
}

// New creates a Workspace. Call Open before use.
func New(cfg Config) (*Workspace, error) {
	if cfg.Store == nil {
		return nil, errors.New("editor: store is required")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("editor: renderer is required")
	}
	cfg.defaults()
	w := &Workspace{
		cfg:       cfg,
		log:       cfg.Logger,
		pattern:   store.PatternDot,
		split:     [2]float64{50, 50},
		container: cfg.Container,
	}
	w.bg, w.cancel = context.WithCancel(context.Background())
	w.renderDeb = debounce.New(cfg.RenderDebounce, w.debouncedRender)
	w.resizeDeb = debounce.New(cfg.ResizeDebounce, w.debouncedResize)
	return w, nil
}

// Close stops pending debounced work.
func (w *Workspace) Close() {
	w.renderDeb.Stop()
	w.resizeDeb.Stop()
	w.cancel()
}

// Open loads the preferences and picks the initial source: a share link
// wins, then an autosave younger than the TTL, then the default sample. A
// share parameter that does not decode queues a notice and falls through to
// the autosave. The initial render follows; a syntax error is not an Open
// failure.
func (w *Workspace) Open(ctx context.Context, shareParam string) error {
	st := w.cfg.Store
	pattern, err := st.BackgroundPattern(ctx)
	if err != nil {
		return fmt.Errorf("editor: open: %w", err)
	}
	split, err := st.SplitSizes(ctx)
	if err != nil {
		return fmt.Errorf("editor: open: %w", err)
	}

	src, from := "", "sample"
	var stamp int64
	if shareParam != "" {
		if s, err := share.Decode(shareParam); err != nil {
			w.log.Warn("editor: share link", "error", err)
			w.notify(NoticeFor(err))
		} else {
			src, from = s, "share"
		}
	}
	if from != "share" {
		es, ok, err := st.LoadEditorState(ctx)
		if err != nil {
			return fmt.Errorf("editor: open: %w", err)
		}
		if ok {
			src, from, stamp = es.Code, "autosave", es.Timestamp
		}
	}
	if from == "sample" {
		s, _ := LookupSample(DefaultSample)
		src = s.Source
	}

	w.mu.Lock()
	w.pattern, w.split = pattern, split
	w.source = src
	if stamp > w.seenStamp {
		w.seenStamp = stamp
	}
	w.mu.Unlock()
	w.log.Info("editor: opened", "from", from, "bytes", len(src), "pattern", pattern)

	if err := w.Render(ctx); err != nil && !render.IsSyntaxError(err) && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}

// Source returns the current source.
func (w *Workspace) Source() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.source
}

// SetSource replaces the source, autosaves it and schedules a debounced
// render. An autosave failure is returned but the render is still
// scheduled.
func (w *Workspace) SetSource(ctx context.Context, src string) error {
	w.mu.Lock()
	w.source = src
	w.mu.Unlock()

	err := w.autosave(ctx, src)
	w.renderDeb.Trigger()
	return err
}

func (w *Workspace) autosave(ctx context.Context, src string) error {
	es, err := w.cfg.Store.SaveEditorState(ctx, src)
	if err != nil {
		w.log.Error("editor: autosave", "error", err)
		return fmt.Errorf("editor: autosave: %w", err)
	}
	w.mu.Lock()
	if es.Timestamp > w.seenStamp {
		w.seenStamp = es.Timestamp
	}
	w.mu.Unlock()
	return nil
}

// FlushRender runs a pending debounced render now. It reports whether one
// was pending.
func (w *Workspace) FlushRender() bool { return w.renderDeb.Flush() }

// RenderNow drops any pending debounced render and renders immediately.
func (w *Workspace) RenderNow(ctx context.Context) error {
	w.renderDeb.Cancel()
	return w.Render(ctx)
}

func (w *Workspace) debouncedRender() {
	ctx, cancel := context.WithTimeout(w.bg, w.cfg.RenderTimeout)
	defer cancel()
	err := w.Render(ctx)
	switch {
	case err == nil, render.IsSyntaxError(err), errors.Is(err, ErrSuperseded):
	default:
		w.log.Error("editor: render", "error", err)
	}
}

// Render renders the current source and installs the result as the live
// diagram. The previous diagram and its controller are discarded before the
// new controller is attached. A failed render leaves no live diagram; its
// error is shown in place of the diagram. A render overtaken by a newer
// request returns ErrSuperseded and changes nothing.
func (w *Workspace) Render(ctx context.Context) error {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	src := w.source
	w.mu.Unlock()

	start := time.Now()
	doc, err := w.renderDocument(ctx, src)
	elapsed := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		w.log.Debug("editor: dropping stale render", "gen", gen, "latest", w.gen)
		return ErrSuperseded
	}
	w.discardLocked()
	w.rendered = gen

	outcome := "ok"
	switch {
	case err == nil:
	case render.IsSyntaxError(err):
		outcome = "syntax_error"
	default:
		outcome = "error"
	}
	observability.Duration(w.cfg.Metrics, observability.MetricRenderDurationMs, elapsed,
		map[string]string{"engine": w.engineOf(src), "outcome": outcome})

	if err != nil {
		w.renderErr = err
		w.log.Debug("editor: render failed", "error", err, "elapsed", elapsed)
		return err
	}

	pz, perr := panzoom.Attach(doc, w.container, *w.cfg.PanZoom)
	if perr != nil {
		// Nothing measurable to zoom; show the diagram as is.
		w.log.Debug("editor: pan/zoom not attached", "error", perr)
		pz = nil
	}
	w.live, w.pz, w.renderErr = doc, pz, nil
	return nil
}

func (w *Workspace) renderDocument(ctx context.Context, src string) (*svgdom.Document, error) {
	markup, err := w.cfg.Renderer.Render(ctx, src)
	if err != nil {
		return nil, err
	}
	doc, err := svgdom.Parse(markup)
	if err != nil {
		return nil, fmt.Errorf("editor: renderer output: %w", err)
	}
	return doc, nil
}

// discardLocked drops the live diagram and destroys its controller. A
// controller that is already destroyed is not an error.
func (w *Workspace) discardLocked() {
	if w.pz != nil {
		if err := w.pz.Destroy(); err != nil {
			w.log.Debug("editor: destroy controller", "error", err)
		}
	}
	w.live, w.pz, w.renderErr = nil, nil, nil
}

func (w *Workspace) engineOf(src string) string {
	if m, ok := w.cfg.Renderer.(interface{ Engine(string) string }); ok {
		return m.Engine(src)
	}
	if e := render.Detect(src); e != "" {
		return e
	}
	return "unknown"
}

// Export rasterizes the live diagram.
func (w *Workspace) Export(ctx context.Context, format export.Format) (*export.Artifact, error) {
	w.mu.Lock()
	var live *svgdom.Document
	if w.live != nil {
		live = w.live.Clone()
	}
	w.mu.Unlock()

	start := time.Now()
	art, err := w.cfg.Exporter.Export(ctx, live, format)
	labels := map[string]string{"format": string(format)}
	if err != nil {
		labels["kind"] = export.Kind(err)
		observability.Count(w.cfg.Metrics, observability.MetricExportFailures, labels)
		w.log.Warn("editor: export failed", "format", format, "error", err)
		return nil, err
	}
	observability.Duration(w.cfg.Metrics, observability.MetricExportDurationMs, time.Since(start), labels)
	w.log.Info("editor: exported", "id", art.ID, "format", format, "width", art.Width, "height", art.Height)
	return art, nil
}

// ShareURL returns a link that reopens the current source.
func (w *Workspace) ShareURL(base string) (string, error) {
	return share.URL(base, w.Source())
}

// SaveFile saves the current source through saver, or into the workspace
// directory when saver is nil. saved is false when the save was abandoned.
func (w *Workspace) SaveFile(ctx context.Context, saver files.Saver, name string) (saved bool, location string, err error) {
	if saver == nil {
		saver = w.cfg.Files
	}
	saved, location, err = saver.Save(ctx, name, w.Source())
	if err != nil {
		w.log.Warn("editor: save file", "name", name, "error", err)
		return false, "", err
	}
	if saved {
		w.log.Info("editor: saved file", "location", location)
	}
	return saved, location, nil
}

// LoadFile replaces the source with the text read from r, autosaves it and
// renders it immediately.
func (w *Workspace) LoadFile(ctx context.Context, r io.Reader) error {
	src, err := files.Read(r)
	if err != nil {
		return err
	}
	return w.replace(ctx, src, true)
}

// LoadNamedFile loads a file from the workspace directory.
func (w *Workspace) LoadNamedFile(ctx context.Context, name string) error {
	src, err := w.cfg.Files.Load(name)
	if err != nil {
		return err
	}
	return w.replace(ctx, src, true)
}

// FilesDir is the workspace directory.
func (w *Workspace) FilesDir() string { return w.cfg.Files.Dir }

// Files lists the diagrams saved in the workspace directory.
func (w *Workspace) Files() ([]string, error) { return w.cfg.Files.List() }

// LoadSample replaces the source with a sample and renders it. Samples are
// not autosaved until edited.
func (w *Workspace) LoadSample(ctx context.Context, name string) error {
	s, err := LookupSample(name)
	if err != nil {
		return err
	}
	return w.replace(ctx, s.Source, false)
}

func (w *Workspace) replace(ctx context.Context, src string, save bool) error {
	w.renderDeb.Cancel()

	w.mu.Lock()
	w.source = src
	w.mu.Unlock()

	if save {
		if err := w.autosave(ctx, src); err != nil {
			return err
		}
	}
	err := w.Render(ctx)
	if err != nil && (render.IsSyntaxError(err) || errors.Is(err, ErrSuperseded)) {
		return nil
	}
	return err
}

// ToggleBackground switches between the dot and grid patterns and persists
// the choice.
func (w *Workspace) ToggleBackground(ctx context.Context) (store.Pattern, error) {
	w.mu.Lock()
	next := w.pattern.Toggle()
	w.mu.Unlock()
	if err := w.cfg.Store.SetBackgroundPattern(ctx, next); err != nil {
		return "", err
	}
	w.mu.Lock()
	w.pattern = next
	w.mu.Unlock()
	return next, nil
}

// SetBackground persists p.
func (w *Workspace) SetBackground(ctx context.Context, p store.Pattern) error {
	if err := w.cfg.Store.SetBackgroundPattern(ctx, p); err != nil {
		return err
	}
	w.mu.Lock()
	w.pattern = p
	w.mu.Unlock()
	return nil
}

// SetSplitSizes persists the pane sizes and refits the diagram. A non-zero
// container replaces the current display size.
func (w *Workspace) SetSplitSizes(ctx context.Context, sizes [2]float64, container panzoom.Size) error {
	for _, s := range sizes {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidSizes, sizes)
		}
	}
	if sizes[0]+sizes[1] <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSizes, sizes)
	}
	if err := w.cfg.Store.SetSplitSizes(ctx, sizes); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.split = sizes
	if container.Width > 0 && container.Height > 0 {
		w.container = container
	}
	w.refitLocked()
	return nil
}

// Resize records a new display size. The refit is debounced.
func (w *Workspace) Resize(size panzoom.Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	w.mu.Lock()
	w.pending = size
	w.mu.Unlock()
	w.resizeDeb.Trigger()
}

// FlushResize applies a pending resize now.
func (w *Workspace) FlushResize() bool { return w.resizeDeb.Flush() }

func (w *Workspace) debouncedResize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Width > 0 && w.pending.Height > 0 {
		w.container = w.pending
	}
	w.refitLocked()
}

func (w *Workspace) refitLocked() {
	if w.pz == nil {
		return
	}
	for _, op := range []func() error{
		func() error { return w.pz.Resize(w.container) },
		w.pz.Fit,
		w.pz.Center,
	} {
		if err := op(); err != nil {
			w.log.Debug("editor: refit", "error", err)
			return
		}
	}
}

// View applies fn to the current controller.
func (w *Workspace) View(fn func(*panzoom.Controller) error) (panzoom.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pz == nil {
		return panzoom.State{}, ErrNoController
	}
	if fn != nil {
		if err := fn(w.pz); err != nil {
			return panzoom.State{}, err
		}
	}
	return w.pz.State()
}

// Reload picks up editor content and preferences written to the store by
// another process. Content is adopted only when its autosave is newer than
// anything this workspace wrote or loaded.
func (w *Workspace) Reload(ctx context.Context) error {
	st := w.cfg.Store
	pattern, err := st.BackgroundPattern(ctx)
	if err != nil {
		return err
	}
	split, err := st.SplitSizes(ctx)
	if err != nil {
		return err
	}
	es, ok, err := st.LoadEditorState(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.pattern, w.split = pattern, split
	adopt := ok && es.Timestamp > w.seenStamp && es.Code != w.source
	if ok && es.Timestamp > w.seenStamp {
		w.seenStamp = es.Timestamp
	}
	if adopt {
		w.source = es.Code
	}
	w.mu.Unlock()

	if !adopt {
		return nil
	}
	w.log.Info("editor: reloaded source from store", "bytes", len(es.Code))
	err = w.Render(ctx)
	if err != nil && (render.IsSyntaxError(err) || errors.Is(err, ErrSuperseded)) {
		return nil
	}
	return err
}

// Snapshot is the state the editor page displays.
type Snapshot struct {
	Source          string         `json:"source"`
	Engine          string         `json:"engine"`
	SVG             string         `json:"svg,omitempty"`
	ErrorHTML       string         `json:"error_html,omitempty"`
	Error           string         `json:"error,omitempty"`
	Pattern         store.Pattern  `json:"pattern"`
	BackgroundImage string         `json:"background_image"`
	BackgroundSize  string         `json:"background_size"`
	SplitSizes      [2]float64     `json:"split_sizes"`
	View            *panzoom.State `json:"view,omitempty"`
	Generation      uint64         `json:"generation"`
	ToastMs         int64          `json:"toast_ms"`
}

// Snapshot returns the current display state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		Source:     w.source,
		Engine:     w.engineOf(w.source),
		Pattern:    w.pattern,
		SplitSizes: w.split,
		Generation: w.rendered,
		ToastMs:    w.cfg.ToastDuration.Milliseconds(),
	}
	s.BackgroundImage, s.BackgroundSize = w.pattern.CSS()
	s.SVG, s.ErrorHTML = w.diagramLocked()
	if w.renderErr != nil {
		s.Error = w.renderErr.Error()
	}
	if w.pz != nil {
		if st, err := w.pz.State(); err == nil {
			s.View = &st
		}
	}
	return s
}

// Diagram returns the markup shown in the preview pane: the live diagram,
// or the error panel after a failed render.
func (w *Workspace) Diagram() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	svg, panel := w.diagramLocked()
	if panel != "" {
		return panel
	}
	return svg
}

func (w *Workspace) diagramLocked() (svg, panel string) {
	if w.renderErr != nil {
		return "", render.ErrorPanel(w.renderErr)
	}
	if w.live == nil {
		return "", ""
	}
	out, err := w.live.String()
	if err != nil {
		w.log.Warn("editor: serialize diagram", "error", err)
		return "", ""
	}
	return out, ""
}
