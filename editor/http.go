package editor

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/diagrammer/export"
	"github.com/hazyhaar/diagrammer/files"
	"github.com/hazyhaar/diagrammer/observability"
	"github.com/hazyhaar/diagrammer/panzoom"
	"github.com/hazyhaar/diagrammer/render"
	"github.com/hazyhaar/diagrammer/share"
	"github.com/hazyhaar/diagrammer/shield"
	"github.com/hazyhaar/diagrammer/store"
)

//go:embed static
var staticFS embed.FS

// StyleSheets returns the editor page's own stylesheet, which exports
// inline so diagrams keep the look they have in the preview pane.
func StyleSheets() []export.StyleSheet {
	css, err := staticFS.ReadFile("static/app.css")
	if err != nil {
		return nil
	}
	return []export.StyleSheet{{CSS: string(css)}}
}

// HandlerOptions configures the HTTP surface.
type HandlerOptions struct {
	// RateLimiter is appended to the shield stack. Nil disables it.
	RateLimiter *shield.RateLimiter
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	// Metrics backs GET /api/metrics when set.
	Metrics *observability.MetricsManager
}

// Handler returns the editor's HTTP handler.
func Handler(ws *Workspace, opts HandlerOptions) http.Handler {
	h := &handlers{ws: ws, metrics: opts.Metrics}

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(opts.RateLimiter) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", h.index)
	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Get("/notices", h.notices)
		r.Get("/source", h.getSource)
		r.Put("/source", h.putSource)
		r.Post("/render", h.render)
		r.Get("/diagram", h.diagram)
		r.Get("/export/{format}", h.export)
		r.Get("/share", h.shareURL)
		r.Post("/share/decode", h.shareDecode)
		r.Get("/files", h.listFiles)
		r.Post("/files/save", h.saveFile)
		r.Post("/files/load", h.loadFile)
		r.Get("/samples", h.samples)
		r.Post("/samples/{name}", h.loadSample)
		r.Get("/prefs", h.getPrefs)
		r.Put("/prefs", h.putPrefs)
		r.Post("/prefs/background", h.toggleBackground)
		r.Post("/viewport/{op}", h.viewport)
		r.Get("/metrics", h.metricsSummary)
	})

	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
		r.Handle("/mcp/*", opts.MCP)
	}
	return r
}

type handlers struct {
	ws      *Workspace
	metrics *observability.MetricsManager
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get(share.Param); code != "" {
		if err := h.ws.Open(r.Context(), code); err != nil {
			shield.GetLogger(r.Context()).Error("editor: open share link", "error", err)
		}
	}
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		shield.GetLogger(r.Context()).Warn("editor: write index", "error", err)
	}
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Snapshot())
}

func (h *handlers) notices(w http.ResponseWriter, _ *http.Request) {
	n := h.ws.Notices()
	if n == nil {
		n = []Notice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": n})
}

func (h *handlers) getSource(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"source": h.ws.Source()})
}

type sourceReq struct {
	Source *string `json:"source"`
}

func (h *handlers) putSource(w http.ResponseWriter, r *http.Request) {
	var req sourceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == nil {
		writeBadRequest(w, "source is required")
		return
	}
	if err := h.ws.SetSource(r.Context(), *req.Source); err != nil {
		writeNotice(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// render optionally replaces the source, then renders without waiting for
// the debounce. A syntax error is a successful request: the snapshot
// carries the error panel.
func (h *handlers) render(w http.ResponseWriter, r *http.Request) {
	var req sourceReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeBadRequest(w, "invalid request body")
			return
		}
	}
	if req.Source != nil {
		if err := h.ws.SetSource(r.Context(), *req.Source); err != nil {
			writeNotice(w, r, err)
			return
		}
	}
	err := h.ws.RenderNow(r.Context())
	switch {
	case err == nil, render.IsSyntaxError(err):
	case errors.Is(err, ErrSuperseded):
		writeJSON(w, http.StatusConflict, NoticeFor(err))
		return
	default:
		writeNotice(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ws.Snapshot())
}

func (h *handlers) diagram(w http.ResponseWriter, _ *http.Request) {
	out := h.ws.Diagram()
	if strings.HasPrefix(out, "<svg") {
		w.Header().Set("Content-Type", "image/svg+xml")
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, out)
}

// export streams the artifact as a download, or returns it as JSON with its
// data URI when ?inline=1.
func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	art, err := h.ws.Export(r.Context(), format)
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	if r.URL.Query().Get("inline") == "1" {
		writeJSON(w, http.StatusOK, art)
		return
	}
	if err := export.Deliver(w, art); err != nil {
		shield.GetLogger(r.Context()).Warn("editor: deliver export", "error", err)
	}
}

func (h *handlers) shareURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.ws.ShareURL(baseURL(r))
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":            url,
		"copied_notice":  MsgURLCopied,
		"failed_notice":  MsgURLCopyFailed,
		"share_param":    share.Param,
		"encoded_source": share.Encode(h.ws.Source()),
	})
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}

func (h *handlers) shareDecode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	var (
		src string
		err error
	)
	if req.URL != "" {
		var ok bool
		src, ok, err = share.FromURL(req.URL)
		if err == nil && !ok {
			err = share.ErrURLDecodeFailed
		}
	} else {
		src, err = share.Decode(req.Code)
	}
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source": src})
}

func (h *handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	names, err := h.ws.Files()
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": names, "default": files.DefaultFilename})
}

// saveFile writes into the workspace directory, or streams an attachment
// when the request asks for a download.
func (h *handlers) saveFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Download bool   `json:"download"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeBadRequest(w, "invalid request body")
			return
		}
	}
	if req.Download {
		if _, _, err := h.ws.SaveFile(r.Context(), files.DownloadSaver{W: w}, req.Name); err != nil {
			writeNotice(w, r, err)
		}
		return
	}
	saved, location, err := h.ws.SaveFile(r.Context(), nil, req.Name)
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	resp := map[string]any{"saved": saved}
	if saved {
		resp["location"] = location
		resp["notice"] = files.MsgFileSaved
		resp["kind"] = "file_saved"
	}
	writeJSON(w, http.StatusOK, resp)
}

// loadFile accepts a multipart upload in field "file" or a JSON body naming
// a file in the workspace directory.
func (h *handlers) loadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	switch mt {
	case "multipart/form-data":
		f, _, ferr := r.FormFile("file")
		if ferr != nil {
			writeNotice(w, r, errors.Join(files.ErrFileLoadFailed, ferr))
			return
		}
		defer f.Close()
		err = h.ws.LoadFile(ctx, f)
	case "text/plain":
		err = h.ws.LoadFile(ctx, r.Body)
	default:
		var req struct {
			Name string `json:"name"`
		}
		if jerr := json.NewDecoder(r.Body).Decode(&req); jerr != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		err = h.ws.LoadNamedFile(ctx, req.Name)
	}
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notice": files.MsgFileLoaded,
		"kind":   "file_loaded",
		"state":  h.ws.Snapshot(),
	})
}

func (h *handlers) samples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"samples": Samples(), "default": DefaultSample})
}

func (h *handlers) loadSample(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.LoadSample(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeNotice(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ws.Snapshot())
}

func (h *handlers) getPrefs(w http.ResponseWriter, _ *http.Request) {
	s := h.ws.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"pattern":          s.Pattern,
		"background_image": s.BackgroundImage,
		"background_size":  s.BackgroundSize,
		"split_sizes":      s.SplitSizes,
		"toast_ms":         s.ToastMs,
	})
}

func (h *handlers) putPrefs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern    string        `json:"pattern"`
		SplitSizes *[2]float64   `json:"split_sizes"`
		Container  *panzoom.Size `json:"container"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	ctx := r.Context()
	if req.Pattern != "" {
		p, err := store.ParsePattern(req.Pattern)
		if err != nil {
			writeBadRequest(w, "unknown background pattern")
			return
		}
		if err := h.ws.SetBackground(ctx, p); err != nil {
			writeNotice(w, r, err)
			return
		}
	}
	if req.SplitSizes != nil {
		var c panzoom.Size
		if req.Container != nil {
			c = *req.Container
		}
		if err := h.ws.SetSplitSizes(ctx, *req.SplitSizes, c); err != nil {
			writeNotice(w, r, err)
			return
		}
	}
	h.getPrefs(w, r)
}

func (h *handlers) toggleBackground(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ws.ToggleBackground(r.Context()); err != nil {
		writeNotice(w, r, err)
		return
	}
	h.getPrefs(w, r)
}

type viewportReq struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Level  float64 `json:"level"`
	Factor float64 `json:"factor"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
}

func (h *handlers) viewport(w http.ResponseWriter, r *http.Request) {
	var req viewportReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeBadRequest(w, "invalid request body")
			return
		}
	}
	var op func(*panzoom.Controller) error
	switch chi.URLParam(r, "op") {
	case "resize":
		if req.Width <= 0 || req.Height <= 0 {
			writeBadRequest(w, "width and height are required")
			return
		}
		h.ws.Resize(panzoom.Size{Width: req.Width, Height: req.Height})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	case "fit":
		op = func(c *panzoom.Controller) error { return c.Fit() }
	case "center":
		op = func(c *panzoom.Controller) error { return c.Center() }
	case "zoom":
		switch {
		case req.Level > 0:
			op = func(c *panzoom.Controller) error { return c.Zoom(req.Level) }
		case req.Factor > 0:
			op = func(c *panzoom.Controller) error { return c.ZoomBy(req.Factor) }
		default:
			writeBadRequest(w, "level or factor is required")
			return
		}
	case "pan":
		op = func(c *panzoom.Controller) error { return c.Pan(req.DX, req.DY) }
	default:
		http.NotFound(w, r)
		return
	}
	st, err := h.ws.View(op)
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) metricsSummary(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.NotFound(w, r)
		return
	}
	since := 24 * time.Hour
	if d, err := time.ParseDuration(r.URL.Query().Get("since")); err == nil && d > 0 {
		since = d
	}
	sum, err := h.metrics.Summarize(r.Context(), time.Now().Add(-since))
	if err != nil {
		writeNotice(w, r, err)
		return
	}
	if sum == nil {
		sum = []observability.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": since.String(), "metrics": sum})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"kind": "bad_request", "notice": msg})
}

// writeNotice reports a failure as {"kind", "notice"} with a status that
// fits the failure.
func writeNotice(w http.ResponseWriter, r *http.Request, err error) {
	n := NoticeFor(err)
	code := statusFor(err)
	log := shield.GetLogger(r.Context())
	if code >= 500 {
		log.Error("editor: request failed", "kind", n.Kind, "error", err)
	} else {
		log.Debug("editor: request rejected", "kind", n.Kind, "error", err)
	}
	writeJSON(w, code, n)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownSample):
		return http.StatusNotFound
	case errors.Is(err, export.ErrNoDiagram), errors.Is(err, ErrNoController):
		return http.StatusConflict
	case errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, share.ErrURLDecodeFailed),
		errors.Is(err, files.ErrFileLoadFailed),
		errors.Is(err, ErrInvalidSizes),
		errors.Is(err, panzoom.ErrZoomDisabled):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrDimensionsInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, export.ErrImageLoadTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, render.ErrNoEngine):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
