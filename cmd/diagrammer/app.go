package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/diagrammer/browser"
	"github.com/hazyhaar/diagrammer/dbopen"
	"github.com/hazyhaar/diagrammer/editor"
	"github.com/hazyhaar/diagrammer/export"
	"github.com/hazyhaar/diagrammer/files"
	"github.com/hazyhaar/diagrammer/mcpquic"
	"github.com/hazyhaar/diagrammer/observability"
	"github.com/hazyhaar/diagrammer/render"
	"github.com/hazyhaar/diagrammer/shield"
	"github.com/hazyhaar/diagrammer/store"
)

// engines holds the renderers and the export pipeline, which share Chrome.
type engines struct {
	mgr      *browser.Manager
	session  *browser.Session
	mux      *render.Mux
	exporter *export.Pipeline
}

// startEngines builds the renderers. Chrome is optional: without it Mermaid
// sources fail with render.ErrNoEngine and exports use the native decoder.
func startEngines(ctx context.Context, cfg *Config, logger *slog.Logger) (*engines, error) {
	e := &engines{}
	renderers := map[string]render.Renderer{}

	d2, err := render.NewD2()
	if err != nil {
		return nil, fmt.Errorf("d2: %w", err)
	}
	renderers[render.EngineD2] = d2

	if !cfg.Browser.Disabled {
		e.mgr = browser.NewManager(browser.Config{
			RemoteURL:       cfg.Browser.Remote,
			Bin:             cfg.Browser.Bin,
			RecycleInterval: cfg.Browser.RecycleInterval,
			Logger:          logger,
		})
		if err := e.mgr.Start(); err != nil {
			logger.Warn("diagrammer: chrome unavailable, mermaid disabled", "error", err)
			e.mgr.Close()
			e.mgr = nil
		}
	}
	if e.mgr != nil {
		page, err := render.MermaidPage(cfg.Render.MermaidScript)
		if err != nil {
			e.close()
			return nil, err
		}
		e.session = e.mgr.NewSession(page)
		renderers[render.EngineMermaid] = render.NewMermaid(e.session)
	}
	e.mux = render.NewMux(cfg.Render.FallbackEngine, renderers)

	var dec export.Decoder
	switch {
	case cfg.Export.Decoder == DecoderBrowser && e.mgr == nil:
		e.close()
		return nil, errors.New("decoder browser: chrome is not available")
	case cfg.Export.Decoder == DecoderNative, e.mgr == nil:
		dec = export.NewNativeDecoder()
	default:
		dec = export.NewBrowserDecoder(e.mgr)
	}
	e.exporter = export.New(export.Config{
		Padding:      cfg.Export.Padding,
		MaxDimension: cfg.Export.MaxDimension,
		LoadTimeout:  cfg.Export.LoadTimeout,
		JPEGQuality:  cfg.Export.JPEGQuality,
		Decoder:      dec,
		StyleSheets:  editor.StyleSheets,
		Logger:       logger,
	})
	logger.Info("diagrammer: engines ready", "engines", e.mux.Engines(),
		"fallback", cfg.Render.FallbackEngine, "decoder", fmt.Sprintf("%T", dec))
	return e, nil
}

// render renders src once. A syntax error comes back as the message the
// editor would show.
func (e *engines) render(ctx context.Context, cfg *Config, src string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Render.Timeout)
	defer cancel()
	markup, err := e.mux.Render(ctx, src)
	var se *render.SyntaxError
	if errors.As(err, &se) {
		return "", fmt.Errorf("%s %s", render.ErrorTitle, se.Message)
	}
	return markup, err
}

func (e *engines) close() {
	if e.session != nil {
		e.session.Close()
	}
	if e.mgr != nil {
		e.mgr.Close()
	}
}

// openDB opens the shared database with every table the server uses.
func openDB(cfg *Config) (*sql.DB, error) {
	return dbopen.Open(cfg.DB,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(store.Schema),
		dbopen.WithSchema(shield.Schema),
		dbopen.WithSchema(observability.Schema),
	)
}

// newWorkspace wires a workspace over db.
func newWorkspace(cfg *Config, db *sql.DB, e *engines, metrics observability.Recorder, logger *slog.Logger) (*editor.Workspace, *store.Store, error) {
	st := store.New(db, store.WithTTL(cfg.Editor.AutosaveTTL), store.WithLogger(logger))
	ws, err := editor.New(editor.Config{
		Store:          st,
		Renderer:       e.mux,
		Exporter:       e.exporter,
		Files:          files.DirSaver{Dir: cfg.FilesDir},
		Metrics:        metrics,
		RenderDebounce: cfg.Editor.Debounce,
		ResizeDebounce: cfg.Editor.ResizeDebounce,
		ToastDuration:  cfg.Editor.Toast,
		RenderTimeout:  cfg.Render.Timeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return ws, st, nil
}

// listenMCPQuic opens the QUIC MCP listener.
func listenMCPQuic(cfg MCPQuicConfig, srv *mcp.Server, logger *slog.Logger) (*mcpquic.Listener, error) {
	var (
		tlsCfg *tls.Config
		err    error
	)
	if cfg.CertFile != "" {
		tlsCfg, err = mcpquic.ServerTLSConfig(cfg.CertFile, cfg.KeyFile)
	} else {
		logger.Warn("diagrammer: mcp quic uses a self-signed certificate")
		tlsCfg, err = mcpquic.SelfSignedTLSConfig()
	}
	if err != nil {
		return nil, err
	}
	return mcpquic.NewListener(cfg.Addr, tlsCfg, srv, logger)
}
