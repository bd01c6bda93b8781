// Command diagrammer is a Mermaid and D2 diagram editor with raster export.
//
// Usage:
//
//	diagrammer serve [-config diagrammer.yaml] [-addr :8086] [-watch file.mmd] [-mcp-quic :8087]
//	diagrammer render [-save] file.mmd > diagram.svg
//	diagrammer export [-format png] [-o out.png] file.mmd
//	diagrammer share [-base URL] [-copy] file.mmd
//	diagrammer decode 'http://localhost:8086/?code=...'
//	diagrammer mcp                                # MCP over stdio
//
// A file argument of "-" reads standard input.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/diagrammer/editor"
	"github.com/hazyhaar/diagrammer/export"
	"github.com/hazyhaar/diagrammer/files"
	"github.com/hazyhaar/diagrammer/filewatch"
	"github.com/hazyhaar/diagrammer/observability"
	"github.com/hazyhaar/diagrammer/render"
	"github.com/hazyhaar/diagrammer/share"
	"github.com/hazyhaar/diagrammer/shield"
	"github.com/hazyhaar/diagrammer/store"
	"github.com/hazyhaar/diagrammer/svgdom"
	"github.com/hazyhaar/diagrammer/watch"
)

const version = "0.1.0"

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"serve":  runServe,
	"render": runRender,
	"export": runExport,
	"share":  runShare,
	"decode": runDecode,
	"mcp":    runMCP,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "diagrammer %s: %v\n", name, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: diagrammer serve|render|export|share|decode|mcp [flags] [file]")
}

// common holds the flags every subcommand takes.
type common struct {
	configPath string
	logLevel   string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to diagrammer.yaml config file")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func (c *common) load() (*Config, *slog.Logger, error) {
	cfg, err := LoadConfigFile(c.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if _, err := observability.ParseLevel(cfg.LogLevel); err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// readSource reads the file named by the single positional argument.
func readSource(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected one source file, got %d arguments", fs.NArg())
	}
	name := fs.Arg(0)
	if name == "-" {
		return files.Read(os.Stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return files.Read(f)
}

// --- serve ---

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	addr := fs.String("addr", "", "listen address (overrides config)")
	dbPath := fs.String("db", "", "database path (overrides config)")
	watchPath := fs.String("watch", "", "source file to live-reload into the editor")
	quicAddr := fs.String("mcp-quic", "", "also serve MCP over QUIC on this UDP address")
	fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DB = *dbPath
	}
	if *quicAddr != "" {
		cfg.MCPQuic.Addr = *quicAddr
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	var (
		metrics observability.Recorder = observability.Discard
		mm      *observability.MetricsManager
	)
	if !cfg.Metrics.Disabled {
		mm = observability.NewMetricsManager(db, observability.Options{
			FlushInterval: cfg.Metrics.FlushInterval,
			Logger:        logger,
		})
		defer mm.Close()
		metrics = mm
		go cleanupMetrics(ctx, mm, cfg.Metrics.Retention, logger)
	}

	eng, err := startEngines(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.close()

	ws, st, err := newWorkspace(cfg, db, eng, metrics, logger)
	if err != nil {
		return err
	}
	defer ws.Close()
	if err := ws.Open(ctx, ""); err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	// Edits written by other diagrammer processes to the same database.
	w := watch.New(st.Version, watch.Options{
		Interval: cfg.Watch.Interval,
		Debounce: cfg.Watch.Debounce,
		Logger:   logger,
	})
	go w.OnChange(ctx, ws.Reload)

	if *watchPath != "" {
		fw, err := filewatch.New(*watchPath, ws.SetSource, filewatch.Options{Logger: logger})
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		defer fw.Close()
		go func() {
			if err := fw.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("diagrammer: file watch stopped", "path", *watchPath, "error", err)
			}
		}()
	}

	rl := shield.NewRateLimiter(db, logger)
	rl.StartReloader(ctx)

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "diagrammer", Version: version}, nil)
	editor.RegisterMCP(mcpSrv, ws, logger)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
	if cfg.MCPQuic.Addr != "" {
		ql, err := listenMCPQuic(cfg.MCPQuic, mcpSrv, logger)
		if err != nil {
			return fmt.Errorf("mcp quic: %w", err)
		}
		defer ql.Close()
		go func() {
			if err := ql.Serve(ctx); err != nil && ctx.Err() == nil {
				logger.Error("diagrammer: mcp quic stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: editor.Handler(ws, editor.HandlerOptions{
			RateLimiter: rl,
			MCP:         mcpHandler,
			Metrics:     mm,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("diagrammer: listening", "addr", cfg.Addr, "db", cfg.DB)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("diagrammer: shutdown", "error", err)
	}
	logger.Info("diagrammer: stopped")
	return nil
}

func cleanupMetrics(ctx context.Context, mm *observability.MetricsManager, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := mm.Cleanup(ctx, retention)
			if err != nil {
				logger.Warn("diagrammer: metrics cleanup", "error", err)
				continue
			}
			logger.Debug("diagrammer: metrics cleanup", "deleted", n)
		}
	}
}

// --- render ---

func runRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	var c common
	c.register(fs)
	out := fs.String("o", "", "write the SVG to this file instead of stdout")
	save := fs.Bool("save", false, "also store the source as the editor autosave")
	fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	src, err := readSource(fs)
	if err != nil {
		return err
	}
	if *save {
		if err := saveAutosave(ctx, cfg, logger, src); err != nil {
			return err
		}
	}

	markup, err := renderSource(ctx, cfg, logger, src)
	if err != nil {
		return err
	}
	return writeOutput(*out, []byte(markup))
}

func renderSource(ctx context.Context, cfg *Config, logger *slog.Logger, src string) (string, error) {
	if render.Detect(src) != render.EngineMermaid && cfg.Render.FallbackEngine == render.EngineD2 {
		// D2 needs no browser.
		cfg.Browser.Disabled = true
		cfg.Export.Decoder = DecoderNative
	}
	eng, err := startEngines(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer eng.close()
	return eng.render(ctx, cfg, src)
}

func saveAutosave(ctx context.Context, cfg *Config, logger *slog.Logger, src string) error {
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	st := store.New(db, store.WithTTL(cfg.Editor.AutosaveTTL), store.WithLogger(logger))
	es, err := st.SaveEditorState(ctx, src)
	if err != nil {
		return err
	}
	logger.Info("diagrammer: autosave stored", "db", cfg.DB, "timestamp", es.Timestamp)
	return nil
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// --- export ---

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var c common
	c.register(fs)
	formatName := fs.String("format", "png", "png, jpg or pdf")
	out := fs.String("o", "", "output file or directory (default: ./diagram.<format>)")
	fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(*formatName)
	if err != nil {
		return errors.New(export.Message(err))
	}
	src, err := readSource(fs)
	if err != nil {
		return err
	}

	eng, err := startEngines(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.close()

	markup, err := eng.render(ctx, cfg, src)
	if err != nil {
		return err
	}
	live, err := svgdom.Parse(markup)
	if err != nil {
		return fmt.Errorf("renderer output: %w", err)
	}
	art, err := eng.exporter.Export(ctx, live, format)
	if err != nil {
		return fmt.Errorf("%s (%w)", export.Message(err), err)
	}

	dest := *out
	if dest == "" {
		dest = art.Filename
	}
	path, err := export.WriteFile(dest, art)
	if err != nil {
		return err
	}
	logger.Info("diagrammer: exported", "path", path, "width", art.Width, "height", art.Height)
	fmt.Println(path)
	return nil
}

// --- share / decode ---

func runShare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("share", flag.ExitOnError)
	var c common
	c.register(fs)
	base := fs.String("base", "", "editor URL (default http://localhost<addr>/)")
	cp := fs.Bool("copy", false, "copy the link to the clipboard")
	fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	src, err := readSource(fs)
	if err != nil {
		return err
	}
	if *base == "" {
		*base = "http://localhost" + cfg.Addr + "/"
	}
	link, err := share.URL(*base, src)
	if err != nil {
		return err
	}
	fmt.Println(link)
	if *cp {
		if err := clipboard.WriteAll(link); err != nil {
			logger.Warn("diagrammer: clipboard", "error", err)
			return errors.New(editor.MsgURLCopyFailed)
		}
		fmt.Fprintln(os.Stderr, editor.MsgURLCopied)
	}
	return nil
}

func runDecode(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	var c common
	c.register(fs)
	out := fs.String("o", "", "write the source to this file instead of stdout")
	fs.Parse(args)

	if _, _, err := c.load(); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected one share link or code")
	}
	raw := fs.Arg(0)
	if raw == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		raw = string(data)
	}
	src, ok, err := share.FromURL(raw)
	if err != nil || !ok {
		return errors.New(share.MsgURLDecodeFailed)
	}
	return writeOutput(*out, []byte(src))
}

// --- mcp ---

func runMCP(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	eng, err := startEngines(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.close()

	ws, _, err := newWorkspace(cfg, db, eng, observability.Discard, logger)
	if err != nil {
		return err
	}
	defer ws.Close()
	if err := ws.Open(ctx, ""); err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "diagrammer", Version: version}, nil)
	editor.RegisterMCP(srv, ws, logger)
	logger.Info("diagrammer: mcp on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
