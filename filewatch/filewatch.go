// Package filewatch feeds a diagram source file into the editor whenever it
// changes on disk.
//
// The parent directory is watched rather than the file itself: most editors
// save by writing a temp file and renaming it over the original, which drops
// a watch held on the old inode.
package filewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hazyhaar/diagrammer/debounce"
	"github.com/hazyhaar/diagrammer/files"
)

// Sink receives the new file content.
type Sink func(ctx context.Context, source string) error

// Options configures a Watcher.
type Options struct {
	// Settle coalesces the bursts of events one save produces. Default: 100ms.
	Settle time.Duration
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Settle <= 0 {
		o.Settle = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher watches one file.
type Watcher struct {
	path    string
	sink    Sink
	opts    Options
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	last string
	ctx  context.Context
}

// New creates a Watcher for path. The file must exist.
func New(path string, sink Sink, opts Options) (*Watcher, error) {
	opts.defaults()
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filewatch: %w", err)
	}
	if fi, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("filewatch: %w", err)
	} else if fi.IsDir() {
		return nil, fmt.Errorf("filewatch: %s is a directory", path)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filewatch: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("filewatch: watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, sink: sink, opts: opts, watcher: fw}, nil
}

// Path is the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Load reads the file and hands it to the sink if it differs from the last
// content delivered.
func (w *Watcher) Load(ctx context.Context) error {
	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("filewatch: %w", err)
	}
	defer f.Close()
	src, err := files.Read(f)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if src == w.last {
		w.mu.Unlock()
		return nil
	}
	w.last = src
	w.mu.Unlock()

	if err := w.sink(ctx, src); err != nil {
		return fmt.Errorf("filewatch: deliver %s: %w", filepath.Base(w.path), err)
	}
	w.opts.Logger.Info("filewatch: reloaded", "path", w.path, "bytes", len(src))
	return nil
}

// Run delivers the current content, then every change, until ctx is
// cancelled. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	log := w.opts.Logger

	if err := w.Load(ctx); err != nil {
		log.Warn("filewatch: initial load", "error", err)
	}

	d := debounce.New(w.opts.Settle, func() {
		if err := w.Load(ctx); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("filewatch: reload", "error", err)
		}
	})
	defer d.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				d.Trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("filewatch: watcher error", "error", err)
		}
	}
}

// Close stops watching without waiting for Run.
func (w *Watcher) Close() error { return w.watcher.Close() }
