// Package browser owns the headless Chrome shared by the Mermaid renderer
// and the browser export decoder. Callers lease the process for the length
// of one operation; an idle process older than its lifetime is relaunched
// on the next lease.
package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

var (
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("browser: manager is closed")
	// ErrNoBrowser is returned before Start has brought Chrome up.
	ErrNoBrowser = errors.New("browser: no active browser")
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local one.
	RemoteURL string
	// Bin is the Chrome binary to launch. Empty uses launcher's lookup.
	Bin string
	// RecycleInterval is the lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration
	Logger          *slog.Logger
}

func (c *Config) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager holds the Chrome process and the leases on it.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	gen     uint64 // bumped on every launch; pages from older generations are dead
	users   int
	closed  bool
}

// NewManager creates a Manager. Call Start to bring Chrome up.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome or connects to the remote one. Calling it again
// while Chrome is up does nothing.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.browser != nil {
		return nil
	}
	return m.launch()
}

// Acquire leases the current browser. release must be called when the
// caller is done with it; Chrome is never recycled under a lease.
func (m *Manager) Acquire() (b *rod.Browser, release func(), err error) {
	b, _, release, err = m.acquire()
	return b, release, err
}

func (m *Manager) acquire() (*rod.Browser, uint64, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, 0, nil, ErrClosed
	}
	if m.browser == nil {
		return nil, 0, nil, ErrNoBrowser
	}
	if m.expired(time.Now()) {
		m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt))
		m.cleanup()
		if err := m.launch(); err != nil {
			return nil, 0, nil, fmt.Errorf("browser: relaunch: %w", err)
		}
	}
	m.users++
	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			m.users--
			m.mu.Unlock()
		})
	}
	return m.browser, m.gen, release, nil
}

// expired reports whether an idle Chrome has outlived RecycleInterval.
func (m *Manager) expired(now time.Time) bool {
	return m.users == 0 && now.Sub(m.startAt) > m.cfg.RecycleInterval
}

// Close shuts Chrome down. Later calls are no-ops.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch() error {
	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Leakless(true)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL, m.lnch = u, l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	m.gen++
	m.cfg.Logger.Info("browser: chrome ready", "url", wsURL, "remote", m.cfg.RemoteURL != "", "generation", m.gen)
	return nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
