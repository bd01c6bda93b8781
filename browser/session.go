package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// SessionConfig describes the document a Session keeps loaded.
type SessionConfig struct {
	// HTML is written into a blank page.
	HTML string
	// Ready is a JS predicate polled until it returns true (e.g. a library
	// global being defined). Empty = no wait.
	Ready string
	// Setup runs once after Ready, e.g. library initialization.
	Setup string
}

// Session is one long-lived page with a fixed document. Evaluations are
// serialized. The page is opened lazily and reopened once the manager has
// relaunched Chrome.
type Session struct {
	mgr  *Manager
	cfg  SessionConfig
	mu   sync.Mutex
	page *rod.Page
	gen  uint64
}

// NewSession creates a session bound to m.
func (m *Manager) NewSession(cfg SessionConfig) *Session {
	return &Session{mgr: m, cfg: cfg}
}

// Eval runs js (a function expression) with args on the session page and
// returns its JSON result. Promises are awaited.
func (s *Session) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, gen, release, err := s.mgr.acquire()
	if err != nil {
		return gson.JSON{}, err
	}
	defer release()

	page, err := s.ensure(ctx, b, gen)
	if err != nil {
		return gson.JSON{}, err
	}
	res, err := page.Context(ctx).Eval(js, args...)
	if err != nil {
		var evalErr *rod.EvalError
		if !errors.As(err, &evalErr) {
			// The page itself is gone or broken; open a fresh one next time.
			s.closePage()
		}
		return gson.JSON{}, fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value, nil
}

// Close closes the session page.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closePage()
	return nil
}

func (s *Session) ensure(ctx context.Context, b *rod.Browser, gen uint64) (*rod.Page, error) {
	if s.page != nil && s.gen == gen {
		return s.page, nil
	}
	// A page from an earlier generation died with its Chrome.
	s.page = nil
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	if err := page.SetDocumentContent(s.cfg.HTML); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: load document: %w", err)
	}
	if s.cfg.Ready != "" {
		if err := page.Context(ctx).Wait(rod.Eval(s.cfg.Ready)); err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: wait ready: %w", err)
		}
	}
	if s.cfg.Setup != "" {
		if _, err := page.Context(ctx).Eval(s.cfg.Setup); err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: setup: %w", err)
		}
	}
	s.page, s.gen = page, gen
	s.mgr.cfg.Logger.Debug("browser: session page ready", "generation", gen)
	return page, nil
}

func (s *Session) closePage() {
	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
}
