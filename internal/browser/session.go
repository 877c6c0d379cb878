// Package browser owns the Chrome session lifecycle: launching the browser,
// authenticating against the portal, and tearing everything down. Portal
// tasks run inside the session's context; they never manage the browser
// themselves.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"dopagent/internal/config"
	"dopagent/internal/portal"
)

// State is the session lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateAuthenticating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resolver produces a text guess for a CAPTCHA screenshot. A resolver
// failure is not fatal to login; the attempt proceeds with an empty guess
// and the bounded retry loop absorbs the rejection.
type Resolver interface {
	Solve(ctx context.Context, screenshot []byte) (string, error)
}

// Session is a single authenticated browser session. One task at a time
// runs against it; the service layer serializes access.
type Session struct {
	cfg         config.BrowserConfig
	portalCfg   config.PortalConfig
	resolver    Resolver
	logger      *slog.Logger
	downloadDir string

	mu          sync.Mutex
	state       atomic.Int32
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewSession builds a closed session that routes downloads into downloadDir.
// Open must be called before any task runs.
func NewSession(bcfg config.BrowserConfig, pcfg config.PortalConfig, resolver Resolver, downloadDir string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:         bcfg,
		portalCfg:   pcfg,
		resolver:    resolver,
		downloadDir: downloadDir,
		logger:      logger,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Ctx returns the browser tab context tasks run against. Only valid between
// a successful Open and Close.
func (s *Session) Ctx() context.Context {
	return s.ctx
}

// DownloadDir returns the session's private download directory.
func (s *Session) DownloadDir() string {
	return s.downloadDir
}

// Open launches Chrome, navigates to the portal entry page, and routes
// downloads into the session's directory.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateClosed), int32(StateOpening)) {
		return fmt.Errorf("cannot open session in state %s", s.State())
	}

	if err := os.MkdirAll(s.downloadDir, 0755); err != nil {
		s.state.Store(int32(StateFailed))
		return fmt.Errorf("failed to prepare download directory: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(1500, 900),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelCtx := chromedp.NewContext(allocCtx)
	s.ctx = tabCtx
	s.cancelCtx = cancelCtx
	s.cancelAlloc = cancelAlloc

	err := chromedp.Run(tabCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(s.downloadDir),
		chromedp.Navigate(s.portalCfg.EntryURL),
		chromedp.WaitVisible(portal.ByID(portal.IDUserPrincipal), chromedp.ByQuery),
	)
	if err != nil {
		s.teardownLocked()
		s.state.Store(int32(StateFailed))
		return fmt.Errorf("failed to open portal: %w", err)
	}

	s.logger.Info("Browser session opened",
		slog.Bool("headless", s.cfg.Headless),
		slog.String("download_dir", s.downloadDir))
	s.state.Store(int32(StateAuthenticating))
	return nil
}

// Login authenticates the session. Each attempt resolves the CAPTCHA,
// submits the form, and checks whether the landing page rendered; the
// portal re-renders the login form silently on a wrong guess, so attempts
// are retried up to the configured bound with a fixed backoff.
func (s *Session) Login(ctx context.Context) error {
	if s.State() != StateAuthenticating {
		return fmt.Errorf("cannot login in state %s", s.State())
	}

	maxAttempts := s.cfg.LoginMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.attemptLogin(ctx); err != nil {
			s.state.Store(int32(StateFailed))
			return fmt.Errorf("login attempt %d: %w", attempt, err)
		}
		if s.landed(ctx) {
			s.state.Store(int32(StateReady))
			s.logger.Info("Login succeeded", slog.Int("attempt", attempt))
			return nil
		}
		s.logger.Warn("Login attempt rejected, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts))
		select {
		case <-ctx.Done():
			s.state.Store(int32(StateFailed))
			return ctx.Err()
		case <-time.After(s.cfg.LoginBackoff):
		}
	}

	s.state.Store(int32(StateFailed))
	return fmt.Errorf("login failed after %d attempts", maxAttempts)
}

// attemptLogin fills the form, resolves the CAPTCHA, and submits. It does
// not decide success; landed does.
func (s *Session) attemptLogin(ctx context.Context) error {
	runCtx := s.ctx

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(portal.ByID(portal.IDUserPrincipal), chromedp.ByQuery),
		chromedp.Clear(portal.ByID(portal.IDUserPrincipal), chromedp.ByQuery),
		chromedp.SendKeys(portal.ByID(portal.IDUserPrincipal), s.portalCfg.UserID, chromedp.ByQuery),
		chromedp.Clear(portal.ByID(portal.IDAccessCode), chromedp.ByQuery),
		chromedp.SendKeys(portal.ByID(portal.IDAccessCode), s.portalCfg.Password, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to enter credentials: %w", err)
	}

	var shot []byte
	if err := chromedp.Run(runCtx, chromedp.Screenshot(portal.ByID(portal.IDCaptchaImage), &shot, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to capture captcha: %w", err)
	}

	guess, err := s.resolver.Solve(ctx, shot)
	if err != nil {
		// Proceed with an empty guess; the operator can type it in
		// headful mode during the review pause.
		s.logger.Warn("CAPTCHA resolution failed", slog.String("error", err.Error()))
		guess = ""
	}

	err = chromedp.Run(runCtx,
		chromedp.Clear(portal.ByID(portal.IDCaptchaInput), chromedp.ByQuery),
		chromedp.SendKeys(portal.ByID(portal.IDCaptchaInput), guess, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to enter captcha: %w", err)
	}

	if s.cfg.ReviewPause > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReviewPause):
		}
	}

	if err := chromedp.Run(runCtx, chromedp.Click(portal.ByID(portal.IDLoginSubmit), chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to submit login: %w", err)
	}
	return nil
}

// landed polls for the Accounts control within the landing wait window.
// Its presence is the only reliable success signal the portal gives.
func (s *Session) landed(ctx context.Context) bool {
	deadline := time.Now().Add(s.cfg.LandingWait)
	for time.Now().Before(deadline) {
		var present bool
		expr := fmt.Sprintf(`document.getElementById(%q) !== null`, portal.IDAccountsTab)
		if err := chromedp.Run(s.ctx, chromedp.Evaluate(expr, &present)); err == nil && present {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
	return false
}

// Close shuts the browser down and removes the download directory. Safe to
// call in any state, including on a session that never opened.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return nil
	}
	s.teardownLocked()
	s.state.Store(int32(StateClosed))
	s.logger.Info("Browser session closed")
	return nil
}

func (s *Session) teardownLocked() {
	if s.cancelCtx != nil {
		s.cancelCtx()
		s.cancelCtx = nil
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
		s.cancelAlloc = nil
	}
	if s.downloadDir != "" {
		if err := os.RemoveAll(s.downloadDir); err != nil {
			s.logger.Warn("Failed to remove download directory",
				slog.String("dir", s.downloadDir),
				slog.String("error", err.Error()))
		}
	}
	s.ctx = nil
}
