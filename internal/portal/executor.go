package portal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// pageSize is the portal's fixed listing page size.
const pageSize = 10

// Config tunes the executor's waits and download handling. Values come from
// the application's browser configuration.
type Config struct {
	StepTimeout     time.Duration
	OverlayTimeout  time.Duration
	DownloadTimeout time.Duration
	PreviewRetries  int

	// DownloadDir is the session's browser download directory. Files the
	// portal serves land here before a task claims them.
	DownloadDir string

	// Progress, when set, is called with a running row count while the
	// account-list export scrapes the print preview.
	Progress func(task string, count int)
}

// Executor runs portal tasks against an authenticated browser context. Each
// task assumes the session is on the post-login landing page when it starts;
// a missing control at any step fails the whole task with no partial
// recovery.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if cfg.OverlayTimeout <= 0 {
		cfg.OverlayTimeout = 20 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}
	if cfg.PreviewRetries <= 0 {
		cfg.PreviewRetries = 30
	}
	return &Executor{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "portal_executor")),
	}
}

// step runs actions under the per-step wait window.
func (e *Executor) step(ctx context.Context, name string, actions ...chromedp.Action) error {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()
	if err := chromedp.Run(sctx, actions...); err != nil {
		return fmt.Errorf("step %s: %w", name, err)
	}
	e.logger.Debug("Step completed", slog.String("step", name))
	return nil
}

func (e *Executor) click(ctx context.Context, name, id string) error {
	return e.step(ctx, name, chromedp.Click(ByID(id), chromedp.ByQuery))
}

func (e *Executor) clickXPath(ctx context.Context, name, xpath string) error {
	return e.step(ctx, name, chromedp.Click(xpath, chromedp.BySearch))
}

// typeInto clears a field and types text into it.
func (e *Executor) typeInto(ctx context.Context, name, id, text string) error {
	return e.step(ctx, name,
		chromedp.Clear(ByID(id), chromedp.ByQuery),
		chromedp.SendKeys(ByID(id), text, chromedp.ByQuery),
	)
}

// selectValue picks an option of a select control by its value attribute.
func (e *Executor) selectValue(ctx context.Context, name, id, value string) error {
	return e.step(ctx, name, chromedp.SetValue(ByID(id), value, chromedp.ByQuery))
}

func (e *Executor) text(ctx context.Context, name, id string) (string, error) {
	var out string
	if err := e.step(ctx, name, chromedp.Text(ByID(id), &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return out, nil
}

// present reports whether a control exists on the current page right now,
// without waiting for it to appear.
func (e *Executor) present(ctx context.Context, id string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, ByID(id))
	sctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()
	if err := chromedp.Run(sctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("probe %s: %w", id, err)
	}
	return found, nil
}

// waitOverlayGone blocks until the portal's report-generation overlay has
// cleared, or the overlay timeout elapses.
func (e *Executor) waitOverlayGone(ctx context.Context, name string) error {
	deadline := time.Now().Add(e.cfg.OverlayTimeout)
	expr := fmt.Sprintf(`document.querySelector(%q) === null`, overlaySelector)
	for {
		var gone bool
		sctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
		err := chromedp.Run(sctx, chromedp.Evaluate(expr, &gone))
		cancel()
		if err != nil {
			return fmt.Errorf("step %s: %w", name, err)
		}
		if gone {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("step %s: overlay still blocking after %s", name, e.cfg.OverlayTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("step %s: %w", name, ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// openAccountsSection brings the session from the landing page to the
// Accounts section every task starts from.
func (e *Executor) openAccountsSection(ctx context.Context) error {
	return e.click(ctx, "open accounts section", IDAccountsTab)
}

// pageCounts splits n listing rows into the portal's fixed pages: all full
// pages of pageSize rows plus a short last page for the remainder.
func pageCounts(n int) []int {
	if n <= 0 {
		return nil
	}
	full := n / pageSize
	counts := make([]int, 0, full+1)
	for i := 0; i < full; i++ {
		counts = append(counts, pageSize)
	}
	if rem := n % pageSize; rem > 0 {
		counts = append(counts, rem)
	}
	return counts
}
