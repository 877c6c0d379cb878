package service

import (
	"context"
	"log/slog"

	"dopagent/internal/browser"
	"dopagent/internal/captcha"
	"dopagent/internal/config"
	"dopagent/internal/files"
	"dopagent/internal/portal"
)

// Session is the browser session lifecycle a task drives.
type Session interface {
	Open(ctx context.Context) error
	Login(ctx context.Context) error
	Close() error
	Ctx() context.Context
	DownloadDir() string
}

// Executor is the set of portal tasks that can run inside a session.
type Executor interface {
	SubmitLot(ctx context.Context, entries []portal.LotEntry) (string, error)
	DownloadReport(ctx context.Context, refNo, destDir string) (string, error)
	UpdateCrossRefs(ctx context.Context, updates []portal.CrossRefUpdate) error
	ExportCrossRefs(ctx context.Context) (map[string]string, error)
	ExportAccountList(ctx context.Context) ([]portal.AccountRow, error)
}

// Factory builds sessions and executors. The executor depends on the
// session's download directory, which only exists once the session is built,
// so the two are constructed separately.
type Factory interface {
	NewSession() (Session, error)
	NewExecutor(downloadDir string, progress func(task string, count int)) Executor
}

// ChromeFactory builds real Chrome-backed sessions.
type ChromeFactory struct {
	cfg    *config.Config
	files  *files.Manager
	logger *slog.Logger
}

// NewChromeFactory creates the production factory.
func NewChromeFactory(cfg *config.Config, fm *files.Manager, logger *slog.Logger) *ChromeFactory {
	return &ChromeFactory{cfg: cfg, files: fm, logger: logger}
}

// NewSession prepares an empty download directory under the scratch space
// and builds a session over it. Tasks are serialized, so one cleared
// directory per session is safe and leaves no stale downloads behind a
// crash.
func (f *ChromeFactory) NewSession() (Session, error) {
	dir, err := f.files.FreshDir("session")
	if err != nil {
		return nil, err
	}
	var opts []captcha.Option
	if f.cfg.OCR.Endpoint != "" {
		opts = append(opts, captcha.WithEndpoint(f.cfg.OCR.Endpoint))
	}
	resolver := captcha.NewResolver(f.cfg.OCR.APIKey, f.cfg.OCR.Language, opts...)
	return browser.NewSession(f.cfg.Browser, f.cfg.Portal, resolver, dir, f.logger), nil
}

func (f *ChromeFactory) NewExecutor(downloadDir string, progress func(task string, count int)) Executor {
	return portal.NewExecutor(portal.Config{
		StepTimeout:     f.cfg.Browser.StepTimeout,
		OverlayTimeout:  f.cfg.Browser.OverlayTimeout,
		DownloadTimeout: f.cfg.Browser.DownloadTimeout,
		PreviewRetries:  f.cfg.Browser.PreviewRetries,
		DownloadDir:     downloadDir,
		Progress:        progress,
	}, f.logger)
}
