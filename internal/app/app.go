// Package app assembles the agent: configuration, logging, the ledger, the
// task service, and the HTTP server that fronts them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dopagent/internal/config"
	apierrors "dopagent/internal/errors"
	"dopagent/internal/files"
	"dopagent/internal/infrastructure"
	"dopagent/internal/ledger"
	"dopagent/internal/service"
	handlers "dopagent/internal/transport/http"
	ws "dopagent/internal/websocket"
)

// Version is stamped at build time.
var Version = "dev"

// Application is the assembled agent.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Router  *chi.Mux
	Server  *http.Server
	Hub     *ws.Hub
	Store   *ledger.Store
	Files   *files.Manager
	Service *service.TaskService
}

// NewApplication wires the agent from the settings file at configPath.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Agent starting", slog.String("version", Version))

	fm := files.NewManager(cfg.Paths)
	if err := fm.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to prepare directories: %w", err)
	}

	store := ledger.NewStore(cfg.Paths.LedgerFile, logger)
	hub := ws.NewHub(logger)
	factory := service.NewChromeFactory(cfg, fm, logger)
	svc := service.NewTaskService(store, fm, factory, hub, logger)

	application := &Application{
		Config:  cfg,
		Logger:  logger,
		Hub:     hub,
		Store:   store,
		Files:   fm,
		Service: svc,
	}
	application.Router = application.buildRouter()
	application.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      application.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return application, nil
}

func (a *Application) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	taskHandler := handlers.NewTaskHandler(a.Service, a.Logger)
	accountsHandler := handlers.NewAccountsHandler(a.Service, a.Logger)
	healthHandler := handlers.NewHealthHandler(Version)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Handle)
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/lot", taskHandler.StartLot)
			r.Post("/sync", taskHandler.StartSync)
			r.Post("/aslaas", taskHandler.StartCrossRefUpdate)
			r.Post("/report", taskHandler.StartReportDownload)
		})
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", accountsHandler.List)
			r.Get("/unlinked", accountsHandler.Unlinked)
		})
	})
	r.Get("/ws", a.Hub.ServeWS)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		if err := render.Render(w, req, apierrors.ErrNotFound); err != nil {
			a.Logger.Error("Failed to render not-found response", slog.String("error", err.Error()))
		}
	})

	return r
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully within the configured window.
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		a.Logger.Info("Shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	infrastructure.CloseLogFile()
	return nil
}
