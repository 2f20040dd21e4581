package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"QuantLens/internal/usecase"
	"QuantLens/pkg/config"
	xhttp "QuantLens/pkg/http"
	applogger "QuantLens/pkg/logger"
)

// Refresher is the background snapshot job driven by the app lifecycle.
type Refresher interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	refresher  Refresher
}

// New creates a new App instance with all dependencies.
// Infrastructure clients are released by the DI cleanup after Run returns.
func New(cfg *config.Config, log *applogger.Logger, httpServer *xhttp.Server, refresher *usecase.SnapshotRefresher) *App {
	a := &App{cfg: cfg, log: log, httpServer: httpServer}
	if refresher != nil {
		a.refresher = refresher
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the HTTP server and the refresh job and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	if a.refresher != nil && a.cfg.Refresh.Enabled {
		a.refresher.Start(jobCtx)
		a.log.Info("snapshot refresh scheduled", applogger.String("schedule", a.cfg.Refresh.Schedule))
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.refresher != nil && a.cfg.Refresh.Enabled {
		if err := a.refresher.Stop(ctx); err != nil {
			a.log.Warn("refresher stop error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return nil
}
