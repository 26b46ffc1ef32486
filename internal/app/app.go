package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devfolio/portfolio-backend/internal/config"
	"github.com/devfolio/portfolio-backend/internal/health"
	"github.com/devfolio/portfolio-backend/internal/http/ws"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/service"
)

// Jobs collects the background workers the server runs alongside the HTTP
// listener. Nil fields are skipped, which keeps partial wiring in tests easy.
type Jobs struct {
	Relay   *service.Relay
	Stats   *service.StatsPoller
	Reaper  *service.Reaper
	Cleanup *service.CleanupJob
	Hub     *ws.Hub
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Readiness     *health.ProbeRunner

	jobs Jobs

	mu      sync.Mutex
	started bool
	stopFns []func()
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, readiness *health.ProbeRunner, jobs Jobs) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		Readiness:     readiness,
		jobs:          jobs,
	}
}

// StartBackground launches the relay, pollers and cleanup jobs. Calling it
// more than once is a no-op.
func (a *App) StartBackground(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	if a.jobs.Relay != nil {
		if err := a.jobs.Relay.Start(ctx); err != nil {
			return err
		}
		a.stopFns = append(a.stopFns, a.jobs.Relay.Stop)
	}
	if a.jobs.Stats != nil {
		a.jobs.Stats.Start(ctx)
		a.stopFns = append(a.stopFns, a.jobs.Stats.Stop)
	}
	if a.jobs.Reaper != nil {
		a.jobs.Reaper.Start(ctx)
		a.stopFns = append(a.stopFns, a.jobs.Reaper.Stop)
	}
	if a.jobs.Cleanup != nil {
		a.jobs.Cleanup.Start(ctx)
		a.stopFns = append(a.stopFns, a.jobs.Cleanup.Stop)
	}
	if a.jobs.Hub != nil {
		detach := a.jobs.Hub.Start()
		a.stopFns = append(a.stopFns, detach)
	}

	a.started = true
	return nil
}

// StopBackgroundTasks tears the workers down in reverse start order. Safe to
// call repeatedly.
func (a *App) StopBackgroundTasks() {
	a.mu.Lock()
	fns := a.stopFns
	a.stopFns = nil
	a.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests,
// stops the background workers and flushes telemetry.
func (a *App) Run(ctx context.Context) error {
	if err := a.StartBackground(ctx); err != nil {
		return err
	}
	defer a.StopBackgroundTasks()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.Server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := a.Config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return a.Server.Shutdown(drainCtx)
	})
	err := g.Wait()

	if a.Observability != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := a.Observability.Shutdown(flushCtx); shutdownErr != nil && a.Logger != nil {
			a.Logger.Warn("telemetry shutdown incomplete", "error", shutdownErr)
		}
	}
	return err
}
