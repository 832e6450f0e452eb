package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinFeed/internal/middleware"
	"FinFeed/internal/usecase"
	"FinFeed/pkg/config"
	xhttp "FinFeed/pkg/http"
	applogger "FinFeed/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	subs       *usecase.SubscriptionManager
	heartbeat  *usecase.Heartbeat
	pipeline   *middleware.RealtimePipeline
	proc       *usecase.QuoteProcessor
}

// New creates a new App instance. pipeline and proc are nil when no sink is configured.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	subs *usecase.SubscriptionManager,
	heartbeat *usecase.Heartbeat,
	pipeline *middleware.RealtimePipeline,
	proc *usecase.QuoteProcessor,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		subs:       subs,
		heartbeat:  heartbeat,
		pipeline:   pipeline,
		proc:       proc,
	}
}

// Run starts the application and blocks until interrupted or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.log.Info("sink pipeline started", applogger.String("backend", a.proc.Backend()))
	}

	if err := a.heartbeat.Start(ctx); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	a.log.Info("heartbeat started",
		applogger.String("probe", a.cfg.Heartbeat.ProbeSymbol),
		applogger.Duration("interval_ms", a.cfg.Heartbeat.Interval),
	)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case err := <-a.httpServer.Errors():
		runErr = err
	case <-ctx.Done():
	}

	a.shutdown()
	return runErr
}

// shutdown stops producers of work before their consumers. Infrastructure
// clients are closed by the DI cleanup afterwards.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+time.Second)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if syms := a.subs.SortedSymbols(); len(syms) > 0 {
		a.log.Info("closing poll loops", applogger.Strings("symbols", syms))
	}
	a.subs.Close()
	a.heartbeat.Stop()

	if a.pipeline != nil {
		a.log.Info("flushing sink pipeline", applogger.Int("pending", a.pipeline.Buffered()))
		a.pipeline.Stop()
	}

	a.log.Info("shutdown complete")
}
