package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbagent/internal/server"
	"github.com/alanyoungcy/arbagent/internal/server/handler"
	"github.com/alanyoungcy/arbagent/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP API and WebSocket stream. The scanner stays idle
// until started through the API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHub(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.stopScannerOnExit(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// ScannerMode runs the scanner loop from config with no HTTP surface.
func (a *App) ScannerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scanner mode")
	if err := a.startScanner(ctx, deps); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHub(ctx, g, deps)
	a.stopScannerOnExit(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// FullMode serves the API and runs the configured scanner loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	if err := a.startScanner(ctx, deps); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHub(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.stopScannerOnExit(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// startHub runs the WebSocket hub. It runs in every mode because it is the
// event publisher when Redis is absent.
func (a *App) startHub(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})
}

// startScanner starts the loop described by the scanner config section.
func (a *App) startScanner(ctx context.Context, deps *Dependencies) error {
	sc := a.cfg.Scanner
	model := sc.Model
	if model == "" {
		model = a.cfg.Inference.DefaultModel
	}
	return deps.ScannerService.Start(ctx, service.ScannerConfig{
		Enabled:   true,
		Interval:  sc.Interval.Duration,
		Assets:    sc.Assets,
		Agent:     sc.Agent,
		Model:     model,
		Provider:  sc.Provider,
		MinSpread: &sc.MinSpread,
		Amount:    sc.Amount,
		Slippage:  &sc.Slippage,
		FeesBps:   &sc.FeesBps,
	})
}

// stopScannerOnExit shuts the scanner down once ctx is cancelled, letting the
// in-flight iteration finish within shutdownTimeout.
func (a *App) stopScannerOnExit(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		<-ctx.Done()
		deps.ScannerService.Stop()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.ScannerService.Shutdown(shutCtx)
	})
}

// startHTTPServer adds the API server and its graceful shutdown to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	model := a.cfg.Inference.DefaultModel

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Arb:     handler.NewArbHandler(deps.Scanner, deps.Pipeline, deps.ScannerService, model, a.logger),
		Trades:  handler.NewTradeHandler(deps.Pipeline, model, a.logger),
		Storage: handler.NewStorageHandler(deps.Plans, a.logger),
	}
	if deps.ExecutionStore != nil || deps.AuditStore != nil {
		handlers.Executions = handler.NewExecutionHandler(deps.ExecutionStore, deps.AuditStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, deps.Hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.Bool("auth", a.cfg.Server.APIKey != ""),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ignoreCanceled treats a cancelled root context as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
