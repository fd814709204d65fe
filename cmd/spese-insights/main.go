package main

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"spese-insights/internal/cli"
	"spese-insights/internal/core"
	apphttp "spese-insights/internal/http"
	applog "spese-insights/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		// LOG_LEVEL may be the invalid setting, so report with the default logger
		cli.Fatal(applog.New(applog.DefaultConfig()), "Invalid configuration", err)
	}
	logger, err := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)
	if err != nil {
		cli.Fatal(applog.New(applog.DefaultConfig()), "Invalid log level", err)
	}

	logger.Info("Starting spese-insights", "addr", cfg.Addr(), "backend", cfg.DataBackend)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	app, cleanup, err := cli.OpenApp(ctx, cfg, logger, false)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	srv := apphttp.NewServer(apphttp.Config{
		Addr: cfg.Addr(),
		Defaults: apphttp.Defaults{
			Threshold: cfg.AnomalyThreshold,
			Method:    core.DetectionMethod(cfg.AnomalyMethod),
			Months:    cfg.ForecastMonths,
		},
		Logger: logger,
	}, app.Insights, app.Store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.LogError(context.Background(), "HTTP server stopped with error", err, applog.OpShutdown, nil)
		return
	}
	m := srv.Metrics()
	logger.Info("Server stopped", "total_requests", m.TotalRequests, "server_errors", m.ServerErrors)
}
