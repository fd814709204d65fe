package main

import (
	"context"
	"errors"

	"spese-insights/internal/amqp"
	"spese-insights/internal/cli"
	"spese-insights/internal/core"
	applog "spese-insights/internal/log"
	"spese-insights/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(applog.New(applog.DefaultConfig()), "Invalid configuration", err)
	}
	logger, err := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)
	if err != nil {
		cli.Fatal(applog.New(applog.DefaultConfig()), "Invalid log level", err)
	}

	logger.Info("Starting insights-worker",
		"backend", cfg.DataBackend,
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	app, cleanup, err := cli.OpenApp(ctx, cfg, logger, true)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}

	// the worker consumes on its own connection so publishing never blocks delivery
	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		_ = cleanup()
		cli.Fatal(logger, "Failed to initialize AMQP consumer", err)
	}

	var exporter worker.Exporter
	if app.Reports != nil {
		exporter = app.Reports
	}
	w := worker.NewAnalysisWorker(app.Insights, exporter, worker.Defaults{
		Months:    cfg.ForecastMonths,
		Threshold: cfg.AnomalyThreshold,
		Method:    core.DetectionMethod(cfg.AnomalyMethod),
	})

	err = w.Run(ctx, consumer, func() error {
		return errors.Join(consumer.Close(), cleanup())
	})
	if err != nil {
		logger.LogError(context.Background(), "Worker stopped with error", err, applog.OpShutdown, nil)
		return
	}
	logger.Info("Worker stopped")
}
