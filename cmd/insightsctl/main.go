package main

import (
	"context"
	"fmt"
	"os"

	"spese-insights/internal/backend"
	"spese-insights/internal/cli"
	"spese-insights/internal/core"
	applog "spese-insights/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := cli.SetupLogger(cfg.LogLevel, applog.ComponentCLI)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	open := func(ctx context.Context) (*backend.App, func() error, error) {
		return cli.OpenApp(ctx, cfg, logger, false)
	}
	root := cli.NewRootCmd(open, cli.Defaults{
		Threshold: cfg.AnomalyThreshold,
		Method:    core.DetectionMethod(cfg.AnomalyMethod),
		Months:    cfg.ForecastMonths,
	})

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
