package cli

import (
	"context"
	"fmt"

	"spese-insights/internal/backend"
	"spese-insights/internal/config"
	applog "spese-insights/internal/log"
	"spese-insights/internal/sheets"
	gsheet "spese-insights/internal/sheets/google"
)

// OpenApp creates the configured backend and wires the services over it.
// The Sheets exporter is attached only when a spreadsheet id is configured.
func OpenApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, requireAMQP bool) (*backend.App, func() error, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	bcfg.RequireAMQP = requireAMQP

	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}

	var reports sheets.ReportWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetPrefix)
		if err != nil {
			_ = res.Cleanup()
			return nil, nil, fmt.Errorf("google sheets: %w", err)
		}
		reports = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	return backend.NewApp(res, reports, nil), res.Cleanup, nil
}
