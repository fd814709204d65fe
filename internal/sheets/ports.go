// Package sheets defines the report export ports.
package sheets

import (
	"context"

	"spese-insights/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportWriter replaces a user's exported report tabs with fresh rows.
	ReportWriter interface {
		WriteForecasts(ctx context.Context, userID int64, rows []core.ForecastView) error
		WriteAnomalies(ctx context.Context, userID int64, rows []core.AnomalyView) error
	}
)
