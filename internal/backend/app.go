package backend

import (
	"spese-insights/internal/anomaly"
	"spese-insights/internal/forecast"
	"spese-insights/internal/services"
	"spese-insights/internal/sheets"
)

// App is the set of services built on top of one backend.
type App struct {
	Store     Store
	Insights  *services.Insights
	Forecasts *forecast.Service
	Expenses  *services.ExpenseService
	// Reports is nil when no report writer is configured.
	Reports *services.ReportService
}

// NewApp wires the services over res. reports may be nil; clock nil means time.Now.
func NewApp(res *BackendResult, reports sheets.ReportWriter, clock forecast.Clock) *App {
	forecasts := forecast.NewService(res.Store, res.Store, clock)
	return &App{
		Store:     res.Store,
		Insights:  services.NewInsights(anomaly.NewDetector(res.Store, res.Store), forecasts, res.Store, clock),
		Forecasts: forecasts,
		Expenses:  services.NewExpenseService(res.Store, res.Publisher),
		Reports:   services.NewReportService(res.Store, forecasts, reports),
	}
}
