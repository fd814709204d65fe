package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spese-insights/internal/core"
	"spese-insights/internal/sheets"
)

type (
	// AnomalyLister reads stored anomalies without running detection.
	AnomalyLister interface {
		ListAnomalies(ctx context.Context, userID int64, from, to *core.Date) ([]core.AnomalyView, error)
	}

	// ForecastLister reads the stored forecasts that are still ahead.
	ForecastLister interface {
		UpcomingForecasts(ctx context.Context, userID int64) ([]core.Forecast, error)
	}
)

// ReportService copies stored results into an external report.
type ReportService struct {
	anomalies AnomalyLister
	forecasts ForecastLister
	writer    sheets.ReportWriter
}

// NewReportService returns nil when writer is nil so callers can treat export as optional.
func NewReportService(anomalies AnomalyLister, forecasts ForecastLister, writer sheets.ReportWriter) *ReportService {
	if writer == nil {
		return nil
	}
	return &ReportService{
		anomalies: anomalies,
		forecasts: forecasts,
		writer:    writer,
	}
}

// ExportReport rewrites the user's forecast and anomaly tabs. Both tabs are
// attempted even when the first write fails.
func (s *ReportService) ExportReport(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: %d", core.ErrInvalidUser, userID)
	}
	anomalies, err := s.anomalies.ListAnomalies(ctx, userID, nil, nil)
	if err != nil {
		return fmt.Errorf("list anomalies: %w", err)
	}
	rows, err := s.forecasts.UpcomingForecasts(ctx, userID)
	if err != nil {
		return fmt.Errorf("list forecasts: %w", err)
	}

	var errs []error
	if err := s.writer.WriteForecasts(ctx, userID, views(rows)); err != nil {
		errs = append(errs, fmt.Errorf("write forecasts: %w", err))
	}
	if err := s.writer.WriteAnomalies(ctx, userID, anomalies); err != nil {
		errs = append(errs, fmt.Errorf("write anomalies: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Report exported",
		"user_id", userID,
		"forecasts", len(rows),
		"anomalies", len(anomalies))
	return nil
}
