package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"spese-insights/internal/anomaly"
	"spese-insights/internal/core"
	"spese-insights/internal/forecast"
)

// AnomalyReviewer records a reviewer verdict on a stored anomaly.
type AnomalyReviewer interface {
	ReviewAnomaly(ctx context.Context, expenseID int64, confirmed bool, at time.Time) (core.Anomaly, error)
}

// Insights is the entry point shared by the HTTP API, the worker and the CLI.
// Concurrent identical runs for the same user share one execution, which is
// not cancelled when the caller that started it goes away.
type Insights struct {
	detector  *anomaly.Detector
	forecasts *forecast.Service
	reviewer  AnomalyReviewer
	clock     forecast.Clock
	group     singleflight.Group
}

func NewInsights(detector *anomaly.Detector, forecasts *forecast.Service, reviewer AnomalyReviewer, clock forecast.Clock) *Insights {
	if clock == nil {
		clock = time.Now
	}
	return &Insights{
		detector:  detector,
		forecasts: forecasts,
		reviewer:  reviewer,
		clock:     clock,
	}
}

func dateKey(d *core.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func (s *Insights) DetectAnomalies(ctx context.Context, req anomaly.DetectRequest) ([]core.AnomalyView, error) {
	key := fmt.Sprintf("detect:%d:%g:%s:%s:%s", req.UserID, req.Threshold, dateKey(req.From), dateKey(req.To), req.Method)
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.detector.Detect(context.WithoutCancel(ctx), req)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.DebugContext(ctx, "Shared anomaly detection run", "user_id", req.UserID)
	}
	return v.([]core.AnomalyView), nil
}

// PreviewAnomalies scores the window without persisting anything.
func (s *Insights) PreviewAnomalies(ctx context.Context, req anomaly.DetectRequest) ([]core.AnomalyResult, error) {
	return s.detector.Preview(ctx, req)
}

func (s *Insights) ReviewAnomaly(ctx context.Context, expenseID int64, confirmed bool) (core.Anomaly, error) {
	if expenseID <= 0 {
		return core.Anomaly{}, fmt.Errorf("%w: expense id %d", core.ErrNotFound, expenseID)
	}
	a, err := s.reviewer.ReviewAnomaly(ctx, expenseID, confirmed, s.clock())
	if err != nil {
		return core.Anomaly{}, err
	}
	slog.InfoContext(ctx, "Anomaly reviewed", "expense_id", expenseID, "confirmed", confirmed)
	return a, nil
}

func views(rows []core.Forecast) []core.ForecastView {
	out := make([]core.ForecastView, len(rows))
	for i, f := range rows {
		out[i] = f.View()
	}
	return out
}

func (s *Insights) runForecast(ctx context.Context, kind string, userID int64, months int,
	run func(context.Context, int64, int) ([]core.Forecast, error)) ([]core.ForecastView, error) {
	key := fmt.Sprintf("%s:%d:%d", kind, userID, months)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return run(context.WithoutCancel(ctx), userID, months)
	})
	if err != nil {
		return nil, err
	}
	return views(v.([]core.Forecast)), nil
}

// Forecast projects the user's total spending.
func (s *Insights) Forecast(ctx context.Context, userID int64, months int) ([]core.ForecastView, error) {
	return s.runForecast(ctx, "forecast", userID, months, s.forecasts.ForecastForUser)
}

// ForecastByCategory projects spending per category owned by the user.
func (s *Insights) ForecastByCategory(ctx context.Context, userID int64, months int) ([]core.ForecastView, error) {
	return s.runForecast(ctx, "forecast-categories", userID, months, s.forecasts.ForecastByCategory)
}

func (s *Insights) ForecastHistory(ctx context.Context, userID int64) ([]string, error) {
	return s.forecasts.PastForecastMonths(ctx, userID)
}

func (s *Insights) ForecastsForMonth(ctx context.Context, userID int64, month string) ([]core.ForecastView, error) {
	rows, err := s.forecasts.ForecastsForMonth(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	return views(rows), nil
}

// AnalysisRequest parameters a full analysis run; zero values take defaults.
type AnalysisRequest struct {
	UserID    int64
	Months    int
	Threshold float64
	Method    core.DetectionMethod
}

// AnalysisSummary counts what one analysis run produced.
type AnalysisSummary struct {
	Anomalies         int
	Forecasts         int
	CategoryForecasts int
}

// RunAnalysis detects anomalies and refreshes both forecasts for one user.
// Input problems are reported as ErrInvalidRequest so queue consumers can drop them.
func (s *Insights) RunAnalysis(ctx context.Context, req AnalysisRequest) (AnalysisSummary, error) {
	var sum AnalysisSummary

	found, err := s.DetectAnomalies(ctx, anomaly.DetectRequest{
		UserID:    req.UserID,
		Threshold: req.Threshold,
		Method:    req.Method,
	})
	if err != nil {
		return sum, classify(fmt.Errorf("detect anomalies: %w", err))
	}
	sum.Anomalies = len(found)

	total, err := s.Forecast(ctx, req.UserID, req.Months)
	if err != nil {
		return sum, classify(fmt.Errorf("forecast: %w", err))
	}
	sum.Forecasts = len(total)

	byCategory, err := s.ForecastByCategory(ctx, req.UserID, req.Months)
	if err != nil {
		return sum, classify(fmt.Errorf("forecast by category: %w", err))
	}
	sum.CategoryForecasts = len(byCategory)

	slog.InfoContext(ctx, "Analysis complete",
		"user_id", req.UserID,
		"anomalies", sum.Anomalies,
		"forecasts", sum.Forecasts,
		"category_forecasts", sum.CategoryForecasts)
	return sum, nil
}

// ErrInvalidRequest wraps input errors that retrying cannot fix.
var ErrInvalidRequest = errors.New("invalid analysis request")

// IsInputError reports whether err comes from caller input rather than storage.
func IsInputError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidThreshold,
		core.ErrUnknownMethod,
		core.ErrInvalidHorizon,
		core.ErrInvalidUser,
		core.ErrInvalidRange,
		core.ErrInvalidMonth,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classify(err error) error {
	if IsInputError(err) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return err
}
