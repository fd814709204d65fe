package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"spese-insights/internal/core"
)

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

type (
	// HistorySource aggregates expenses into monthly totals.
	// The range is half-open: from inclusive, before exclusive.
	HistorySource interface {
		MonthlyTotals(ctx context.Context, userID int64, categoryID *int64, from, before core.Date) ([]core.MonthlyTotal, error)
		ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	}

	Store interface {
		UpsertForecast(ctx context.Context, rec core.ForecastRecord) (core.Forecast, core.UpsertOutcome, error)
		ListForecasts(ctx context.Context, filter core.ForecastFilter) ([]core.Forecast, error)
	}
)

type Service struct {
	history HistorySource
	store   Store
	clock   Clock
}

func NewService(history HistorySource, store Store, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		history: history,
		store:   store,
		clock:   clock,
	}
}

// horizon applies the default and the cap to a requested month count.
func horizon(months int) (int, error) {
	switch {
	case months == 0:
		return DefaultHorizon, nil
	case months < 0:
		return 0, fmt.Errorf("%w: %d", core.ErrInvalidHorizon, months)
	case months > MaxHorizon:
		return MaxHorizon, nil
	}
	return months, nil
}

// ForecastForUser forecasts the user's total spending for the next months.
func (s *Service) ForecastForUser(ctx context.Context, userID int64, months int) ([]core.Forecast, error) {
	n, err := horizon(months)
	if err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, core.ErrInvalidUser
	}
	return s.forecastSeries(ctx, userID, nil, n, s.clock())
}

// ForecastByCategory runs one forecast per category owned by the user.
// Categories without expenses still get zero-valued rows.
func (s *Service) ForecastByCategory(ctx context.Context, userID int64, months int) ([]core.Forecast, error) {
	n, err := horizon(months)
	if err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, core.ErrInvalidUser
	}
	categories, err := s.history.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	now := s.clock()
	out := make([]core.Forecast, 0, len(categories)*n)
	for _, c := range categories {
		if c.ID <= 0 {
			slog.WarnContext(ctx, "Skipping category with invalid id",
				"user_id", userID, "category_id", c.ID, "name", c.Name)
			continue
		}
		id := c.ID
		rows, err := s.forecastSeries(ctx, userID, &id, n, now)
		if err != nil {
			return nil, fmt.Errorf("category %d: %w", c.ID, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Service) forecastSeries(ctx context.Context, userID int64, categoryID *int64, months int, now time.Time) ([]core.Forecast, error) {
	current := core.MonthStart(now)
	from := current.AddMonths(-(HistoryMonths - 1))
	totals, err := s.history.MonthlyTotals(ctx, userID, categoryID, from, current.AddMonths(1))
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Month.Before(totals[j].Month.Time) })

	history := make([]core.Money, len(totals))
	for i, t := range totals {
		history[i] = t.Total
	}

	projections := Project(history, months)
	out := make([]core.Forecast, 0, len(projections))
	counts := map[core.UpsertOutcome]int{}
	for i, p := range projections {
		f, outcome, err := s.store.UpsertForecast(ctx, core.ForecastRecord{
			UserID:          userID,
			CategoryID:      categoryID,
			PredictedAmount: p.Amount,
			ForecastDate:    current.AddMonths(i + 1),
			Confidence:      p.Confidence,
			Parameters:      p.Parameters,
		})
		if err != nil {
			return nil, fmt.Errorf("upsert forecast %s: %w", current.AddMonths(i+1), err)
		}
		counts[outcome]++
		out = append(out, f)
	}

	slog.InfoContext(ctx, "Forecast stored",
		"user_id", userID,
		"category", seriesLabel(categoryID),
		"data_points", len(history),
		"months", months,
		"inserted", counts[core.UpsertInserted],
		"updated", counts[core.UpsertUpdated],
		"unchanged", counts[core.UpsertUnchanged])
	return out, nil
}

func seriesLabel(categoryID *int64) string {
	if categoryID == nil {
		return "all"
	}
	return fmt.Sprint(*categoryID)
}

// PastForecastMonths lists the distinct months (YYYY-MM) with stored forecasts
// before the current month, newest first.
func (s *Service) PastForecastMonths(ctx context.Context, userID int64) ([]string, error) {
	before := core.MonthStart(s.clock())
	rows, err := s.store.ListForecasts(ctx, core.ForecastFilter{
		UserID:        userID,
		AllCategories: true,
		Before:        &before,
	})
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	seen := make(map[string]struct{})
	months := []string{}
	for _, f := range rows {
		m := f.ForecastDate.Format("2006-01")
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months, nil
}

// ForecastsForMonth returns every stored forecast (aggregate and per category)
// targeting the given YYYY-MM month.
func (s *Service) ForecastsForMonth(ctx context.Context, userID int64, month string) ([]core.Forecast, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("%w: month %q", core.ErrInvalidMonth, month)
	}
	from := core.MonthStart(t)
	before := from.AddMonths(1)
	rows, err := s.store.ListForecasts(ctx, core.ForecastFilter{
		UserID:        userID,
		AllCategories: true,
		From:          &from,
		Before:        &before,
	})
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	return rows, nil
}

// UpcomingForecasts returns the stored forecasts from next month onward without recomputing them.
func (s *Service) UpcomingForecasts(ctx context.Context, userID int64) ([]core.Forecast, error) {
	from := core.MonthStart(s.clock()).AddMonths(1)
	rows, err := s.store.ListForecasts(ctx, core.ForecastFilter{
		UserID:        userID,
		AllCategories: true,
		From:          &from,
	})
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	return rows, nil
}
