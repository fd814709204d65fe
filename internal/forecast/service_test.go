package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-insights/internal/core"
	"spese-insights/internal/storage/memory"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

var june = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func seedSixMonths(t *testing.T, s *memory.Store, userID int64, categoryID *int64) {
	t.Helper()
	ctx := context.Background()
	for i, amount := range []int64{100, 200, 300, 400, 500, 600} {
		_, err := s.CreateExpense(ctx, core.Expense{
			UserID:     userID,
			Amount:     core.Money{Cents: amount * 100},
			Date:       core.NewDate(2025, i+1, 10),
			CategoryID: categoryID,
		})
		require.NoError(t, err)
	}
}

func TestForecastForUser(t *testing.T) {
	store := memory.New()
	seedSixMonths(t, store, 1, nil)
	// outside the trailing twelve months
	_, err := store.CreateExpense(context.Background(), core.Expense{UserID: 1, Amount: core.Money{Cents: 99900}, Date: core.NewDate(2024, 6, 30)})
	require.NoError(t, err)

	svc := NewService(store, store, fixedClock(june))
	rows, err := svc.ForecastForUser(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "2025-07-01", rows[0].ForecastDate.String())
	assert.Equal(t, "2025-08-01", rows[1].ForecastDate.String())
	assert.Equal(t, "2025-09-01", rows[2].ForecastDate.String())
	assert.Equal(t, "500.00", rows[0].PredictedAmount.String())
	assert.Equal(t, 0.72, rows[0].Confidence)
	assert.Nil(t, rows[0].CategoryID)
	assert.Equal(t, 6, rows[0].Parameters.DataPoints)
}

func TestForecastForUser_NoExpenses(t *testing.T) {
	store := memory.New()
	svc := NewService(store, store, fixedClock(june))

	rows, err := svc.ForecastForUser(context.Background(), 5, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, f := range rows {
		assert.Zero(t, f.PredictedAmount.Cents)
		assert.Equal(t, 0.5, f.Confidence)
		assert.Equal(t, core.ModelSimpleAverage, f.Parameters.Method)
		assert.Zero(t, f.Parameters.DataPoints)
	}
}

func TestForecastForUser_Idempotent(t *testing.T) {
	store := memory.New()
	seedSixMonths(t, store, 1, nil)
	svc := NewService(store, store, fixedClock(june))
	ctx := context.Background()

	first, err := svc.ForecastForUser(ctx, 1, 3)
	require.NoError(t, err)
	second, err := svc.ForecastForUser(ctx, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stored, err := store.ListForecasts(ctx, core.ForecastFilter{UserID: 1, AllCategories: true})
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestForecastForUser_UpdatesOnNewHistory(t *testing.T) {
	store := memory.New()
	seedSixMonths(t, store, 1, nil)
	svc := NewService(store, store, fixedClock(june))
	ctx := context.Background()

	first, err := svc.ForecastForUser(ctx, 1, 1)
	require.NoError(t, err)

	_, err = store.CreateExpense(ctx, core.Expense{UserID: 1, Amount: core.Money{Cents: 30000}, Date: core.NewDate(2025, 6, 20)})
	require.NoError(t, err)

	second, err := svc.ForecastForUser(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, second[0].ID)
	// (400 + 500 + 900) / 3
	assert.Equal(t, "600.00", second[0].PredictedAmount.String())
}

func TestForecastForUser_Horizon(t *testing.T) {
	store := memory.New()
	svc := NewService(store, store, fixedClock(june))
	ctx := context.Background()

	rows, err := svc.ForecastForUser(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, rows, DefaultHorizon)

	rows, err = svc.ForecastForUser(ctx, 1, 100)
	require.NoError(t, err)
	assert.Len(t, rows, MaxHorizon)

	_, err = svc.ForecastForUser(ctx, 1, -1)
	assert.ErrorIs(t, err, core.ErrInvalidHorizon)

	_, err = svc.ForecastForUser(ctx, 0, 3)
	assert.ErrorIs(t, err, core.ErrInvalidUser)
}

func TestForecastByCategory(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	food, err := store.CreateCategory(ctx, 1, "Cibo")
	require.NoError(t, err)
	empty, err := store.CreateCategory(ctx, 1, "Viaggi")
	require.NoError(t, err)
	_, err = store.CreateCategory(ctx, 2, "Altro")
	require.NoError(t, err)
	seedSixMonths(t, store, 1, &food.ID)

	svc := NewService(store, store, fixedClock(june))
	rows, err := svc.ForecastByCategory(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, food.ID, *rows[0].CategoryID)
	assert.Equal(t, "500.00", rows[0].PredictedAmount.String())
	assert.Equal(t, empty.ID, *rows[2].CategoryID)
	assert.Zero(t, rows[2].PredictedAmount.Cents)
	assert.Equal(t, 0.5, rows[2].Confidence)
}

type brokenHistory struct{ err error }

func (b brokenHistory) MonthlyTotals(context.Context, int64, *int64, core.Date, core.Date) ([]core.MonthlyTotal, error) {
	return nil, b.err
}

func (b brokenHistory) ListCategories(context.Context, int64) ([]core.Category, error) {
	return nil, b.err
}

func TestForecast_PropagatesStorageErrors(t *testing.T) {
	boom := errors.New("database is locked")
	svc := NewService(brokenHistory{err: boom}, memory.New(), fixedClock(june))

	_, err := svc.ForecastForUser(context.Background(), 1, 3)
	assert.ErrorIs(t, err, boom)
	_, err = svc.ForecastByCategory(context.Background(), 1, 3)
	assert.ErrorIs(t, err, boom)
}

func TestHistory(t *testing.T) {
	store := memory.New()
	seedSixMonths(t, store, 1, nil)
	ctx := context.Background()

	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	svc := NewService(store, store, func() time.Time { return now })
	_, err := svc.ForecastForUser(ctx, 1, 3)
	require.NoError(t, err)

	now = june
	months, err := svc.PastForecastMonths(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-05", "2025-04"}, months)

	rows, err := svc.ForecastsForMonth(ctx, 1, "2025-04")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-04-01", rows[0].ForecastDate.String())

	_, err = svc.ForecastsForMonth(ctx, 1, "April")
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}

func TestUpcomingForecasts(t *testing.T) {
	store := memory.New()
	seedSixMonths(t, store, 1, nil)
	ctx := context.Background()

	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	svc := NewService(store, store, func() time.Time { return now })
	_, err := svc.ForecastForUser(ctx, 1, 3)
	require.NoError(t, err)

	now = time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	rows, err := svc.UpcomingForecasts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-06-01", rows[0].ForecastDate.String())
}
