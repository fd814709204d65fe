package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-insights/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "insights.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustExpense(t *testing.T, r *SQLiteRepository, userID, cents int64, date core.Date, cat *int64) core.Expense {
	t.Helper()
	e, err := r.CreateExpense(context.Background(), core.Expense{
		UserID:     userID,
		Amount:     core.Money{Cents: cents},
		Date:       date,
		CategoryID: cat,
	})
	require.NoError(t, err)
	return e
}

func TestMigrations_Version(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	require.NoError(t, RunMigrations(path))
	// second run is a no-op
	require.NoError(t, RunMigrations(path))

	v, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)
	assert.False(t, dirty)
}

func TestCategories(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	a, err := r.CreateCategory(ctx, 1, "Cibo")
	require.NoError(t, err)
	again, err := r.CreateCategory(ctx, 1, " Cibo ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	_, err = r.CreateCategory(ctx, 2, "Cibo")
	require.NoError(t, err)

	cats, err := r.ListCategories(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cats, 1)

	_, err = r.CreateCategory(ctx, 0, "x")
	assert.ErrorIs(t, err, core.ErrInvalidUser)
}

func TestExpenses_ListAndTotals(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	cat, err := r.CreateCategory(ctx, 1, "Casa")
	require.NoError(t, err)

	mustExpense(t, r, 1, 1000, core.NewDate(2025, 1, 15), &cat.ID)
	mustExpense(t, r, 1, 2000, core.NewDate(2025, 1, 20), nil)
	mustExpense(t, r, 1, 500, core.NewDate(2025, 2, 1), &cat.ID)
	mustExpense(t, r, 2, 9900, core.NewDate(2025, 1, 3), nil)

	all, err := r.ListExpenses(ctx, 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2025-01-15", all[0].Date.String())
	require.NotNil(t, all[0].CategoryID)
	assert.Equal(t, cat.ID, *all[0].CategoryID)
	assert.Nil(t, all[1].CategoryID)

	from, to := core.NewDate(2025, 1, 16), core.NewDate(2025, 2, 1)
	window, err := r.ListExpenses(ctx, 1, &from, &to)
	require.NoError(t, err)
	assert.Len(t, window, 2)

	totals, err := r.MonthlyTotals(ctx, 1, nil, core.NewDate(2025, 1, 1), core.NewDate(2025, 3, 1))
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "2025-01-01", totals[0].Month.String())
	assert.Equal(t, int64(3000), totals[0].Total.Cents)

	byCat, err := r.MonthlyTotals(ctx, 1, &cat.ID, core.NewDate(2025, 1, 1), core.NewDate(2025, 2, 1))
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	assert.Equal(t, int64(1000), byCat[0].Total.Cents)

	_, err = r.CreateExpense(ctx, core.Expense{UserID: 1, Date: core.NewDate(2025, 1, 1)})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestAnomalies_InsertIfAbsent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e := mustExpense(t, r, 1, 100000, core.NewDate(2025, 3, 10), nil)

	rec := core.AnomalyRecord{
		ExpenseID:  e.ID,
		UserID:     1,
		Score:      2.846,
		Method:     core.MethodStdDev,
		Reason:     "Amount deviates from mean by 2.85 std devs",
		ReviewedAt: e.Date.Time,
	}
	a, created, err := r.CreateAnomaly(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2.85, a.Score)
	assert.False(t, a.IsReviewed)
	assert.Nil(t, a.IsConfirmedAnomaly)

	rec.Score = 7
	again, created, err := r.CreateAnomaly(ctx, rec)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, 2.85, again.Score)

	exists, err := r.ExistsAnomaly(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	views, err := r.ListAnomalies(ctx, 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 1000.0, views[0].Amount)
	assert.Equal(t, "2025-03-10", views[0].Date)
	assert.Equal(t, "2025-03-10T00:00:00Z", views[0].ReviewedAt)

	from := core.NewDate(2025, 4, 1)
	views, err = r.ListAnomalies(ctx, 1, &from, nil)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestAnomalies_ConcurrentCreate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e := mustExpense(t, r, 1, 100000, core.NewDate(2025, 3, 10), nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := r.CreateAnomaly(ctx, core.AnomalyRecord{ExpenseID: e.ID, UserID: 1, Score: 3, Method: core.MethodStdDev, ReviewedAt: e.Date.Time})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestReviewAnomaly(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e := mustExpense(t, r, 1, 100000, core.NewDate(2025, 3, 10), nil)
	at := time.Date(2025, 3, 20, 9, 30, 0, 0, time.UTC)

	_, err := r.ReviewAnomaly(ctx, e.ID, true, at)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, _, err = r.CreateAnomaly(ctx, core.AnomalyRecord{ExpenseID: e.ID, UserID: 1, Score: 3, Method: core.MethodStdDev, ReviewedAt: e.Date.Time})
	require.NoError(t, err)

	a, err := r.ReviewAnomaly(ctx, e.ID, true, at)
	require.NoError(t, err)
	assert.True(t, a.IsReviewed)
	require.NotNil(t, a.IsConfirmedAnomaly)
	assert.True(t, *a.IsConfirmedAnomaly)
	assert.Equal(t, at, a.ReviewedAt)
}

func TestUpsertForecast(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	tick := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return tick }

	rec := core.ForecastRecord{
		UserID:          1,
		PredictedAmount: core.Money{Cents: 50000},
		ForecastDate:    core.NewDate(2025, 7, 1),
		Confidence:      0.72,
		Parameters:      core.ModelParameters{Method: core.ModelMovingAverage, WindowSize: 3, DataPoints: 6},
	}

	first, outcome, err := r.UpsertForecast(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, core.UpsertInserted, outcome)
	assert.Equal(t, rec.Parameters, first.Parameters)
	assert.Equal(t, tick, first.CreatedAt)

	tick = tick.Add(time.Hour)
	same, outcome, err := r.UpsertForecast(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, core.UpsertUnchanged, outcome)
	assert.Equal(t, first.UpdatedAt, same.UpdatedAt)

	rec.Confidence = 0.74
	updated, outcome, err := r.UpsertForecast(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, core.UpsertUpdated, outcome)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, tick, updated.UpdatedAt)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	cat := int64(4)
	rec.CategoryID = &cat
	_, outcome, err = r.UpsertForecast(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, core.UpsertInserted, outcome)

	aggregate, err := r.ListForecasts(ctx, core.ForecastFilter{UserID: 1})
	require.NoError(t, err)
	require.Len(t, aggregate, 1)
	assert.Equal(t, 0.74, aggregate[0].Confidence)

	all, err := r.ListForecasts(ctx, core.ForecastFilter{UserID: 1, AllCategories: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Nil(t, all[0].CategoryID)

	before := core.NewDate(2025, 7, 1)
	none, err := r.ListForecasts(ctx, core.ForecastFilter{UserID: 1, AllCategories: true, Before: &before})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpsertForecast_ConcurrentSameKey(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	rec := core.ForecastRecord{
		UserID:       1,
		ForecastDate: core.NewDate(2025, 7, 1),
		Confidence:   0.5,
		Parameters:   core.ModelParameters{Method: core.ModelSimpleAverage},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := r.UpsertForecast(ctx, rec)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := r.ListForecasts(ctx, core.ForecastFilter{UserID: 1, AllCategories: true})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
