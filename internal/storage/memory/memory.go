// Package memory keeps expenses, anomalies and forecasts in process memory.
// It backs DATA_BACKEND=memory and the service tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"spese-insights/internal/core"
)

type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	nextID     int64
	categories []core.Category
	expenses   []core.Expense
	anomalies  []core.Anomaly
	forecasts  []core.Forecast
}

func New() *Store {
	return &Store{now: time.Now}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// CreateCategory returns the user's category with this name, creating it when missing.
func (s *Store) CreateCategory(_ context.Context, userID int64, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if userID <= 0 {
		return core.Category{}, core.ErrInvalidUser
	}
	if name == "" {
		return core.Category{}, errors.New("category name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.UserID == userID && c.Name == name {
			return c, nil
		}
	}
	c := core.Category{ID: s.id(), UserID: userID, Name: name}
	s.categories = append(s.categories, c)
	return c, nil
}

// CreateExpense validates and stores e, assigning an id when e.ID is zero.
func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.id()
	}
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Category{}
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func inRange(d core.Date, from, to *core.Date) bool {
	if from != nil && d.Before(from.Time) {
		return false
	}
	if to != nil && d.After(to.Time) {
		return false
	}
	return true
}

func byDateThenID(a, b core.Expense) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.Before(b.Date.Time)
	}
	return a.ID < b.ID
}

// ListExpenses returns the user's expenses within [from, to], oldest first.
func (s *Store) ListExpenses(_ context.Context, userID int64, from, to *core.Date) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Expense{}
	for _, e := range s.expenses {
		if e.UserID == userID && inRange(e.Date, from, to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byDateThenID(out[i], out[j]) })
	return out, nil
}

// MonthlyTotals sums the user's expenses per calendar month in [from, before).
// A nil categoryID sums every category.
func (s *Store) MonthlyTotals(_ context.Context, userID int64, categoryID *int64, from, before core.Date) ([]core.MonthlyTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := map[time.Time]int64{}
	for _, e := range s.expenses {
		if e.UserID != userID || e.Date.Before(from.Time) || !e.Date.Before(before.Time) {
			continue
		}
		if categoryID != nil && !core.SameCategory(e.CategoryID, categoryID) {
			continue
		}
		sums[core.MonthStart(e.Date.Time).Time] += e.Amount.Cents
	}
	out := make([]core.MonthlyTotal, 0, len(sums))
	for m, cents := range sums {
		out = append(out, core.MonthlyTotal{Month: core.Date{Time: m}, Total: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month.Time) })
	return out, nil
}

func (s *Store) findAnomaly(expenseID int64) int {
	for i, a := range s.anomalies {
		if a.ExpenseID == expenseID {
			return i
		}
	}
	return -1
}

func (s *Store) ExistsAnomaly(_ context.Context, expenseID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findAnomaly(expenseID) >= 0, nil
}

// CreateAnomaly inserts rec unless the expense already has an anomaly, in which
// case the stored row is returned untouched with created=false.
func (s *Store) CreateAnomaly(_ context.Context, rec core.AnomalyRecord) (core.Anomaly, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.findAnomaly(rec.ExpenseID); i >= 0 {
		return s.anomalies[i], false, nil
	}
	a := core.Anomaly{
		ID:         s.id(),
		ExpenseID:  rec.ExpenseID,
		UserID:     rec.UserID,
		Score:      core.Round2(rec.Score),
		Method:     rec.Method,
		Reason:     rec.Reason,
		ReviewedAt: rec.ReviewedAt,
		CreatedAt:  s.now().UTC(),
	}
	s.anomalies = append(s.anomalies, a)
	return a, true, nil
}

// ListAnomalies joins the user's anomalies with their expenses, filtered by
// expense date and ordered by date then expense id.
func (s *Store) ListAnomalies(_ context.Context, userID int64, from, to *core.Date) ([]core.AnomalyView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expenses := make(map[int64]core.Expense, len(s.expenses))
	for _, e := range s.expenses {
		expenses[e.ID] = e
	}

	type row struct {
		e core.Expense
		a core.Anomaly
	}
	var rows []row
	for _, a := range s.anomalies {
		e, ok := expenses[a.ExpenseID]
		if !ok || a.UserID != userID || !inRange(e.Date, from, to) {
			continue
		}
		rows = append(rows, row{e, a})
	}
	sort.Slice(rows, func(i, j int) bool { return byDateThenID(rows[i].e, rows[j].e) })

	out := make([]core.AnomalyView, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.NewAnomalyView(r.e, r.a))
	}
	return out, nil
}

// ReviewAnomaly records the reviewer verdict for the anomaly of expenseID.
func (s *Store) ReviewAnomaly(_ context.Context, expenseID int64, confirmed bool, at time.Time) (core.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findAnomaly(expenseID)
	if i < 0 {
		return core.Anomaly{}, core.ErrNotFound
	}
	a := &s.anomalies[i]
	a.IsReviewed = true
	a.IsConfirmedAnomaly = &confirmed
	a.ReviewedAt = at.UTC()
	return *a, nil
}

func (s *Store) findForecast(userID int64, categoryID *int64, date core.Date) int {
	for i, f := range s.forecasts {
		if f.UserID == userID && core.SameCategory(f.CategoryID, categoryID) && f.ForecastDate.Equal(date.Time) {
			return i
		}
	}
	return -1
}

// UpsertForecast inserts a forecast or updates the stored one only when a value changed.
func (s *Store) UpsertForecast(_ context.Context, rec core.ForecastRecord) (core.Forecast, core.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if i := s.findForecast(rec.UserID, rec.CategoryID, rec.ForecastDate); i >= 0 {
		f := &s.forecasts[i]
		if !f.Differs(rec) {
			return *f, core.UpsertUnchanged, nil
		}
		f.PredictedAmount = rec.PredictedAmount
		f.Confidence = rec.Confidence
		f.Parameters = rec.Parameters
		f.UpdatedAt = now
		return *f, core.UpsertUpdated, nil
	}
	var cat *int64
	if rec.CategoryID != nil {
		id := *rec.CategoryID
		cat = &id
	}
	f := core.Forecast{
		ID:              s.id(),
		UserID:          rec.UserID,
		CategoryID:      cat,
		PredictedAmount: rec.PredictedAmount,
		ForecastDate:    rec.ForecastDate,
		Confidence:      rec.Confidence,
		Parameters:      rec.Parameters,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.forecasts = append(s.forecasts, f)
	return f, core.UpsertInserted, nil
}

// ListForecasts returns matching forecasts ordered by date, aggregate row first.
func (s *Store) ListForecasts(_ context.Context, filter core.ForecastFilter) ([]core.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Forecast{}
	for _, f := range s.forecasts {
		if f.UserID != filter.UserID {
			continue
		}
		if !filter.AllCategories && !core.SameCategory(f.CategoryID, filter.CategoryID) {
			continue
		}
		if filter.From != nil && f.ForecastDate.Before(filter.From.Time) {
			continue
		}
		if filter.Before != nil && !f.ForecastDate.Before(filter.Before.Time) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ForecastDate.Equal(b.ForecastDate.Time) {
			return a.ForecastDate.Before(b.ForecastDate.Time)
		}
		return categoryKey(a.CategoryID) < categoryKey(b.CategoryID)
	})
	return out, nil
}

func categoryKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func (s *Store) Close() error { return nil }
func (s *Store) Ping(context.Context) error { return nil }
