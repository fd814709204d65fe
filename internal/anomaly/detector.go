package anomaly

import (
	"context"
	"fmt"
	"log/slog"

	"spese-insights/internal/core"
)

// DefaultThreshold is the std-dev sensitivity used when the caller passes none.
const DefaultThreshold = 2.0

type (
	// ExpenseSource supplies the expense window for one user.
	ExpenseSource interface {
		ListExpenses(ctx context.Context, userID int64, from, to *core.Date) ([]core.Expense, error)
	}

	// Store persists anomalies with at most one row per expense.
	Store interface {
		ExistsAnomaly(ctx context.Context, expenseID int64) (bool, error)
		CreateAnomaly(ctx context.Context, rec core.AnomalyRecord) (core.Anomaly, bool, error)
		ListAnomalies(ctx context.Context, userID int64, from, to *core.Date) ([]core.AnomalyView, error)
	}
)

// DetectRequest selects the window and the scoring strategy for one run.
type DetectRequest struct {
	UserID    int64
	Threshold float64
	From      *core.Date
	To        *core.Date
	Method    core.DetectionMethod
}

// Detector runs a detection method over a user's expense window and stores the outliers.
type Detector struct {
	expenses ExpenseSource
	store    Store
}

func NewDetector(expenses ExpenseSource, store Store) *Detector {
	return &Detector{
		expenses: expenses,
		store:    store,
	}
}

// Evaluate scores every expense of the window without touching storage.
// A window the method cannot discriminate yields every row with score 0.
func Evaluate(expenses []core.Expense, threshold float64, m Method) []core.AnomalyResult {
	if len(expenses) == 0 {
		return nil
	}
	amounts := make([]float64, len(expenses))
	for i, e := range expenses {
		amounts[i] = e.Amount.Float()
	}
	scores, ok := m.Scores(amounts)
	cutoff := m.Cutoff(threshold)

	results := make([]core.AnomalyResult, len(expenses))
	for i, e := range expenses {
		r := core.AnomalyResult{
			ExpenseID: e.ID,
			Amount:    amounts[i],
			Date:      e.Date.String(),
			Method:    m.Name(),
		}
		if ok {
			r.Score = core.Round2(scores[i])
			r.IsAnomaly = scores[i] >= cutoff
			if r.IsAnomaly {
				r.Reason = m.Reason(scores[i])
			}
		}
		results[i] = r
	}
	return results
}

func (d *Detector) prepare(ctx context.Context, req DetectRequest) (Method, []core.Expense, error) {
	if req.Threshold == 0 {
		req.Threshold = DefaultThreshold
	}
	if err := ValidateThreshold(req.Threshold); err != nil {
		return nil, nil, err
	}
	m, err := GetMethod(req.Method)
	if err != nil {
		return nil, nil, err
	}
	if req.From != nil && req.To != nil && req.From.After(req.To.Time) {
		return nil, nil, fmt.Errorf("%w: %s > %s", core.ErrInvalidRange, req.From, req.To)
	}
	if req.UserID <= 0 {
		return m, nil, nil
	}
	expenses, err := d.expenses.ListExpenses(ctx, req.UserID, req.From, req.To)
	if err != nil {
		return nil, nil, fmt.Errorf("list expenses: %w", err)
	}
	return m, expenses, nil
}

// Preview scores the window like Detect but persists nothing.
func (d *Detector) Preview(ctx context.Context, req DetectRequest) ([]core.AnomalyResult, error) {
	threshold := req.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	m, expenses, err := d.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return Evaluate(expenses, threshold, m), nil
}

// Detect flags outliers in the window, stores the ones not flagged before and
// returns every stored anomaly of the same user and date range.
//
// A stored anomaly is never re-scored: later runs with another window or
// threshold leave the first score in place.
func (d *Detector) Detect(ctx context.Context, req DetectRequest) ([]core.AnomalyView, error) {
	threshold := req.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	m, expenses, err := d.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return []core.AnomalyView{}, nil
	}

	byID := make(map[int64]core.Expense, len(expenses))
	for _, e := range expenses {
		byID[e.ID] = e
	}

	results := Evaluate(expenses, threshold, m)
	created, skipped := 0, 0
	for _, r := range results {
		if !r.IsAnomaly {
			continue
		}
		exists, err := d.store.ExistsAnomaly(ctx, r.ExpenseID)
		if err != nil {
			return nil, fmt.Errorf("check anomaly for expense %d: %w", r.ExpenseID, err)
		}
		if exists {
			skipped++
			continue
		}
		_, isNew, err := d.store.CreateAnomaly(ctx, core.AnomalyRecord{
			ExpenseID:  r.ExpenseID,
			UserID:     req.UserID,
			Score:      r.Score,
			Method:     m.Name(),
			Reason:     r.Reason,
			ReviewedAt: byID[r.ExpenseID].Date.Time,
		})
		if err != nil {
			return nil, fmt.Errorf("create anomaly for expense %d: %w", r.ExpenseID, err)
		}
		if isNew {
			created++
		} else {
			skipped++
		}
	}

	slog.InfoContext(ctx, "Anomaly detection complete",
		"user_id", req.UserID,
		"method", m.Name(),
		"threshold", threshold,
		"window_size", len(expenses),
		"created", created,
		"already_flagged", skipped)

	views, err := d.store.ListAnomalies(ctx, req.UserID, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	return views, nil
}
