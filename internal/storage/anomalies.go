package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"spese-insights/internal/core"
)

const anomalyColumns = `id, expense_id, user_id, anomaly_score, detection_method, reason,
	is_reviewed, is_confirmed_anomaly, reviewed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnomaly(s rowScanner) (core.Anomaly, error) {
	var (
		a          core.Anomaly
		method     string
		confirmed  sql.NullBool
		reviewedAt string
		createdAt  string
	)
	err := s.Scan(&a.ID, &a.ExpenseID, &a.UserID, &a.Score, &method, &a.Reason,
		&a.IsReviewed, &confirmed, &reviewedAt, &createdAt)
	if err != nil {
		return core.Anomaly{}, err
	}
	a.Method = core.DetectionMethod(method)
	if confirmed.Valid {
		v := confirmed.Bool
		a.IsConfirmedAnomaly = &v
	}
	a.ReviewedAt = parseTimestamp(reviewedAt)
	a.CreatedAt = parseTimestamp(createdAt)
	return a, nil
}

func (r *SQLiteRepository) ExistsAnomaly(ctx context.Context, expenseID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM anomalies WHERE expense_id = ?)`, expenseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check anomaly: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) getAnomaly(ctx context.Context, expenseID int64) (core.Anomaly, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+anomalyColumns+` FROM anomalies WHERE expense_id = ?`, expenseID)
	a, err := scanAnomaly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Anomaly{}, core.ErrNotFound
	}
	if err != nil {
		return core.Anomaly{}, fmt.Errorf("get anomaly: %w", err)
	}
	return a, nil
}

// CreateAnomaly inserts rec unless the expense already has an anomaly. The
// UNIQUE expense_id index arbitrates concurrent writers; the loser gets the
// stored row back with created=false.
func (r *SQLiteRepository) CreateAnomaly(ctx context.Context, rec core.AnomalyRecord) (core.Anomaly, bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO anomalies (expense_id, user_id, anomaly_score, detection_method, reason, reviewed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (expense_id) DO NOTHING`,
		rec.ExpenseID, rec.UserID, core.Round2(rec.Score), string(rec.Method), rec.Reason,
		rec.ReviewedAt.UTC().Format(timestampLayout), r.timestamp())
	if err != nil {
		return core.Anomaly{}, false, fmt.Errorf("insert anomaly: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Anomaly{}, false, fmt.Errorf("insert anomaly: %w", err)
	}
	a, err := r.getAnomaly(ctx, rec.ExpenseID)
	if err != nil {
		return core.Anomaly{}, false, err
	}
	return a, n == 1, nil
}

// ListAnomalies joins the user's anomalies with their expenses, filtered by
// expense date and ordered by date then expense id.
func (r *SQLiteRepository) ListAnomalies(ctx context.Context, userID int64, from, to *core.Date) ([]core.AnomalyView, error) {
	var q strings.Builder
	q.WriteString(`SELECT e.id, e.user_id, e.amount_cents, e.date, a.anomaly_score, a.detection_method,
		a.reason, a.is_reviewed, a.reviewed_at
		FROM anomalies a
		JOIN expenses e ON e.id = a.expense_id
		WHERE a.user_id = ?`)
	args := []any{userID}
	if from != nil {
		q.WriteString(` AND e.date >= ?`)
		args = append(args, from.String())
	}
	if to != nil {
		q.WriteString(` AND e.date <= ?`)
		args = append(args, to.String())
	}
	q.WriteString(` ORDER BY e.date, e.id`)

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	out := []core.AnomalyView{}
	for rows.Next() {
		var (
			e          core.Expense
			a          core.Anomaly
			date       string
			method     string
			reviewedAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &date, &a.Score, &method,
			&a.Reason, &a.IsReviewed, &reviewedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		if e.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("expense %d has malformed date %q: %w", e.ID, date, err)
		}
		a.Method = core.DetectionMethod(method)
		a.ReviewedAt = parseTimestamp(reviewedAt)
		out = append(out, core.NewAnomalyView(e, a))
	}
	return out, rows.Err()
}

// ReviewAnomaly records the reviewer verdict for the anomaly of expenseID.
func (r *SQLiteRepository) ReviewAnomaly(ctx context.Context, expenseID int64, confirmed bool, at time.Time) (core.Anomaly, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE anomalies SET is_reviewed = 1, is_confirmed_anomaly = ?, reviewed_at = ? WHERE expense_id = ?`,
		confirmed, at.UTC().Format(timestampLayout), expenseID)
	if err != nil {
		return core.Anomaly{}, fmt.Errorf("review anomaly: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Anomaly{}, fmt.Errorf("review anomaly: %w", err)
	}
	if n == 0 {
		return core.Anomaly{}, core.ErrNotFound
	}
	return r.getAnomaly(ctx, expenseID)
}
