package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"spese-insights/internal/core"
)

// CreateCategory returns the user's category with this name, creating it when missing.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if userID <= 0 {
		return core.Category{}, core.ErrInvalidUser
	}
	if name == "" {
		return core.Category{}, errors.New("category name cannot be empty")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?) ON CONFLICT (user_id, name) DO NOTHING`,
		userID, name)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	c := core.Category{UserID: userID, Name: name}
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE user_id = ? AND name = ?`, userID, name).Scan(&c.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateExpense validates and inserts e, returning it with its new id.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount_cents, date, category_id, description) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Amount.Cents, e.Date.String(), nullableInt(e.CategoryID), e.Description)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("read expense id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents,
		"date", e.Date.String())
	return e, nil
}

// ListExpenses returns the user's expenses within [from, to], oldest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, from, to *core.Date) ([]core.Expense, error) {
	var q strings.Builder
	q.WriteString(`SELECT id, user_id, amount_cents, date, category_id, description FROM expenses WHERE user_id = ?`)
	args := []any{userID}
	if from != nil {
		q.WriteString(` AND date >= ?`)
		args = append(args, from.String())
	}
	if to != nil {
		q.WriteString(` AND date <= ?`)
		args = append(args, to.String())
	}
	q.WriteString(` ORDER BY date, id`)

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var (
			e    core.Expense
			date string
			cat  sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount.Cents, &date, &cat, &e.Description); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("expense %d has malformed date %q: %w", e.ID, date, err)
		}
		e.CategoryID = intPtr(cat)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MonthlyTotals sums the user's expenses per calendar month in [from, before).
// A nil categoryID sums every category.
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, userID int64, categoryID *int64, from, before core.Date) ([]core.MonthlyTotal, error) {
	q := `SELECT strftime('%Y-%m-01', date) AS month, SUM(amount_cents)
		FROM expenses
		WHERE user_id = ? AND date >= ? AND date < ?`
	args := []any{userID, from.String(), before.String()}
	if categoryID != nil {
		q += ` AND category_id = ?`
		args = append(args, *categoryID)
	}
	q += ` GROUP BY month ORDER BY month`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query monthly totals: %w", err)
	}
	defer rows.Close()

	out := []core.MonthlyTotal{}
	for rows.Next() {
		var (
			month string
			t     core.MonthlyTotal
		)
		if err := rows.Scan(&month, &t.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		if t.Month, err = core.ParseDate(month); err != nil {
			return nil, fmt.Errorf("parse month %q: %w", month, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
