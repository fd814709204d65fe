package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"spese-insights/internal/core"
)

const forecastColumns = `id, user_id, category_id, predicted_amount_cents, forecast_date,
	confidence_score, model_parameters, created_at, updated_at`

func scanForecast(s rowScanner) (core.Forecast, error) {
	var (
		f         core.Forecast
		cat       sql.NullInt64
		date      string
		params    string
		createdAt string
		updatedAt string
	)
	err := s.Scan(&f.ID, &f.UserID, &cat, &f.PredictedAmount.Cents, &date,
		&f.Confidence, &params, &createdAt, &updatedAt)
	if err != nil {
		return core.Forecast{}, err
	}
	f.CategoryID = intPtr(cat)
	if f.ForecastDate, err = core.ParseDate(date); err != nil {
		return core.Forecast{}, fmt.Errorf("forecast %d has malformed date %q: %w", f.ID, date, err)
	}
	if err := json.Unmarshal([]byte(params), &f.Parameters); err != nil {
		return core.Forecast{}, fmt.Errorf("forecast %d has malformed parameters: %w", f.ID, err)
	}
	f.CreatedAt = parseTimestamp(createdAt)
	f.UpdatedAt = parseTimestamp(updatedAt)
	return f, nil
}

func seriesKey(categoryID *int64) int64 {
	if categoryID == nil {
		return 0
	}
	return *categoryID
}

func selectSeriesRow(ctx context.Context, tx *sql.Tx, rec core.ForecastRecord) (core.Forecast, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+forecastColumns+` FROM forecasts
		WHERE user_id = ? AND IFNULL(category_id, 0) = ? AND forecast_date = ?`,
		rec.UserID, seriesKey(rec.CategoryID), rec.ForecastDate.String())
	return scanForecast(row)
}

// UpsertForecast stores rec keyed by (user, category, forecast month). An
// existing row is rewritten only when amount, confidence or parameters differ.
func (r *SQLiteRepository) UpsertForecast(ctx context.Context, rec core.ForecastRecord) (f core.Forecast, outcome core.UpsertOutcome, err error) {
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return core.Forecast{}, "", fmt.Errorf("encode model parameters: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Forecast{}, "", fmt.Errorf("begin forecast upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := r.timestamp()
	existing, err := selectSeriesRow(ctx, tx, rec)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO forecasts (user_id, category_id, predicted_amount_cents, forecast_date,
				confidence_score, model_parameters, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			rec.UserID, nullableInt(rec.CategoryID), rec.PredictedAmount.Cents, rec.ForecastDate.String(),
			rec.Confidence, string(params), now, now)
		if err != nil {
			return core.Forecast{}, "", fmt.Errorf("insert forecast: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return core.Forecast{}, "", fmt.Errorf("insert forecast: %w", err)
		} else if n == 1 {
			row, err := selectSeriesRow(ctx, tx, rec)
			if err != nil {
				return core.Forecast{}, "", fmt.Errorf("read inserted forecast: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return core.Forecast{}, "", fmt.Errorf("commit forecast: %w", err)
			}
			return row, core.UpsertInserted, nil
		}
		// another writer inserted the row first
		if existing, err = selectSeriesRow(ctx, tx, rec); err != nil {
			return core.Forecast{}, "", fmt.Errorf("re-read forecast: %w", err)
		}
	case err != nil:
		return core.Forecast{}, "", fmt.Errorf("select forecast: %w", err)
	}

	if !existing.Differs(rec) {
		if err := tx.Commit(); err != nil {
			return core.Forecast{}, "", fmt.Errorf("commit forecast: %w", err)
		}
		return existing, core.UpsertUnchanged, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE forecasts SET predicted_amount_cents = ?, confidence_score = ?, model_parameters = ?, updated_at = ?
		WHERE id = ?`,
		rec.PredictedAmount.Cents, rec.Confidence, string(params), now, existing.ID)
	if err != nil {
		return core.Forecast{}, "", fmt.Errorf("update forecast: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return core.Forecast{}, "", fmt.Errorf("commit forecast: %w", err)
	}
	existing.PredictedAmount = rec.PredictedAmount
	existing.Confidence = rec.Confidence
	existing.Parameters = rec.Parameters
	existing.UpdatedAt = parseTimestamp(now)
	return existing, core.UpsertUpdated, nil
}

// ListForecasts returns matching forecasts ordered by date, aggregate row first.
func (r *SQLiteRepository) ListForecasts(ctx context.Context, filter core.ForecastFilter) ([]core.Forecast, error) {
	var q strings.Builder
	q.WriteString(`SELECT ` + forecastColumns + ` FROM forecasts WHERE user_id = ?`)
	args := []any{filter.UserID}
	if !filter.AllCategories {
		q.WriteString(` AND IFNULL(category_id, 0) = ?`)
		args = append(args, seriesKey(filter.CategoryID))
	}
	if filter.From != nil {
		q.WriteString(` AND forecast_date >= ?`)
		args = append(args, filter.From.String())
	}
	if filter.Before != nil {
		q.WriteString(` AND forecast_date < ?`)
		args = append(args, filter.Before.String())
	}
	q.WriteString(` ORDER BY forecast_date, IFNULL(category_id, 0)`)

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	defer rows.Close()

	out := []core.Forecast{}
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
