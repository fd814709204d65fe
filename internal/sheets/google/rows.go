package google

import (
	"fmt"
	"strings"

	"spese-insights/internal/core"
)

var (
	forecastHeader = []any{"Forecast date", "Category", "Predicted amount", "Confidence", "Method", "Window", "Data points"}
	anomalyHeader  = []any{"Date", "Expense", "Amount", "Score", "Method", "Reason", "Reviewed", "Reviewed at"}
)

// tabTitle returns "<prefix> <kind> <userID>", e.g. "Insights Forecasts 7".
func tabTitle(prefix, kind string, userID int64) string {
	return fmt.Sprintf("%s %s %d", strings.TrimSpace(prefix), kind, userID)
}

// quoteTab wraps a tab title for A1 notation, doubling embedded quotes.
func quoteTab(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func categoryCell(id *int64) any {
	if id == nil {
		return "All"
	}
	return *id
}

func forecastRows(rows []core.ForecastView) [][]any {
	out := make([][]any, 0, len(rows)+1)
	out = append(out, forecastHeader)
	for _, f := range rows {
		window := any("")
		if f.Parameters.WindowSize > 0 {
			window = f.Parameters.WindowSize
		}
		out = append(out, []any{
			f.ForecastDate,
			categoryCell(f.CategoryID),
			f.PredictedAmount,
			f.Confidence,
			string(f.Parameters.Method),
			window,
			f.Parameters.DataPoints,
		})
	}
	return out
}

func anomalyRows(rows []core.AnomalyView) [][]any {
	out := make([][]any, 0, len(rows)+1)
	out = append(out, anomalyHeader)
	for _, a := range rows {
		out = append(out, []any{
			a.Date,
			a.ExpenseID,
			a.Amount,
			a.Score,
			string(a.Method),
			a.Reason,
			a.IsReviewed,
			a.ReviewedAt,
		})
	}
	return out
}
