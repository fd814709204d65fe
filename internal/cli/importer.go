package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"spese-insights/internal/core"
)

// ExpenseRecorder stores one expense under a category name.
type ExpenseRecorder interface {
	RecordExpense(ctx context.Context, e core.Expense, category string) (core.Expense, error)
}

var importColumns = []string{"user_id", "date", "amount", "category", "description"}

// ImportExpenses reads user_id,date,amount,category,description rows and
// records each one. It stops at the first bad row; rows before it stay stored.
func ImportExpenses(ctx context.Context, r io.Reader, rec ExpenseRecorder) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(importColumns)
	cr.TrimLeadingSpace = true

	imported := 0
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return imported, nil
		}
		if err != nil {
			return imported, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), importColumns[0]) {
			continue
		}
		e, category, err := parseExpenseRow(row)
		if err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := rec.RecordExpense(ctx, e, category); err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}
		imported++
	}
}

func parseExpenseRow(row []string) (core.Expense, string, error) {
	userID, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil || userID <= 0 {
		return core.Expense{}, "", fmt.Errorf("invalid user_id %q", row[0])
	}
	date, err := core.ParseDate(strings.TrimSpace(row[1]))
	if err != nil {
		return core.Expense{}, "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", row[1])
	}
	cents, err := core.ParseDecimalToCents(strings.TrimSpace(row[2]))
	if err != nil {
		return core.Expense{}, "", fmt.Errorf("invalid amount %q: %w", row[2], err)
	}
	return core.Expense{
		UserID:      userID,
		Date:        date,
		Amount:      core.Money{Cents: cents},
		Description: strings.TrimSpace(row[4]),
	}, strings.TrimSpace(row[3]), nil
}
