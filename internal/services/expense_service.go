package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spese-insights/internal/amqp"
	"spese-insights/internal/core"
)

type (
	// ExpenseWriter is the write side of the expense store.
	ExpenseWriter interface {
		CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error)
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	}

	// Publisher emits analysis requests; nil disables publishing.
	Publisher interface {
		PublishAnalysisRequest(ctx context.Context, msg *amqp.AnalysisRequestMessage) error
		Close() error
	}
)

// ExpenseService records expenses and asks the worker to re-analyse the owner.
type ExpenseService struct {
	storage   ExpenseWriter
	publisher Publisher
}

func NewExpenseService(storage ExpenseWriter, publisher Publisher) *ExpenseService {
	return &ExpenseService{
		storage:   storage,
		publisher: publisher,
	}
}

// RecordExpense stores e, creating the named category when needed, then
// publishes an analysis request. A publish failure is logged, not returned:
// the expense is already stored.
func (s *ExpenseService) RecordExpense(ctx context.Context, e core.Expense, category string) (core.Expense, error) {
	if category != "" {
		c, err := s.storage.CreateCategory(ctx, e.UserID, category)
		if err != nil {
			return core.Expense{}, fmt.Errorf("resolve category %q: %w", category, err)
		}
		e.CategoryID = &c.ID
	}

	saved, err := s.storage.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	if err := s.RequestAnalysis(ctx, saved.UserID, amqp.ReasonExpenseRecorded); err != nil {
		slog.ErrorContext(ctx, "Failed to publish analysis request",
			"expense_id", saved.ID, "user_id", saved.UserID, "error", err)
	}
	return saved, nil
}

// RequestAnalysis publishes an analysis request for userID.
func (s *ExpenseService) RequestAnalysis(ctx context.Context, userID int64, reason string) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping analysis request", "user_id", userID)
		return nil
	}
	return s.publisher.PublishAnalysisRequest(ctx, amqp.NewAnalysisRequestMessage(userID, reason))
}

// Close closes the publisher. The store is owned by the backend.
func (s *ExpenseService) Close() error {
	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
