// Package worker consumes analysis requests and refreshes a user's insights.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"spese-insights/internal/amqp"
	"spese-insights/internal/core"
	"spese-insights/internal/services"
)

type (
	// Analyzer runs detection and both forecasts for one user.
	Analyzer interface {
		RunAnalysis(ctx context.Context, req services.AnalysisRequest) (services.AnalysisSummary, error)
	}

	// Exporter copies stored results to the report spreadsheet.
	Exporter interface {
		ExportReport(ctx context.Context, userID int64) error
	}

	// Consumer feeds messages to a handler until its context ends.
	Consumer interface {
		ConsumeAnalysisRequests(ctx context.Context, handler amqp.Handler) error
	}
)

// Defaults apply to message fields left at zero.
type Defaults struct {
	Months    int
	Threshold float64
	Method    core.DetectionMethod
}

// AnalysisWorker handles analysis requests from AMQP.
type AnalysisWorker struct {
	analyzer Analyzer
	exporter Exporter
	defaults Defaults
}

// NewAnalysisWorker builds a worker; exporter may be nil to skip report export.
func NewAnalysisWorker(analyzer Analyzer, exporter Exporter, defaults Defaults) *AnalysisWorker {
	return &AnalysisWorker{
		analyzer: analyzer,
		exporter: exporter,
		defaults: defaults,
	}
}

func (w *AnalysisWorker) request(msg *amqp.AnalysisRequestMessage) services.AnalysisRequest {
	req := services.AnalysisRequest{
		UserID:    msg.UserID,
		Months:    msg.Months,
		Threshold: msg.Threshold,
		Method:    core.DetectionMethod(msg.Method),
	}
	if req.Months == 0 {
		req.Months = w.defaults.Months
	}
	if req.Threshold == 0 {
		req.Threshold = w.defaults.Threshold
	}
	if req.Method == "" {
		req.Method = w.defaults.Method
	}
	return req
}

// HandleAnalysisRequest runs the analysis for one message. Requests the
// analysis rejects as invalid are reported as amqp.ErrMalformed so they are
// dropped; storage errors are returned as-is and the message is requeued.
// A failed export is logged only, since the analysis itself is stored.
func (w *AnalysisWorker) HandleAnalysisRequest(ctx context.Context, msg *amqp.AnalysisRequestMessage) error {
	slog.InfoContext(ctx, "Processing analysis request",
		"message_id", msg.MessageID,
		"user_id", msg.UserID,
		"reason", msg.Reason)

	sum, err := w.analyzer.RunAnalysis(ctx, w.request(msg))
	if err != nil {
		if errors.Is(err, services.ErrInvalidRequest) {
			return fmt.Errorf("%w: %w", amqp.ErrMalformed, err)
		}
		return fmt.Errorf("run analysis for user %d: %w", msg.UserID, err)
	}

	if w.exporter != nil {
		if err := w.exporter.ExportReport(ctx, msg.UserID); err != nil {
			slog.ErrorContext(ctx, "Report export failed",
				"user_id", msg.UserID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Analysis request done",
		"message_id", msg.MessageID,
		"user_id", msg.UserID,
		"anomalies", sum.Anomalies,
		"forecasts", sum.Forecasts,
		"category_forecasts", sum.CategoryForecasts)
	return nil
}

// Run consumes until ctx is cancelled, then calls closeFn. A consumer failure
// cancels the group and is returned; cancellation alone is not an error.
func (w *AnalysisWorker) Run(ctx context.Context, consumer Consumer, closeFn func() error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := consumer.ConsumeAnalysisRequests(gctx, w.HandleAnalysisRequest)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down analysis worker")
		if closeFn != nil {
			return closeFn()
		}
		return nil
	})

	return g.Wait()
}
