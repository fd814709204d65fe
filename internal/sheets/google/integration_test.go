//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"spese-insights/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_WriteReport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	forecasts := []core.ForecastView{{
		UserID:          999,
		ForecastDate:    "2099-01-01",
		PredictedAmount: 12.34,
		Confidence:      0.5,
		Parameters:      core.ModelParameters{Method: core.ModelSimpleAverage},
	}}
	if err := client.WriteForecasts(ctx, 999, forecasts); err != nil {
		t.Fatalf("WriteForecasts: %v", err)
	}
	if err := client.WriteAnomalies(ctx, 999, nil); err != nil {
		t.Fatalf("WriteAnomalies: %v", err)
	}
}
