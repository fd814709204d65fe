package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"spese-insights/internal/anomaly"
	"spese-insights/internal/backend"
	"spese-insights/internal/core"
)

// Opener builds the application for one command run. The returned func
// releases the backend.
type Opener func(ctx context.Context) (*backend.App, func() error, error)

// Defaults seed flags the operator leaves out.
type Defaults struct {
	Threshold float64
	Method    core.DetectionMethod
	Months    int
}

type root struct {
	open     Opener
	defaults Defaults
}

// NewRootCmd assembles the insightsctl command tree.
func NewRootCmd(open Opener, defaults Defaults) *cobra.Command {
	r := &root{open: open, defaults: defaults}
	cmd := &cobra.Command{
		Use:           "insightsctl",
		Short:         "Detect spending anomalies and forecast monthly expenses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		r.newDetectCmd(),
		r.newForecastCmd(),
		r.newHistoryCmd(),
		r.newImportCmd(),
		r.newExportCmd(),
	)
	return cmd
}

// withApp opens the backend, runs fn and always releases the backend.
func (r *root) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *backend.App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, release, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer func() {
		if cerr := release(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close backend: %w", cerr))
		}
	}()
	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseOptionalDate(flag, value string) (*core.Date, error) {
	if value == "" {
		return nil, nil
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", flag, value)
	}
	return &d, nil
}

type detectCmd struct {
	userID    int64
	threshold float64
	from, to  string
	method    string
	dryRun    bool
}

func (r *root) newDetectCmd() *cobra.Command {
	dc := &detectCmd{}
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Flag outlier expenses for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("threshold") {
				if err := anomaly.ValidateThreshold(dc.threshold); err != nil {
					return err
				}
			}
			return r.withApp(cmd, dc.run(cmd.OutOrStdout()))
		},
	}
	cmd.Flags().Int64Var(&dc.userID, "user", 0, "User id")
	cmd.Flags().Float64Var(&dc.threshold, "threshold", r.defaults.Threshold, "Sensitivity; std devs for stddev")
	cmd.Flags().StringVar(&dc.from, "from", "", "First day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dc.to, "to", "", "Last day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dc.method, "method", string(r.defaults.Method), "Detection method: stddev or normalized-distance")
	cmd.Flags().BoolVar(&dc.dryRun, "dry-run", false, "Score the window without storing anomalies")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (dc *detectCmd) run(out io.Writer) func(context.Context, *backend.App) error {
	return func(ctx context.Context, app *backend.App) error {
		from, err := parseOptionalDate("from", dc.from)
		if err != nil {
			return err
		}
		to, err := parseOptionalDate("to", dc.to)
		if err != nil {
			return err
		}
		req := anomaly.DetectRequest{
			UserID:    dc.userID,
			Threshold: dc.threshold,
			From:      from,
			To:        to,
			Method:    core.DetectionMethod(dc.method),
		}
		if dc.dryRun {
			results, err := app.Insights.PreviewAnomalies(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(out, results)
		}
		views, err := app.Insights.DetectAnomalies(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(out, views)
	}
}

type forecastCmd struct {
	userID     int64
	months     int
	byCategory bool
}

func (r *root) newForecastCmd() *cobra.Command {
	fc := &forecastCmd{}
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast monthly spending and store the projections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *backend.App) error {
				run := app.Insights.Forecast
				if fc.byCategory {
					run = app.Insights.ForecastByCategory
				}
				views, err := run(ctx, fc.userID, fc.months)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), views)
			})
		},
	}
	cmd.Flags().Int64Var(&fc.userID, "user", 0, "User id")
	cmd.Flags().IntVar(&fc.months, "months", r.defaults.Months, "Months ahead to forecast")
	cmd.Flags().BoolVar(&fc.byCategory, "by-category", false, "Forecast each category separately")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (r *root) newHistoryCmd() *cobra.Command {
	var (
		userID int64
		month  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List forecast months already past, or the forecasts of one month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *backend.App) error {
				if month != "" {
					views, err := app.Insights.ForecastsForMonth(ctx, userID, month)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), views)
				}
				months, err := app.Insights.ForecastHistory(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), months)
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User id")
	cmd.Flags().StringVar(&month, "month", "", "Forecast month (YYYY-MM)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (r *root) newImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load expenses from a CSV file",
		Long:  "Columns: user_id,date,amount,category,description. A header row is skipped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			return r.withApp(cmd, func(ctx context.Context, app *backend.App) error {
				n, err := ImportExpenses(ctx, f, app.Expenses)
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d expenses\n", n)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file to import")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (r *root) newExportCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored forecasts and anomalies to the report spreadsheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, app *backend.App) error {
				if app.Reports == nil {
					return errors.New("report export disabled: set GOOGLE_SPREADSHEET_ID")
				}
				if err := app.Reports.ExportReport(ctx, userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported report for user %d\n", userID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
