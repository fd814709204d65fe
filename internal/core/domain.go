package core

import (
	"errors"
	"time"
)

const (
	MethodStdDev             DetectionMethod = "stddev"
	MethodNormalizedDistance DetectionMethod = "normalized-distance"
)

const (
	ModelSimpleAverage ForecastModel = "simple_average"
	ModelMovingAverage ForecastModel = "moving_average"
)

type (
	DetectionMethod string
	ForecastModel   string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is a row owned by the CRUD layer; the analytics never mutate it.
	Expense struct {
		ID          int64
		UserID      int64
		Amount      Money
		Date        Date
		CategoryID  *int64
		Description string
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
	}

	// Anomaly is a persisted detection result, at most one per expense.
	Anomaly struct {
		ID                 int64
		ExpenseID          int64
		UserID             int64
		Score              float64
		Method             DetectionMethod
		Reason             string
		IsReviewed         bool
		IsConfirmedAnomaly *bool
		ReviewedAt         time.Time
		CreatedAt          time.Time
	}

	// AnomalyRecord is what a detector hands to the store.
	AnomalyRecord struct {
		ExpenseID  int64
		UserID     int64
		Score      float64
		Method     DetectionMethod
		Reason     string
		ReviewedAt time.Time
	}

	// AnomalyResult is the scoring outcome for one expense of a window.
	AnomalyResult struct {
		ExpenseID int64           `json:"expense_id"`
		Amount    float64         `json:"amount"`
		Date      string          `json:"date"`
		IsAnomaly bool            `json:"is_anomaly"`
		Score     float64         `json:"anomaly_score"`
		Reason    string          `json:"reason"`
		Method    DetectionMethod `json:"detection_method"`
	}

	// AnomalyView is a stored anomaly joined with its expense.
	AnomalyView struct {
		ExpenseID  int64           `json:"expense_id"`
		Amount     float64         `json:"amount"`
		Date       string          `json:"date"`
		IsAnomaly  bool            `json:"is_anomaly"`
		Score      float64         `json:"anomaly_score"`
		Reason     string          `json:"reason"`
		Method     DetectionMethod `json:"detection_method"`
		ReviewedAt string          `json:"reviewed_at"`
		IsReviewed bool            `json:"is_reviewed"`
	}

	ModelParameters struct {
		Method     ForecastModel `json:"method"`
		WindowSize int           `json:"window_size,omitempty"`
		DataPoints int           `json:"data_points"`
	}

	Forecast struct {
		ID              int64
		UserID          int64
		CategoryID      *int64
		PredictedAmount Money
		ForecastDate    Date
		Confidence      float64
		Parameters      ModelParameters
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// ForecastRecord is the upsert payload keyed by (UserID, CategoryID, ForecastDate).
	ForecastRecord struct {
		UserID          int64
		CategoryID      *int64
		PredictedAmount Money
		ForecastDate    Date
		Confidence      float64
		Parameters      ModelParameters
	}

	ForecastView struct {
		UserID          int64           `json:"user_id"`
		CategoryID      *int64          `json:"category_id"`
		PredictedAmount float64         `json:"predicted_amount"`
		ForecastDate    string          `json:"forecast_date"`
		Confidence      float64         `json:"confidence_score"`
		Parameters      ModelParameters `json:"model_parameters"`
	}

	// MonthlyTotal is one point of an aggregated spending series.
	MonthlyTotal struct {
		Month Date
		Total Money
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidThreshold = errors.New("threshold must be a positive number")
	ErrUnknownMethod    = errors.New("unknown detection method")
	ErrInvalidHorizon   = errors.New("forecast horizon must be at least one month")
	ErrInvalidUser      = errors.New("invalid user id")
	ErrInvalidRange     = errors.New("date_from is after date_to")
	ErrNotFound         = errors.New("not found")
)

const DateLayout = "2006-01-02"

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string into a UTC Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// MonthStart returns the first day of the month containing t, in UTC.
func MonthStart(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), 1)
}

// AddMonths moves a month-start date by n calendar months.
func (d Date) AddMonths(n int) Date {
	return Date{Time: d.AddDate(0, n, 0)}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if e.UserID <= 0 {
		return ErrInvalidUser
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return e.Amount.Validate()
}

// SameCategory reports whether two nullable category ids denote the same series.
func SameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// View converts a stored forecast to its caller-facing shape.
func (f Forecast) View() ForecastView {
	return ForecastView{
		UserID:          f.UserID,
		CategoryID:      f.CategoryID,
		PredictedAmount: f.PredictedAmount.Float(),
		ForecastDate:    f.ForecastDate.String(),
		Confidence:      f.Confidence,
		Parameters:      f.Parameters,
	}
}

// UpsertOutcome tells what a conditional upsert did to storage.
type UpsertOutcome string

const (
	UpsertInserted  UpsertOutcome = "inserted"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// ForecastFilter selects stored forecasts. From is inclusive, Before exclusive.
// A nil CategoryID selects the aggregate series unless AllCategories is set.
type ForecastFilter struct {
	UserID        int64
	CategoryID    *int64
	AllCategories bool
	From          *Date
	Before        *Date
}

// Differs reports whether storing rec over f would change anything.
func (f Forecast) Differs(rec ForecastRecord) bool {
	return f.PredictedAmount != rec.PredictedAmount ||
		f.Confidence != rec.Confidence ||
		f.Parameters != rec.Parameters
}

// NewAnomalyView joins a stored anomaly with its expense.
func NewAnomalyView(e Expense, a Anomaly) AnomalyView {
	return AnomalyView{
		ExpenseID:  e.ID,
		Amount:     e.Amount.Float(),
		Date:       e.Date.String(),
		IsAnomaly:  true,
		Score:      a.Score,
		Reason:     a.Reason,
		Method:     a.Method,
		ReviewedAt: a.ReviewedAt.UTC().Format(time.RFC3339),
		IsReviewed: a.IsReviewed,
	}
}
