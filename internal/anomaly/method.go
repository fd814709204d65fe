// Package anomaly scores expense windows and persists the outliers.
//
// Scoring is a strategy: each detection method turns the window amounts into
// one score per expense plus a cutoff derived from the caller threshold.
package anomaly

import (
	"fmt"
	"math"
	"sync"

	"spese-insights/internal/core"
)

// Method is the strategy interface for a detection method.
type Method interface {
	// Name is the tag stored in anomalies.detection_method.
	Name() core.DetectionMethod

	// Scores returns one score per amount, in input order. ok is false when the
	// window cannot discriminate (zero variance or zero range); nothing is scored then.
	Scores(amounts []float64) (scores []float64, ok bool)

	// Cutoff maps the caller threshold onto this method's score scale.
	Cutoff(threshold float64) float64

	// Reason renders the human-readable explanation stored with an anomaly.
	Reason(score float64) string
}

// StdDevMethod scores |amount - mean| / sample std.
type StdDevMethod struct{}

func (StdDevMethod) Name() core.DetectionMethod { return core.MethodStdDev }

func (StdDevMethod) Scores(amounts []float64) ([]float64, bool) {
	std := SampleStdDev(amounts)
	if std == 0 {
		return nil, false
	}
	mean := Mean(amounts)
	scores := make([]float64, len(amounts))
	for i, a := range amounts {
		scores[i] = math.Abs(a-mean) / std
	}
	return scores, true
}

func (StdDevMethod) Cutoff(threshold float64) float64 { return threshold }

func (StdDevMethod) Reason(score float64) string {
	return fmt.Sprintf("Amount deviates from mean by %.2f std devs", score)
}

// NormalizedDistanceMethod min-max scales the window into [0,1] and scores the
// distance of each scaled amount from the scaled mean, so scores stay in [0,1].
type NormalizedDistanceMethod struct{}

func (NormalizedDistanceMethod) Name() core.DetectionMethod { return core.MethodNormalizedDistance }

func (NormalizedDistanceMethod) Scores(amounts []float64) ([]float64, bool) {
	lo, hi := MinMax(amounts)
	span := hi - lo
	if span == 0 {
		return nil, false
	}
	scaled := make([]float64, len(amounts))
	for i, a := range amounts {
		scaled[i] = (a - lo) / span
	}
	mean := Mean(scaled)
	scores := make([]float64, len(scaled))
	for i, s := range scaled {
		scores[i] = math.Abs(s - mean)
	}
	return scores, true
}

// Cutoff keeps thresholds already on the [0,1] scale and maps std-dev style
// sensitivities (> 1) to 1 - 1/threshold, so the default 2.0 becomes 0.5.
func (NormalizedDistanceMethod) Cutoff(threshold float64) float64 {
	if threshold <= 1 {
		return threshold
	}
	return 1 - 1/threshold
}

func (NormalizedDistanceMethod) Reason(score float64) string {
	return fmt.Sprintf("Normalized distance from mean is %.2f", score)
}

var (
	methodsMu sync.RWMutex
	methods   = map[core.DetectionMethod]Method{
		core.MethodStdDev:             StdDevMethod{},
		core.MethodNormalizedDistance: NormalizedDistanceMethod{},
	}
)

// GetMethod returns the strategy registered under name. An empty name selects stddev.
func GetMethod(name core.DetectionMethod) (Method, error) {
	if name == "" {
		name = core.MethodStdDev
	}
	methodsMu.RLock()
	defer methodsMu.RUnlock()
	m, ok := methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownMethod, name)
	}
	return m, nil
}

// RegisterMethod adds or replaces a detection method.
func RegisterMethod(m Method) {
	methodsMu.Lock()
	defer methodsMu.Unlock()
	methods[m.Name()] = m
}

// ValidateThreshold rejects non-positive and non-finite thresholds.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return fmt.Errorf("%w: %v", core.ErrInvalidThreshold, threshold)
	}
	return nil
}
