// Package forecast projects monthly spending a few months ahead.
//
// The engine is pure: it turns a chronological series of monthly totals into
// one projection per requested month. Each projection is appended to the
// series before the next month is computed, so later months average over
// earlier predictions.
package forecast

import (
	"github.com/shopspring/decimal"

	"spese-insights/internal/core"
)

const (
	// HistoryMonths is the trailing aggregation window, current month included.
	HistoryMonths = 12
	// WindowSize is the moving-average window.
	WindowSize = 3
	// DefaultHorizon is the number of months forecast when the caller passes none.
	DefaultHorizon = 3
	// MaxHorizon caps the requested horizon.
	MaxHorizon = 24
)

var (
	baseConfidence   = decimal.RequireFromString("0.6")
	confidenceStep   = decimal.RequireFromString("0.02")
	maxConfidence    = decimal.RequireFromString("0.9")
	simpleConfidence = decimal.RequireFromString("0.5")
)

// Projection is the engine output for one future month.
type Projection struct {
	Amount     core.Money
	Confidence float64
	Parameters core.ModelParameters
}

// rollingSeries is the buffer threaded through the horizon loop.
// observed counts the real monthly totals at the front of points.
type rollingSeries struct {
	points   []decimal.Decimal
	observed int
}

func newRollingSeries(history []core.Money) *rollingSeries {
	points := make([]decimal.Decimal, len(history))
	for i, m := range history {
		points[i] = m.Decimal()
	}
	return &rollingSeries{points: points, observed: len(history)}
}

func (s *rollingSeries) len() int { return len(s.points) }

func (s *rollingSeries) push(m core.Money) {
	s.points = append(s.points, m.Decimal())
}

func mean(points []decimal.Decimal) decimal.Decimal {
	if len(points) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(points[0], points[1:]...).Div(decimal.NewFromInt(int64(len(points))))
}

// next computes one projection from the current buffer contents.
// A series with no observed months stays on the simple average.
func (s *rollingSeries) next() Projection {
	n := s.len()
	if n < WindowSize || s.observed == 0 {
		return Projection{
			Amount:     core.MoneyFromDecimal(mean(s.points)),
			Confidence: simpleConfidence.InexactFloat64(),
			Parameters: core.ModelParameters{
				Method:     core.ModelSimpleAverage,
				DataPoints: s.observed,
			},
		}
	}
	return Projection{
		Amount:     core.MoneyFromDecimal(mean(s.points[n-WindowSize:])),
		Confidence: MovingAverageConfidence(n),
		Parameters: core.ModelParameters{
			Method:     core.ModelMovingAverage,
			WindowSize: WindowSize,
			DataPoints: s.observed,
		},
	}
}

// MovingAverageConfidence is min(0.9, 0.6 + 0.02*n).
func MovingAverageConfidence(n int) float64 {
	c := baseConfidence.Add(confidenceStep.Mul(decimal.NewFromInt(int64(n))))
	return decimal.Min(c, maxConfidence).InexactFloat64()
}

// Project returns months projections for the series history (oldest first).
func Project(history []core.Money, months int) []Projection {
	if months <= 0 {
		return nil
	}
	series := newRollingSeries(history)
	out := make([]Projection, 0, months)
	for i := 0; i < months; i++ {
		p := series.next()
		out = append(out, p)
		series.push(p.Amount)
	}
	return out
}
