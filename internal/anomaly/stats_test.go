package anomaly

import (
	"math"
	"testing"
)

func TestSampleStdDev(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single value", []float64{42}, 0},
		{"two values", []float64{2, 4}, math.Sqrt2},
		{"constant", []float64{10, 10, 10}, 0},
		{"skewed window", []float64{10, 10, 10, 1000}, 495},
		{"textbook", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 2.138089935299395},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SampleStdDev(tt.values)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SampleStdDev(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestMeanAndMinMax(t *testing.T) {
	if got := Mean([]float64{10, 10, 10, 1000}); got != 257.5 {
		t.Errorf("Mean = %v, want 257.5", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	lo, hi := MinMax([]float64{5, -1, 3, 9})
	if lo != -1 || hi != 9 {
		t.Errorf("MinMax = (%v, %v), want (-1, 9)", lo, hi)
	}
}
