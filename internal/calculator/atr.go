package calculator

import (
	"errors"
	"math"

	"VCPScanner/internal/model"
)

// TrueRange returns the true range of every bar. The first bar has no previous close,
// so its entry is NaN.
func TrueRange(bars []model.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i := range bars {
		if i == 0 {
			tr[i] = math.NaN()
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
	}
	return tr
}

// CalculateATR returns the rolling mean of the true range over window bars. Entries
// before index window are NaN: the first bar contributes no true range, so the window
// is full only once window true ranges exist.
func CalculateATR(bars []model.Bar, window int) ([]float64, error) {
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}
	if len(bars) < window+1 {
		return nil, errors.New("not enough data for ATR calculation")
	}
	tr := TrueRange(bars)
	atr := make([]float64, len(bars))
	for i := range bars {
		if i < window {
			atr[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range tr[i-window+1 : i+1] {
			sum += v
		}
		atr[i] = sum / float64(window)
	}
	return atr, nil
}

// trailingMin returns the smallest defined value among the last n entries.
func trailingMin(values []float64, n int) (float64, bool) {
	start := len(values) - n
	if start < 0 {
		start = 0
	}
	low := math.Inf(1)
	found := false
	for _, v := range values[start:] {
		if math.IsNaN(v) {
			continue
		}
		if v < low {
			low = v
		}
		found = true
	}
	return low, found
}
