package calculator

import (
	"errors"
	"math"

	"VCPScanner/internal/model"
)

// CalculateRange scans the most recent lookback bars and returns the high and low.
// A series shorter than lookback is scanned in full.
func CalculateRange(bars []model.Bar, lookback int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	if lookback <= 0 {
		return 0, 0, errors.New("lookback must be positive")
	}
	start := len(bars) - lookback
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < len(bars); i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, nil
}

// CalculatePivotHigh returns the highest high over the trailing window, the resistance
// level a breakout is measured against.
func CalculatePivotHigh(bars []model.Bar, window int) (float64, error) {
	high, _, err := CalculateRange(bars, window)
	return high, err
}
