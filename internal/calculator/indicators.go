package calculator

import (
	"errors"
	"fmt"
	"math"

	"VCPScanner/internal/model"
)

var (
	// ErrInsufficientData is returned when a series is shorter than the lookback.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMalformedBar is returned when a bar carries prices no market could print.
	ErrMalformedBar = errors.New("malformed bar")
)

// biasPeriod is the moving average the reported close bias is measured against.
const biasPeriod = 5

// Params configures the indicator windows.
type Params struct {
	EMAPeriod   int
	ATRWindow   int
	VCPPeriod   int
	PivotWindow int
}

// DefaultParams returns the standard 50/14/50/20 windows.
func DefaultParams() Params {
	return Params{
		EMAPeriod:   50,
		ATRWindow:   14,
		VCPPeriod:   50,
		PivotWindow: 20,
	}
}

// MinBars is the shortest series Compute accepts.
func (p Params) MinBars() int {
	n := p.VCPPeriod
	if p.ATRWindow+1 > n {
		n = p.ATRWindow + 1
	}
	return n
}

// Validate checks that every window is positive.
func (p Params) Validate() error {
	if p.EMAPeriod <= 0 || p.ATRWindow <= 0 || p.VCPPeriod <= 0 || p.PivotWindow <= 0 {
		return fmt.Errorf("indicator windows must be positive: %+v", p)
	}
	return nil
}

// Compute derives the latest bar's EMA, ATR, minimum trailing ATR and pivot high.
// The length check runs before anything else touches the series.
func Compute(bars []model.Bar, p Params) (model.Indicators, error) {
	if len(bars) < p.MinBars() {
		return model.Indicators{}, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(bars), p.MinBars())
	}
	if err := p.Validate(); err != nil {
		return model.Indicators{}, err
	}
	if err := validateBars(bars); err != nil {
		return model.Indicators{}, err
	}

	last := len(bars) - 1
	closes := model.Closes(bars)

	ema, err := CalculateEMA(closes, p.EMAPeriod)
	if err != nil {
		return model.Indicators{}, fmt.Errorf("ema: %w", err)
	}
	atr, err := CalculateATR(bars, p.ATRWindow)
	if err != nil {
		return model.Indicators{}, fmt.Errorf("atr: %w", err)
	}
	minATR, ok := trailingMin(atr, p.VCPPeriod)
	if !ok {
		return model.Indicators{}, fmt.Errorf("%w: no ATR value in the last %d bars", ErrInsufficientData, p.VCPPeriod)
	}
	pivot, err := CalculatePivotHigh(bars, p.PivotWindow)
	if err != nil {
		return model.Indicators{}, fmt.Errorf("pivot high: %w", err)
	}
	ma5, err := CalculateSMA(closes, min(biasPeriod, len(closes)))
	if err != nil {
		return model.Indicators{}, fmt.Errorf("ma%d: %w", biasPeriod, err)
	}

	return model.Indicators{
		Close:     bars[last].Close,
		EMA:       ema[last],
		ATR:       atr[last],
		MinATR:    minATR,
		PivotHigh: pivot,
		MA5:       ma5,
	}, nil
}

func validateBars(bars []model.Bar) error {
	for i, b := range bars {
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("%w: bar %d has price %v", ErrMalformedBar, i, v)
			}
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: bar %d high %.4f below low %.4f", ErrMalformedBar, i, b.High, b.Low)
		}
		if i > 0 && !b.Time.IsZero() && !bars[i-1].Time.IsZero() && !b.Time.After(bars[i-1].Time) {
			return fmt.Errorf("%w: bar %d out of order at %s", ErrMalformedBar, i, b.Time.Format("2006-01-02"))
		}
	}
	return nil
}
