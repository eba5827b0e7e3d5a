package model

// Indicators holds the trailing values derived from a bar series for its latest bar.
type Indicators struct {
	Close     float64
	EMA       float64
	ATR       float64
	MinATR    float64 // minimum ATR over the contraction lookback
	PivotHigh float64 // highest high over the breakout lookback
	MA5       float64 // informational; no filter uses it
}

// BiasMA5 is the close's percentage distance from MA5.
func (i Indicators) BiasMA5() float64 {
	if i.MA5 == 0 {
		return 0
	}
	return (i.Close - i.MA5) / i.MA5 * 100
}
