package strategy

import "VCPScanner/internal/model"

// filter is one leg of the VCP test. All legs must pass.
type filter struct {
	reason model.RejectReason
	pass   func(ind model.Indicators, p Params) bool
}

// filters run in order; the first failure names the rejection.
var filters = []filter{
	{model.ReasonBelowTrend, trendFilter},
	{model.ReasonNoContraction, contractionFilter},
	{model.ReasonFarFromPivot, breakoutFilter},
}

// trendFilter keeps symbols trading above their EMA.
func trendFilter(ind model.Indicators, _ Params) bool {
	return ind.Close > ind.EMA
}

// contractionFilter keeps symbols whose ATR sits within VolFactor of its trailing floor.
func contractionFilter(ind model.Indicators, p Params) bool {
	return ind.ATR <= ind.MinATR*p.VolFactor
}

// breakoutFilter keeps symbols closing within BreakoutFactor of the pivot high.
func breakoutFilter(ind model.Indicators, p Params) bool {
	return ind.Close >= ind.PivotHigh*p.BreakoutFactor
}
