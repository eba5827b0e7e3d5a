package scanner

import (
	"time"

	"VCPScanner/internal/calculator"
	"VCPScanner/internal/config"
	"VCPScanner/internal/strategy"
)

// Options configures candidate selection, request pacing and the fallback chain.
type Options struct {
	CandidatePool   int
	MaxResults      int
	HistoryDays     int
	SnapshotRetries int
	RetryBaseDelay  time.Duration
	RequestDelay    time.Duration
	// FallbackOnEmpty sends a primary scan that qualified nothing to the seed tier.
	// When false such a scan goes straight to the static default.
	FallbackOnEmpty bool

	SeedWatchlist []config.Symbol
	DefaultSymbol config.Symbol
}

// OptionsFromConfig maps the scan section of the config onto Options.
func OptionsFromConfig(c config.ScanConfig) Options {
	return Options{
		CandidatePool:   c.CandidatePool,
		MaxResults:      c.MaxResults,
		HistoryDays:     c.HistoryDays,
		SnapshotRetries: c.SnapshotRetries,
		RetryBaseDelay:  c.RetryBaseDelay,
		RequestDelay:    c.RequestDelay,
		FallbackOnEmpty: c.FallbackEnabled(),
		SeedWatchlist:   append([]config.Symbol(nil), c.SeedWatchlist...),
		DefaultSymbol:   c.DefaultSymbol,
	}
}

// ClassifierParams maps the scan section of the config onto classifier thresholds.
func ClassifierParams(c config.ScanConfig) strategy.Params {
	return strategy.Params{
		Indicators: calculator.Params{
			EMAPeriod:   c.EMAPeriod,
			ATRWindow:   c.ATRWindow,
			VCPPeriod:   c.VCPPeriod,
			PivotWindow: c.PivotWindow,
		},
		VolFactor:      c.VolFactor,
		BreakoutFactor: c.BreakoutFactor,
	}
}
