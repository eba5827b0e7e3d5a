package strategy

import (
	"errors"

	"VCPScanner/internal/calculator"
	"VCPScanner/internal/logger"
	"VCPScanner/internal/model"
)

// Params holds every classifier threshold.
type Params struct {
	Indicators     calculator.Params
	VolFactor      float64
	BreakoutFactor float64
}

// DefaultParams returns EMA50, ATR14, a 50-bar contraction lookback with 10% tolerance
// and a 20-bar pivot with 2% proximity.
func DefaultParams() Params {
	return Params{
		Indicators:     calculator.DefaultParams(),
		VolFactor:      1.1,
		BreakoutFactor: 0.98,
	}
}

// Qualifies applies the three filters to precomputed indicators.
func Qualifies(ind model.Indicators, p Params) (bool, model.RejectReason) {
	for _, f := range filters {
		if !f.pass(ind, p) {
			return false, f.reason
		}
	}
	return true, model.ReasonNone
}

// Classifier decides whether a bar series shows a volatility contraction setup.
type Classifier struct {
	params Params
	logger *logger.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(p Params, log *logger.Logger) *Classifier {
	return &Classifier{params: p, logger: log}
}

// Params returns the classifier's thresholds.
func (c *Classifier) Params() Params { return c.params }

// MinBars is the shortest series the classifier will evaluate.
func (c *Classifier) MinBars() int { return c.params.Indicators.MinBars() }

// Evaluate classifies one symbol's series. Indicator errors reject the symbol; they are
// never returned.
func (c *Classifier) Evaluate(code string, bars []model.Bar) model.Decision {
	ind, err := calculator.Compute(bars, c.params.Indicators)
	if err != nil {
		reason := model.ReasonMalformedData
		if errors.Is(err, calculator.ErrInsufficientData) {
			reason = model.ReasonInsufficientData
		}
		c.logger.WithFields(map[string]interface{}{
			"code":   code,
			"bars":   len(bars),
			"reason": reason,
		}).WithError(err).Debug("Series rejected before classification")
		return model.Decision{Reason: reason}
	}

	ok, reason := Qualifies(ind, c.params)
	c.logger.WithFields(map[string]interface{}{
		"code":       code,
		"close":      ind.Close,
		"ema":        ind.EMA,
		"atr":        ind.ATR,
		"min_atr":    ind.MinATR,
		"pivot_high": ind.PivotHigh,
		"qualified":  ok,
		"reason":     reason,
	}).Debug("Classified series")

	return model.Decision{Qualified: ok, Reason: reason, Indicators: ind}
}
