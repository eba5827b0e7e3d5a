package model

import "time"

// Bar represents one trading day for one symbol.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// SnapshotRow is one symbol's same-day state from a market-wide snapshot.
type SnapshotRow struct {
	Code      string
	Name      string
	ChangePct float64
	Turnover  float64
}

// Closes extracts the close prices of bars in order.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
