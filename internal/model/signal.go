package model

import "time"

// RejectReason names the first filter a series failed.
type RejectReason string

const (
	ReasonNone             RejectReason = ""
	ReasonInsufficientData RejectReason = "INSUFFICIENT_DATA"
	ReasonMalformedData    RejectReason = "MALFORMED_DATA"
	ReasonBelowTrend       RejectReason = "BELOW_TREND"
	ReasonNoContraction    RejectReason = "NO_CONTRACTION"
	ReasonFarFromPivot     RejectReason = "FAR_FROM_PIVOT"
)

// Decision is the classifier's verdict for one symbol.
type Decision struct {
	Qualified  bool
	Reason     RejectReason
	Indicators Indicators
}

// Tier identifies which stage of the fallback chain produced a result.
type Tier string

const (
	TierPrimary Tier = "PRIMARY"
	TierSeed    Tier = "SEED"
	TierDefault Tier = "DEFAULT"
)

// Candidate is one qualified symbol handed to downstream review.
type Candidate struct {
	Code       string
	Name       string
	Indicators Indicators // zero for the static default
}

// ScanResult is the ordered output of one scan.
type ScanResult struct {
	Candidates []Candidate
	Tier       Tier
	StartedAt  time.Time
	Duration   time.Duration
}

// Codes returns the candidate codes in result order.
func (r *ScanResult) Codes() []string {
	codes := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		codes[i] = c.Code
	}
	return codes
}
