package collector

import (
	"context"
	"errors"

	"VCPScanner/internal/model"
)

// ErrUpstreamUnavailable wraps every failed or empty upstream response.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Provider supplies the market-wide snapshot and per-symbol daily history.
// Codes are plain six-digit strings; any source-specific prefixing happens inside.
type Provider interface {
	Snapshot(ctx context.Context) ([]model.SnapshotRow, error)
	History(ctx context.Context, code string, days int) ([]model.Bar, error)
	Name() string
}
