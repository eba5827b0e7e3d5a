package recorder

import (
	"context"
	"fmt"

	"VCPScanner/internal/collector"
	"VCPScanner/internal/logger"
	"VCPScanner/internal/model"
)

// RecordingProvider tees successful responses of next into a Recorder.
// Recording failures are logged and never fail the fetch.
type RecordingProvider struct {
	next   collector.Provider
	rec    Recorder
	logger *logger.Logger
}

func NewRecordingProvider(next collector.Provider, rec Recorder, log *logger.Logger) *RecordingProvider {
	return &RecordingProvider{next: next, rec: rec, logger: log}
}

func (p *RecordingProvider) Name() string { return p.next.Name() }

func (p *RecordingProvider) Snapshot(ctx context.Context) ([]model.SnapshotRow, error) {
	rows, err := p.next.Snapshot(ctx)
	if err != nil || len(rows) == 0 {
		return rows, err
	}
	if rerr := p.rec.RecordSnapshot(p.next.Name(), rows); rerr != nil {
		p.logger.WithError(rerr).Error("Record snapshot")
	}
	return rows, nil
}

func (p *RecordingProvider) History(ctx context.Context, code string, days int) ([]model.Bar, error) {
	bars, err := p.next.History(ctx, code, days)
	if err != nil || len(bars) == 0 {
		return bars, err
	}
	if rerr := p.rec.RecordBars(p.next.Name(), code, bars); rerr != nil {
		p.logger.WithField("code", code).WithError(rerr).Error("Record bars")
	}
	return bars, nil
}

// ReplayProvider serves a previously captured provider from the database.
type ReplayProvider struct {
	db     *SQLiteRecorder
	source string
}

// NewReplayProvider replays the responses captured from the provider named source.
func NewReplayProvider(db *SQLiteRecorder, source string) *ReplayProvider {
	return &ReplayProvider{db: db, source: source}
}

func (p *ReplayProvider) Name() string { return "replay:" + p.source }

func (p *ReplayProvider) Snapshot(_ context.Context) ([]model.SnapshotRow, error) {
	rows, ok, err := p.db.LatestSnapshot(p.source)
	if err != nil {
		return nil, fmt.Errorf("%w: replay snapshot: %w", collector.ErrUpstreamUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no %s snapshot captured", collector.ErrUpstreamUnavailable, p.source)
	}
	return rows, nil
}

func (p *ReplayProvider) History(_ context.Context, code string, days int) ([]model.Bar, error) {
	bars, err := p.db.Bars(p.source, code, days)
	if err != nil {
		return nil, fmt.Errorf("%w: replay history %s: %w", collector.ErrUpstreamUnavailable, code, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no %s history captured for %s", collector.ErrUpstreamUnavailable, p.source, code)
	}
	return bars, nil
}
