package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"VCPScanner/internal/collector"
	"VCPScanner/internal/config"
	"VCPScanner/internal/logger"
	"VCPScanner/internal/metrics"
	"VCPScanner/internal/model"
	"VCPScanner/internal/strategy"
)

// Scanner runs the primary market scan and its fallback tiers.
// A Scanner is not safe for concurrent Run calls; callers serialise scans.
type Scanner struct {
	primary    collector.Provider
	secondary  collector.Provider
	classifier *strategy.Classifier
	opts       Options
	logger     *logger.Logger
	metrics    *metrics.Metrics

	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a Scanner. m may be nil.
func New(primary, secondary collector.Provider, cls *strategy.Classifier, opts Options, log *logger.Logger, m *metrics.Metrics) *Scanner {
	return &Scanner{
		primary:    primary,
		secondary:  secondary,
		classifier: cls,
		opts:       opts,
		logger:     log,
		metrics:    m,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// SetSleeper replaces the blocking sleep used for backoff and request pacing.
func (s *Scanner) SetSleeper(fn func(time.Duration)) { s.sleep = fn }

// tier is one stage of the fallback chain. An empty return means "try next".
type tier struct {
	name model.Tier
	run  func(ctx context.Context, st *scanState) []model.Candidate
}

type scanState struct {
	snapshotExhausted bool
}

func (s *Scanner) tiers() []tier {
	return []tier{
		{name: model.TierPrimary, run: s.runPrimary},
		{name: model.TierSeed, run: s.runSeed},
		{name: model.TierDefault, run: s.runDefault},
	}
}

// Run performs one scan. It never returns an error and never returns an empty result:
// when every tier yields nothing the configured default symbol is returned.
func (s *Scanner) Run(ctx context.Context) model.ScanResult {
	started := s.now()
	st := &scanState{}

	res := model.ScanResult{StartedAt: started}
	for _, t := range s.tiers() {
		cands := t.run(ctx, st)
		if len(cands) == 0 {
			s.logger.WithField("tier", t.name).Info("Tier produced no candidates, trying next")
			continue
		}
		res.Candidates = cands
		res.Tier = t.name
		break
	}
	res.Duration = s.now().Sub(started)

	s.metrics.ObserveScan(res)
	s.logger.WithFields(map[string]interface{}{
		"tier":     res.Tier,
		"symbols":  res.Codes(),
		"duration": res.Duration.String(),
	}).Info("Scan finished")
	return res
}

func (s *Scanner) runPrimary(ctx context.Context, st *scanState) []model.Candidate {
	rows, err := s.fetchSnapshot(ctx)
	if err != nil {
		st.snapshotExhausted = true
		s.logger.WithError(err).Warn("Snapshot retries exhausted, falling back")
		return nil
	}

	symbols := SelectCandidates(rows, s.opts.CandidatePool)
	s.logger.WithFields(map[string]interface{}{
		"provider":   s.primary.Name(),
		"snapshot":   len(rows),
		"candidates": len(symbols),
	}).Info("Selected scan candidates")

	return s.scanSymbols(ctx, s.primary, symbols)
}

func (s *Scanner) runSeed(ctx context.Context, st *scanState) []model.Candidate {
	if !st.snapshotExhausted && !s.opts.FallbackOnEmpty {
		s.logger.Info("Primary scan qualified nothing and fallback_on_empty is off, skipping seed watchlist")
		return nil
	}
	if s.secondary == nil || len(s.opts.SeedWatchlist) == 0 {
		return nil
	}
	s.logger.WithFields(map[string]interface{}{
		"provider": s.secondary.Name(),
		"seeds":    len(s.opts.SeedWatchlist),
	}).Info("Scanning seed watchlist")
	return s.scanSymbols(ctx, s.secondary, dedupeSymbols(s.opts.SeedWatchlist))
}

func (s *Scanner) runDefault(_ context.Context, _ *scanState) []model.Candidate {
	d := s.opts.DefaultSymbol
	s.logger.WithField("code", d.Code).Warn("Returning static default symbol")
	return []model.Candidate{{Code: d.Code, Name: d.Name}}
}

// fetchSnapshot calls the primary provider up to SnapshotRetries times, sleeping
// attempt*RetryBaseDelay after each failed attempt but the last. An empty snapshot
// counts as a failure.
func (s *Scanner) fetchSnapshot(ctx context.Context) ([]model.SnapshotRow, error) {
	attempts := s.opts.SnapshotRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		rows, err := s.primary.Snapshot(ctx)
		if err == nil && len(rows) == 0 {
			err = fmt.Errorf("%w: %s returned an empty snapshot", collector.ErrUpstreamUnavailable, s.primary.Name())
		}
		s.metrics.ObserveSnapshot(s.primary.Name(), err)
		if err == nil {
			return rows, nil
		}
		lastErr = err

		log := s.logger.WithFields(map[string]interface{}{
			"provider": s.primary.Name(),
			"attempt":  attempt,
			"of":       attempts,
		}).WithError(err)
		if attempt == attempts {
			log.Error("Snapshot attempt failed")
			break
		}
		backoff := time.Duration(attempt) * s.opts.RetryBaseDelay
		log.WithField("backoff", backoff.String()).Warn("Snapshot attempt failed, retrying")
		s.sleep(backoff)
	}
	return nil, fmt.Errorf("snapshot after %d attempts: %w", attempts, lastErr)
}

// scanSymbols fetches and classifies each symbol in order. Failures are logged
// and skipped. The result is capped at MaxResults.
func (s *Scanner) scanSymbols(ctx context.Context, p collector.Provider, symbols []config.Symbol) []model.Candidate {
	var qualified []model.Candidate
	for _, sym := range symbols {
		s.sleep(s.opts.RequestDelay)

		bars, err := p.History(ctx, sym.Code, s.opts.HistoryDays)
		if err != nil {
			s.metrics.ObserveHistory(p.Name(), metrics.OutcomeError)
			s.logger.WithFields(map[string]interface{}{
				"provider": p.Name(),
				"code":     sym.Code,
			}).WithError(err).Warn("History fetch failed, skipping symbol")
			continue
		}

		d := s.classifier.Evaluate(sym.Code, bars)
		if !d.Qualified {
			s.metrics.ObserveHistory(p.Name(), metrics.OutcomeRejected)
			s.metrics.ObserveRejection(d.Reason)
			s.logger.WithFields(map[string]interface{}{
				"code":   sym.Code,
				"reason": d.Reason,
			}).Debug("Symbol rejected")
			continue
		}

		s.metrics.ObserveHistory(p.Name(), metrics.OutcomeQualified)
		s.logger.WithFields(map[string]interface{}{
			"code": sym.Code,
			"name": sym.Name,
		}).Info("Symbol qualified")
		qualified = append(qualified, model.Candidate{Code: sym.Code, Name: sym.Name, Indicators: d.Indicators})
	}

	if s.opts.MaxResults > 0 && len(qualified) > s.opts.MaxResults {
		qualified = qualified[:s.opts.MaxResults]
	}
	return qualified
}

// SelectCandidates keeps rows with a positive change, orders them by turnover
// (highest first, ties in snapshot order), drops repeated codes and returns at
// most pool symbols. pool <= 0 means no cap.
func SelectCandidates(rows []model.SnapshotRow, pool int) []config.Symbol {
	rising := make([]model.SnapshotRow, 0, len(rows))
	for _, r := range rows {
		if r.Code != "" && r.ChangePct > 0 {
			rising = append(rising, r)
		}
	}
	sort.SliceStable(rising, func(i, j int) bool { return rising[i].Turnover > rising[j].Turnover })

	seen := make(map[string]struct{}, len(rising))
	out := make([]config.Symbol, 0, len(rising))
	for _, r := range rising {
		if _, dup := seen[r.Code]; dup {
			continue
		}
		seen[r.Code] = struct{}{}
		out = append(out, config.Symbol{Code: r.Code, Name: r.Name})
		if pool > 0 && len(out) == pool {
			break
		}
	}
	return out
}

func dedupeSymbols(in []config.Symbol) []config.Symbol {
	seen := make(map[string]struct{}, len(in))
	out := make([]config.Symbol, 0, len(in))
	for _, sym := range in {
		if _, dup := seen[sym.Code]; dup {
			continue
		}
		seen[sym.Code] = struct{}{}
		out = append(out, sym)
	}
	return out
}
