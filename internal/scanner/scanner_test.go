package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VCPScanner/internal/collector"
	"VCPScanner/internal/config"
	"VCPScanner/internal/logger"
	"VCPScanner/internal/metrics"
	"VCPScanner/internal/model"
	"VCPScanner/internal/strategy"
)

// trendBars builds a series with a linear close and a linearly changing high-low spread.
func trendBars(n int, start, step, spread0, spreadStep float64) []model.Bar {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		p := start + step*float64(i)
		s := spread0 + spreadStep*float64(i)
		bars[i] = model.Bar{
			Time:   day.AddDate(0, 0, i),
			Open:   p,
			High:   p + s/2,
			Low:    p - s/2,
			Close:  p,
			Volume: 1e6,
		}
	}
	return bars
}

func qualifying() []model.Bar { return trendBars(70, 10, 0.05, 1.0, -0.01) }
func downtrend() []model.Bar  { return trendBars(70, 20, -0.05, 1.0, -0.01) }

var errFetch = fmt.Errorf("%w: connection reset", collector.ErrUpstreamUnavailable)

type sleepRecorder struct{ calls []time.Duration }

func (r *sleepRecorder) sleep(d time.Duration) { r.calls = append(r.calls, d) }

func testOptions() Options {
	return Options{
		CandidatePool:   300,
		MaxResults:      5,
		HistoryDays:     70,
		SnapshotRetries: 3,
		RetryBaseDelay:  2 * time.Second,
		RequestDelay:    200 * time.Millisecond,
		FallbackOnEmpty: true,
		SeedWatchlist: []config.Symbol{
			{Code: "600519", Name: "贵州茅台"},
			{Code: "000001", Name: "平安银行"},
			{Code: "300750", Name: "宁德时代"},
		},
		DefaultSymbol: config.Symbol{Code: "600519", Name: "贵州茅台"},
	}
}

func newTestScanner(primary, secondary collector.Provider, opts Options, m *metrics.Metrics) (*Scanner, *sleepRecorder) {
	cls := strategy.NewClassifier(strategy.DefaultParams(), logger.Nop())
	s := New(primary, secondary, cls, opts, logger.Nop(), m)
	rec := &sleepRecorder{}
	s.SetSleeper(rec.sleep)
	return s, rec
}

func risingRows(codes ...string) []model.SnapshotRow {
	rows := make([]model.SnapshotRow, len(codes))
	for i, c := range codes {
		rows[i] = model.SnapshotRow{Code: c, Name: "N" + c, ChangePct: 1.0, Turnover: float64(1000 - i)}
	}
	return rows
}

func TestRun_SnapshotExhaustedFallsBackToSeed(t *testing.T) {
	primary := &collector.MockProvider{Label: "primary", SnapshotFailures: 3}
	secondary := &collector.MockProvider{
		Label: "secondary",
		Histories: map[string][]model.Bar{
			"600519": downtrend(),
			"000001": qualifying(),
			"300750": downtrend(),
		},
	}
	s, sleeps := newTestScanner(primary, secondary, testOptions(), nil)

	res := s.Run(context.Background())

	assert.Equal(t, model.TierSeed, res.Tier)
	assert.Equal(t, []string{"000001"}, res.Codes())
	assert.Equal(t, "平安银行", res.Candidates[0].Name)
	assert.Equal(t, 3, primary.SnapshotCalls())
	assert.Empty(t, primary.HistoryCalls())
	assert.Equal(t, []string{"600519", "000001", "300750"}, secondary.HistoryCalls(), "seeds scanned in list order")

	want := []time.Duration{2 * time.Second, 4 * time.Second,
		200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond}
	assert.Equal(t, want, sleeps.calls, "linear backoff between attempts, then one delay per history fetch")
}

func TestRun_SeedOrderPreserved(t *testing.T) {
	primary := &collector.MockProvider{SnapshotFailures: 3}
	secondary := &collector.MockProvider{
		Histories: map[string][]model.Bar{
			"600519": qualifying(),
			"000001": downtrend(),
			"300750": qualifying(),
		},
	}
	s, _ := newTestScanner(primary, secondary, testOptions(), nil)

	res := s.Run(context.Background())
	assert.Equal(t, model.TierSeed, res.Tier)
	assert.Equal(t, []string{"600519", "300750"}, res.Codes())
}

func TestRun_FailureIsolation(t *testing.T) {
	primary := &collector.MockProvider{
		Rows: risingRows("600001", "600002", "600003", "600004", "600005"),
		Histories: map[string][]model.Bar{
			"600003": qualifying(),
		},
		HistoryErrs: map[string]error{
			"600001": errFetch,
			"600002": errFetch,
			"600004": errors.New("decode failure"),
			"600005": errFetch,
		},
	}
	secondary := &collector.MockProvider{}
	s, sleeps := newTestScanner(primary, secondary, testOptions(), nil)

	res := s.Run(context.Background())

	assert.Equal(t, model.TierPrimary, res.Tier)
	assert.Equal(t, []string{"600003"}, res.Codes())
	assert.Equal(t, "N600003", res.Candidates[0].Name)
	assert.Greater(t, res.Candidates[0].Indicators.Close, 0.0)
	assert.Len(t, primary.HistoryCalls(), 5, "every candidate is attempted")
	assert.Empty(t, secondary.HistoryCalls())
	assert.Len(t, sleeps.calls, 5)
}

func TestRun_TruncatesInScanOrder(t *testing.T) {
	codes := []string{"600001", "600002", "600003", "600004", "600005", "600006", "600007", "600008"}
	hist := make(map[string][]model.Bar, len(codes))
	for _, c := range codes {
		hist[c] = qualifying()
	}
	primary := &collector.MockProvider{Rows: risingRows(codes...), Histories: hist}
	s, _ := newTestScanner(primary, &collector.MockProvider{}, testOptions(), nil)

	res := s.Run(context.Background())

	assert.Equal(t, model.TierPrimary, res.Tier)
	assert.Equal(t, codes[:5], res.Codes())
}

func TestRun_StaticDefault(t *testing.T) {
	primary := &collector.MockProvider{SnapshotErr: errFetch}
	secondary := &collector.MockProvider{
		HistoryErrs: map[string]error{
			"600519": errFetch,
			"000001": errFetch,
		},
		Histories: map[string][]model.Bar{
			"300750": trendBars(30, 10, 0.05, 1.0, -0.01),
		},
	}
	s, _ := newTestScanner(primary, secondary, testOptions(), nil)

	res := s.Run(context.Background())

	assert.Equal(t, model.TierDefault, res.Tier)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "600519", res.Candidates[0].Code)
	assert.Equal(t, model.Indicators{}, res.Candidates[0].Indicators)
}

func TestRun_NilSecondaryFallsToDefault(t *testing.T) {
	primary := &collector.MockProvider{SnapshotErr: errFetch}
	opts := testOptions()
	opts.DefaultSymbol = config.Symbol{Code: "000858", Name: "五粮液"}
	s, _ := newTestScanner(primary, nil, opts, nil)

	res := s.Run(context.Background())
	assert.Equal(t, model.TierDefault, res.Tier)
	assert.Equal(t, []string{"000858"}, res.Codes())
}

func TestRun_EmptySnapshotIsRetried(t *testing.T) {
	primary := &collector.MockProvider{}
	secondary := &collector.MockProvider{Histories: map[string][]model.Bar{"600519": qualifying()}}
	opts := testOptions()
	opts.SeedWatchlist = opts.SeedWatchlist[:1]
	s, sleeps := newTestScanner(primary, secondary, opts, nil)

	res := s.Run(context.Background())
	assert.Equal(t, 3, primary.SnapshotCalls())
	assert.Equal(t, model.TierSeed, res.Tier)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 200 * time.Millisecond}, sleeps.calls)
}

func TestRun_RecoversOnRetry(t *testing.T) {
	primary := &collector.MockProvider{
		SnapshotFailures: 2,
		Rows:             risingRows("300001"),
		Histories:        map[string][]model.Bar{"300001": qualifying()},
	}
	s, sleeps := newTestScanner(primary, &collector.MockProvider{}, testOptions(), nil)

	res := s.Run(context.Background())
	assert.Equal(t, model.TierPrimary, res.Tier)
	assert.Equal(t, []string{"300001"}, res.Codes())
	assert.Equal(t, 3, primary.SnapshotCalls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 200 * time.Millisecond}, sleeps.calls)
}

func TestRun_EmptyPrimaryFallsBack(t *testing.T) {
	primary := &collector.MockProvider{
		Rows:      risingRows("600001"),
		Histories: map[string][]model.Bar{"600001": downtrend()},
	}
	secondary := &collector.MockProvider{Histories: map[string][]model.Bar{
		"600519": downtrend(),
		"000001": downtrend(),
		"300750": qualifying(),
	}}
	s, _ := newTestScanner(primary, secondary, testOptions(), nil)

	res := s.Run(context.Background())
	assert.Equal(t, model.TierSeed, res.Tier)
	assert.Equal(t, []string{"300750"}, res.Codes())
}

func TestRun_FallbackOnEmptyDisabled(t *testing.T) {
	primary := &collector.MockProvider{
		Rows:      risingRows("600001"),
		Histories: map[string][]model.Bar{"600001": downtrend()},
	}
	secondary := &collector.MockProvider{Histories: map[string][]model.Bar{"300750": qualifying()}}
	opts := testOptions()
	opts.FallbackOnEmpty = false
	s, _ := newTestScanner(primary, secondary, opts, nil)

	res := s.Run(context.Background())
	assert.Equal(t, model.TierDefault, res.Tier)
	assert.Equal(t, []string{"600519"}, res.Codes())
	assert.Empty(t, secondary.HistoryCalls(), "seed tier is skipped")
}

func TestRun_FallbackOnEmptyDisabledStillCoversOutage(t *testing.T) {
	primary := &collector.MockProvider{SnapshotErr: errFetch}
	secondary := &collector.MockProvider{Histories: map[string][]model.Bar{
		"600519": downtrend(),
		"000001": qualifying(),
		"300750": downtrend(),
	}}
	opts := testOptions()
	opts.FallbackOnEmpty = false
	s, _ := newTestScanner(primary, secondary, opts, nil)

	res := s.Run(context.Background())
	assert.Equal(t, model.TierSeed, res.Tier)
	assert.Equal(t, []string{"000001"}, res.Codes())
}

func TestRun_Metrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	primary := &collector.MockProvider{
		Label:            "primary",
		SnapshotFailures: 1,
		Rows:             risingRows("600001", "600002", "600003"),
		Histories: map[string][]model.Bar{
			"600001": qualifying(),
			"600002": downtrend(),
		},
	}
	s, _ := newTestScanner(primary, &collector.MockProvider{}, testOptions(), m)

	res := s.Run(context.Background())
	require.Equal(t, model.TierPrimary, res.Tier)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotAttempts.WithLabelValues("primary", metrics.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotAttempts.WithLabelValues("primary", metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryFetches.WithLabelValues("primary", metrics.OutcomeQualified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryFetches.WithLabelValues("primary", metrics.OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryFetches.WithLabelValues("primary", metrics.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues(string(model.ReasonBelowTrend))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues(string(model.TierPrimary))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QualifiedSymbols))
}

func TestSelectCandidates(t *testing.T) {
	rows := []model.SnapshotRow{
		{Code: "000001", Name: "a", ChangePct: 1.2, Turnover: 500},
		{Code: "000002", Name: "b", ChangePct: -0.5, Turnover: 9000},
		{Code: "000003", Name: "c", ChangePct: 0, Turnover: 8000},
		{Code: "000004", Name: "d", ChangePct: 3.1, Turnover: 700},
		{Code: "000005", Name: "e", ChangePct: 0.1, Turnover: 500},
		{Code: "000004", Name: "d2", ChangePct: 2.0, Turnover: 600},
		{Code: "", Name: "blank", ChangePct: 5, Turnover: 99999},
		{Code: "000006", Name: "f", ChangePct: 0.4, Turnover: 100},
	}

	got := SelectCandidates(rows, 0)
	assert.Equal(t, []config.Symbol{
		{Code: "000004", Name: "d"},
		{Code: "000001", Name: "a"},
		{Code: "000005", Name: "e"},
		{Code: "000006", Name: "f"},
	}, got, "rising only, turnover descending, ties stable, duplicates dropped")

	got = SelectCandidates(rows, 2)
	assert.Equal(t, []config.Symbol{{Code: "000004", Name: "d"}, {Code: "000001", Name: "a"}}, got)

	assert.Empty(t, SelectCandidates(nil, 10))
}

func TestRun_CandidatePoolBoundsFetches(t *testing.T) {
	primary := &collector.MockProvider{Rows: risingRows("600001", "600002", "600003", "600004")}
	opts := testOptions()
	opts.CandidatePool = 2
	s, _ := newTestScanner(primary, &collector.MockProvider{}, opts, nil)

	res := s.Run(context.Background())
	assert.Equal(t, []string{"600001", "600002"}, primary.HistoryCalls())
	assert.Equal(t, model.TierPrimary, res.Tier, "generated mock series qualify")
}

func TestOptionsFromConfig(t *testing.T) {
	off := false
	c := config.ScanConfig{
		CandidatePool:   60,
		MaxResults:      3,
		HistoryDays:     80,
		SnapshotRetries: 2,
		RetryBaseDelay:  time.Second,
		RequestDelay:    time.Millisecond,
		FallbackOnEmpty: &off,
		SeedWatchlist:   []config.Symbol{{Code: "600036"}},
		DefaultSymbol:   config.Symbol{Code: "601318"},
		EMAPeriod:       30,
		ATRWindow:       10,
		VCPPeriod:       40,
		PivotWindow:     15,
		VolFactor:       1.2,
		BreakoutFactor:  0.95,
	}

	o := OptionsFromConfig(c)
	assert.Equal(t, 60, o.CandidatePool)
	assert.Equal(t, 3, o.MaxResults)
	assert.False(t, o.FallbackOnEmpty)
	assert.Equal(t, "601318", o.DefaultSymbol.Code)

	p := ClassifierParams(c)
	assert.Equal(t, 30, p.Indicators.EMAPeriod)
	assert.Equal(t, 10, p.Indicators.ATRWindow)
	assert.Equal(t, 40, p.Indicators.VCPPeriod)
	assert.Equal(t, 15, p.Indicators.PivotWindow)
	assert.Equal(t, 1.2, p.VolFactor)
	assert.Equal(t, 0.95, p.BreakoutFactor)
}
