package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VCPScanner/internal/model"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveSnapshot("eastmoney", errors.New("boom"))
	m.ObserveSnapshot("eastmoney", errors.New("boom"))
	m.ObserveSnapshot("eastmoney", nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotAttempts.WithLabelValues("eastmoney", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotAttempts.WithLabelValues("eastmoney", OutcomeOK)))

	m.ObserveHistory("sina", OutcomeRejected)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryFetches.WithLabelValues("sina", OutcomeRejected)))

	m.ObserveRejection(model.ReasonBelowTrend)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues(string(model.ReasonBelowTrend))))

	m.ObserveScan(model.ScanResult{
		Candidates: []model.Candidate{{Code: "600519"}, {Code: "000001"}},
		Tier:       model.TierSeed,
		StartedAt:  time.Unix(1700000000, 0),
		Duration:   3 * time.Second,
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues(string(model.TierSeed))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QualifiedSymbols))
	assert.Equal(t, 1700000003.0, testutil.ToFloat64(m.LastScanTimestamp))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSnapshot("x", nil)
		m.ObserveHistory("x", OutcomeOK)
		m.ObserveRejection(model.ReasonNoContraction)
		m.ObserveScan(model.ScanResult{})
	})
}

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveHistory("eastmoney", OutcomeOK)

	health := NewHealthStatus()
	health.SetLastScan(model.ScanResult{
		Candidates: []model.Candidate{{Code: "300750"}},
		Tier:       model.TierPrimary,
		StartedAt:  time.Now(),
	})
	srv := NewServer(":0", reg, health)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `vcpscan_history_fetches_total{outcome="ok",provider="eastmoney"} 1`))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "PRIMARY", body["last_tier"])
}

func TestHealthStatus_DegradedOnDefaultTier(t *testing.T) {
	health := NewHealthStatus()
	health.SetLastScan(model.ScanResult{
		Candidates: []model.Candidate{{Code: "600519"}},
		Tier:       model.TierDefault,
		StartedAt:  time.Now(),
	})

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}
