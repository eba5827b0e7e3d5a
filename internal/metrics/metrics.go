package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"VCPScanner/internal/model"
)

// Snapshot results and history fetch outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeQualified = "qualified"
	OutcomeRejected  = "rejected"
)

// Metrics holds all Prometheus metrics for the scanner.
type Metrics struct {
	ScansTotal        *prometheus.CounterVec // labels: tier
	SnapshotAttempts  *prometheus.CounterVec // labels: provider, result
	HistoryFetches    *prometheus.CounterVec // labels: provider, outcome
	RejectionsTotal   *prometheus.CounterVec // labels: reason
	QualifiedSymbols  prometheus.Gauge
	ScanDuration      prometheus.Histogram
	LastScanTimestamp prometheus.Gauge
}

// NewMetrics creates the scanner metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vcpscan_scans_total",
			Help: "Completed scans by the tier that produced the result",
		}, []string{"tier"}),
		SnapshotAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vcpscan_snapshot_attempts_total",
			Help: "Universe snapshot attempts by provider and result",
		}, []string{"provider", "result"}),
		HistoryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vcpscan_history_fetches_total",
			Help: "Per-symbol history fetches by provider and outcome",
		}, []string{"provider", "outcome"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vcpscan_rejections_total",
			Help: "Evaluated symbols rejected by the classifier, by reason",
		}, []string{"reason"}),
		QualifiedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vcpscan_qualified_symbols",
			Help: "Number of symbols returned by the last scan",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcpscan_scan_duration_seconds",
			Help:    "Wall time of a full scan including fallback tiers",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		LastScanTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vcpscan_last_scan_timestamp_seconds",
			Help: "Unix time the last scan finished",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ScansTotal,
			m.SnapshotAttempts,
			m.HistoryFetches,
			m.RejectionsTotal,
			m.QualifiedSymbols,
			m.ScanDuration,
			m.LastScanTimestamp,
		)
	}
	return m
}

// ObserveSnapshot counts one snapshot attempt.
func (m *Metrics) ObserveSnapshot(provider string, err error) {
	if m == nil {
		return
	}
	result := OutcomeOK
	if err != nil {
		result = OutcomeError
	}
	m.SnapshotAttempts.WithLabelValues(provider, result).Inc()
}

// ObserveHistory counts one history fetch.
func (m *Metrics) ObserveHistory(provider, outcome string) {
	if m == nil {
		return
	}
	m.HistoryFetches.WithLabelValues(provider, outcome).Inc()
}

// ObserveRejection counts one classifier rejection.
func (m *Metrics) ObserveRejection(reason model.RejectReason) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(string(reason)).Inc()
}

// ObserveScan records a finished scan.
func (m *Metrics) ObserveScan(res model.ScanResult) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(string(res.Tier)).Inc()
	m.QualifiedSymbols.Set(float64(len(res.Candidates)))
	m.ScanDuration.Observe(res.Duration.Seconds())
	m.LastScanTimestamp.Set(float64(res.StartedAt.Add(res.Duration).Unix()))
}

// HealthStatus tracks the outcome of the most recent scan for /healthz.
type HealthStatus struct {
	mu        sync.RWMutex
	StartedAt time.Time
	LastScan  time.Time
	LastTier  model.Tier
	LastCodes []string
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// SetLastScan stores the summary of a finished scan.
func (h *HealthStatus) SetLastScan(res model.ScanResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastScan = res.StartedAt.Add(res.Duration)
	h.LastTier = res.Tier
	h.LastCodes = res.Codes()
}

// ServeHTTP handles the /healthz endpoint. A service that has only ever
// produced the static default is reported as degraded.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	if h.LastTier == model.TierDefault {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	lastScan := ""
	if !h.LastScan.IsZero() {
		lastScan = h.LastScan.Format(time.RFC3339)
	}

	body := struct {
		Status   string   `json:"status"`
		Uptime   string   `json:"uptime"`
		LastScan string   `json:"last_scan"`
		LastTier string   `json:"last_tier"`
		Symbols  []string `json:"symbols"`
	}{
		Status:   status,
		Uptime:   time.Since(h.StartedAt).Round(time.Second).String(),
		LastScan: lastScan,
		LastTier: string(h.LastTier),
		Symbols:  h.LastCodes,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics and health server that serves gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the server mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in the background. Listen errors other than a clean shutdown
// are sent to errc.
func (s *Server) Start(errc chan<- error) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
