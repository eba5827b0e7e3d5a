package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"VCPScanner/internal/logger"
	"VCPScanner/internal/metrics"
	"VCPScanner/internal/model"
	"VCPScanner/internal/notifier"
)

// Runner performs one scan.
type Runner interface {
	Run(ctx context.Context) model.ScanResult
}

// Notifier delivers scan reports.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs scans on a cron schedule and on chat commands, one at a time.
type Scheduler struct {
	Cron     *cron.Cron
	Scanner  Runner
	Notifier Notifier // nil disables reports
	Health   *metrics.HealthStatus
	Ctx      context.Context

	scanMu sync.Mutex
	lastMu sync.RWMutex
	last   *model.ScanResult
	logger *logger.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, sc Runner, n Notifier, health *metrics.HealthStatus, log *logger.Logger) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Scanner:  sc,
		Notifier: n,
		Health:   health,
		Ctx:      ctx,
		logger:   log,
	}
}

// RegisterAll registers the daily scan.
func (s *Scheduler) RegisterAll(scanCron string) error {
	if _, err := s.Cron.AddFunc(scanCron, s.scheduledScan); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops the cron scheduler and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) scheduledScan() {
	s.logger.Info("Running scheduled scan")
	res := s.RunScanNow()
	s.trySend(notifier.FormatScanReport(res))
}

// RunScanNow runs a scan immediately, waiting for any scan already in progress.
func (s *Scheduler) RunScanNow() model.ScanResult {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	return s.runLocked()
}

func (s *Scheduler) runLocked() model.ScanResult {
	res := s.Scanner.Run(s.Ctx)

	s.lastMu.Lock()
	s.last = &res
	s.lastMu.Unlock()

	if s.Health != nil {
		s.Health.SetLastScan(res)
	}
	return res
}

// LastResult returns the most recent scan, if any.
func (s *Scheduler) LastResult() (model.ScanResult, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return model.ScanResult{}, false
	}
	return *s.last, true
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	switch command {
	case "/scan", "立即扫描":
		if !s.scanMu.TryLock() {
			return "⏳ 扫描进行中，请稍后使用 /last 查看结果"
		}
		res := s.runLocked()
		s.scanMu.Unlock()
		return notifier.FormatScanReport(res)
	case "/last", "查看结果":
		res, ok := s.LastResult()
		if !ok {
			return "尚无扫描结果，发送 /scan 立即扫描"
		}
		return notifier.FormatScanReport(res)
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.logger.WithError(err).Error("Send notification")
	}
}
