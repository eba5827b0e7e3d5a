package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"VCPScanner/internal/metrics"
	"VCPScanner/internal/notifier"
	"VCPScanner/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled scans with Telegram commands and a metrics endpoint",
	Long: `Runs the scan on schedule.scan_cron, answers /scan and /last over Telegram
when credentials are configured, and serves /metrics and /healthz on metrics.addr.

Example:
  vcpscan serve
  vcpscan serve --run-on-start --record`,
	RunE: runServe,
}

var (
	serveRunOnStart bool
	serveRecord     bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveRunOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "scan once immediately")
	serveCmd.Flags().BoolVar(&serveRecord, "record", false, "capture provider responses into database.sqlite_path")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info("vcpscan starting")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, log, wiringOptions{record: serveRecord, registry: reg})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := metrics.NewHealthStatus()
	errc := make(chan error, 1)
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, reg, health)
		srv.Start(errc)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Stop(shutdownCtx)
		}()
		log.WithField("addr", cfg.Metrics.Addr).Info("Metrics server listening")
	}

	var tn *notifier.TelegramNotifier
	var n scheduler.Notifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.DataSource.Proxy, log.WithField("component", "telegram"))
		n = tn
	} else {
		log.Warn("Telegram not configured, reports and commands disabled")
	}

	sched := scheduler.NewScheduler(ctx, a.scanner, n, health, log.WithField("component", "scheduler"))
	if err := sched.RegisterAll(cfg.Schedule.ScanCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()
	log.WithField("cron", cfg.Schedule.ScanCron).Info("Scan scheduled")

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("Telegram polling started")
	}

	if serveRunOnStart {
		log.Info("Run on start enabled, scanning now")
		go func() {
			res := sched.RunScanNow()
			if tn != nil {
				if err := tn.SendWithRetry(ctx, notifier.FormatScanReport(res), 3); err != nil {
					log.WithError(err).Error("Send notification")
				}
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("Shutdown signal received, stopping")
	case err := <-errc:
		log.WithError(err).Error("Metrics server failed")
		return err
	}
	cancel()
	return nil
}
