package commands

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"VCPScanner/internal/collector"
	"VCPScanner/internal/config"
	"VCPScanner/internal/logger"
	"VCPScanner/internal/metrics"
	"VCPScanner/internal/recorder"
	"VCPScanner/internal/scanner"
	"VCPScanner/internal/strategy"
)

type wiringOptions struct {
	replayPath string
	record     bool
	registry   prometheus.Registerer
}

// app bundles the scanner with the resources that must be closed after use.
type app struct {
	scanner *scanner.Scanner
	metrics *metrics.Metrics
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// newApp wires providers, the classifier and the scanner from cfg.
func newApp(cfg *config.Config, log *logger.Logger, opts wiringOptions) (*app, error) {
	a := &app{metrics: metrics.NewMetrics(opts.registry)}
	scanOpts := scanner.OptionsFromConfig(cfg.Scan)

	var primary, secondary collector.Provider
	switch {
	case opts.replayPath != "":
		db, err := recorder.NewSQLiteRecorder(opts.replayPath, log)
		if err != nil {
			return nil, fmt.Errorf("open replay database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		primary = recorder.NewReplayProvider(db, cfg.DataSource.Primary)
		secondary = recorder.NewReplayProvider(db, cfg.DataSource.Secondary)
		scanOpts.RequestDelay = 0
		scanOpts.RetryBaseDelay = 0
		log.WithField("path", opts.replayPath).Info("Replaying captured responses")

	default:
		var rec recorder.Recorder = recorder.NewNoopRecorder()
		if opts.record {
			if cfg.Database.SQLitePath == "" {
				return nil, fmt.Errorf("--record needs database.sqlite_path or SQLITE_PATH")
			}
			db, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
			if err != nil {
				return nil, fmt.Errorf("open capture database: %w", err)
			}
			a.closers = append(a.closers, db.Close)
			rec = db
		}

		var err error
		if primary, err = liveProvider(cfg.DataSource.Primary, cfg, rec, log); err != nil {
			return nil, err
		}
		if secondary, err = liveProvider(cfg.DataSource.Secondary, cfg, rec, log); err != nil {
			return nil, err
		}
	}

	cls := strategy.NewClassifier(scanner.ClassifierParams(cfg.Scan), log.WithField("component", "classifier"))
	a.scanner = scanner.New(primary, secondary, cls, scanOpts, log.WithField("component", "scanner"), a.metrics)

	log.WithFields(map[string]interface{}{
		"primary":   primary.Name(),
		"secondary": secondary.Name(),
	}).Info("Data sources ready")
	return a, nil
}

// liveProvider builds a named upstream provider, tees it into rec and caches its history.
func liveProvider(name string, cfg *config.Config, rec recorder.Recorder, log *logger.Logger) (collector.Provider, error) {
	ds := cfg.DataSource
	httpOpts := collector.HTTPOptions{
		Timeout:       ds.Timeout,
		Proxy:         ds.Proxy,
		RatePerSecond: ds.RatePerSecond,
	}
	plog := log.WithField("provider", name)

	var p collector.Provider
	switch name {
	case "eastmoney":
		p = collector.NewEastmoney(ds.EastmoneyQuote, ds.EastmoneyKline, httpOpts, plog)
	case "sina":
		p = collector.NewSina(ds.SinaQuote, ds.SinaKline, httpOpts, plog)
	case "mock":
		p = &collector.MockProvider{}
	default:
		return nil, fmt.Errorf("unknown data source %q", name)
	}

	p = recorder.NewRecordingProvider(p, rec, plog)
	if cfg.Cache.HistoryTTL > 0 {
		p = collector.NewCachingProvider(p, cfg.Cache.HistoryTTL)
	}
	return p, nil
}
