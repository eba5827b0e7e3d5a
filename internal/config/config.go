package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Scan       ScanConfig       `yaml:"scan"`
	DataSource DataSourceConfig `yaml:"data_source"`
	Cache      struct {
		HistoryTTL time.Duration `yaml:"history_ttl"`
	} `yaml:"cache"`
	Schedule struct {
		ScanCron string `yaml:"scan_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log     LogConfig `yaml:"log"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// ScanConfig holds the classifier thresholds and the orchestrator's fallback settings.
type ScanConfig struct {
	EMAPeriod      int     `yaml:"ema_period"`
	ATRWindow      int     `yaml:"atr_window"`
	VCPPeriod      int     `yaml:"vcp_period"`
	VolFactor      float64 `yaml:"vol_factor"`
	PivotWindow    int     `yaml:"pivot_window"`
	BreakoutFactor float64 `yaml:"breakout_factor"`

	CandidatePool   int           `yaml:"candidate_pool"`
	MaxResults      int           `yaml:"max_results"`
	HistoryDays     int           `yaml:"history_days"`
	SnapshotRetries int           `yaml:"snapshot_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RequestDelay    time.Duration `yaml:"request_delay"`
	FallbackOnEmpty *bool         `yaml:"fallback_on_empty"`

	SeedWatchlist []Symbol `yaml:"seed_watchlist"`
	DefaultSymbol Symbol   `yaml:"default_symbol"`
}

// Symbol is a plain six-digit code with an optional display name.
type Symbol struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// DataSourceConfig configures the upstream market-data clients.
type DataSourceConfig struct {
	Primary        string        `yaml:"primary"`
	Secondary      string        `yaml:"secondary"`
	Timeout        time.Duration `yaml:"timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Proxy          string        `yaml:"proxy"`
	EastmoneyQuote string        `yaml:"eastmoney_quote_url"`
	EastmoneyKline string        `yaml:"eastmoney_kline_url"`
	SinaQuote      string        `yaml:"sina_quote_url"`
	SinaKline      string        `yaml:"sina_kline_url"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultSeedWatchlist is used for fallback scans when none is configured.
var DefaultSeedWatchlist = []Symbol{
	{Code: "600519", Name: "贵州茅台"},
	{Code: "000001", Name: "平安银行"},
	{Code: "300750", Name: "宁德时代"},
	{Code: "002594", Name: "比亚迪"},
	{Code: "600036", Name: "招商银行"},
	{Code: "601318", Name: "中国平安"},
	{Code: "000858", Name: "五粮液"},
}

// FallbackEnabled reports whether a primary scan with zero qualified symbols falls back.
func (s ScanConfig) FallbackEnabled() bool {
	return s.FallbackOnEmpty == nil || *s.FallbackOnEmpty
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// A missing .env is fine; variables may come from the real environment.
	_ = godotenv.Load()
	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.DataSource.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("CRON_SCAN"); v != "" {
		cfg.Schedule.ScanCron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SCAN_CANDIDATE_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scan.CandidatePool = n
		}
	}
	if v := os.Getenv("SCAN_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scan.MaxResults = n
		}
	}
}

func applyDefaults(cfg *Config) {
	s := &cfg.Scan
	if s.EMAPeriod == 0 {
		s.EMAPeriod = 50
	}
	if s.ATRWindow == 0 {
		s.ATRWindow = 14
	}
	if s.VCPPeriod == 0 {
		s.VCPPeriod = 50
	}
	if s.VolFactor == 0 {
		s.VolFactor = 1.1
	}
	if s.PivotWindow == 0 {
		s.PivotWindow = 20
	}
	if s.BreakoutFactor == 0 {
		s.BreakoutFactor = 0.98
	}
	if s.CandidatePool == 0 {
		s.CandidatePool = 300
	}
	if s.MaxResults == 0 {
		s.MaxResults = 5
	}
	if s.HistoryDays == 0 {
		s.HistoryDays = 70
	}
	if s.SnapshotRetries == 0 {
		s.SnapshotRetries = 3
	}
	if s.RetryBaseDelay == 0 {
		s.RetryBaseDelay = 2 * time.Second
	}
	if s.RequestDelay == 0 {
		s.RequestDelay = 200 * time.Millisecond
	}
	if len(s.SeedWatchlist) == 0 {
		s.SeedWatchlist = append([]Symbol(nil), DefaultSeedWatchlist...)
	}
	if s.DefaultSymbol.Code == "" {
		s.DefaultSymbol = DefaultSeedWatchlist[0]
	}

	ds := &cfg.DataSource
	if ds.Primary == "" {
		ds.Primary = "eastmoney"
	}
	if ds.Secondary == "" {
		ds.Secondary = "sina"
	}
	if ds.Timeout == 0 {
		ds.Timeout = 15 * time.Second
	}
	if ds.RatePerSecond == 0 {
		ds.RatePerSecond = 5
	}

	if cfg.Cache.HistoryTTL == 0 {
		cfg.Cache.HistoryTTL = 10 * time.Minute
	}
	if cfg.Schedule.ScanCron == "" {
		cfg.Schedule.ScanCron = "0 30 15 * * 1-5"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks that scan parameters are coherent.
func (c *Config) Validate() error {
	s := c.Scan
	if s.EMAPeriod <= 0 || s.ATRWindow <= 0 || s.VCPPeriod <= 0 || s.PivotWindow <= 0 {
		return fmt.Errorf("scan periods must be positive")
	}
	if s.VolFactor < 1 {
		return fmt.Errorf("scan.vol_factor must be >= 1, got %v", s.VolFactor)
	}
	if s.BreakoutFactor <= 0 || s.BreakoutFactor > 1 {
		return fmt.Errorf("scan.breakout_factor must be in (0, 1], got %v", s.BreakoutFactor)
	}
	if s.HistoryDays < s.VCPPeriod {
		return fmt.Errorf("scan.history_days (%d) must cover scan.vcp_period (%d)", s.HistoryDays, s.VCPPeriod)
	}
	if s.CandidatePool <= 0 || s.MaxResults <= 0 || s.SnapshotRetries <= 0 {
		return fmt.Errorf("scan.candidate_pool, max_results and snapshot_retries must be positive")
	}
	if s.DefaultSymbol.Code == "" {
		return fmt.Errorf("scan.default_symbol is required")
	}
	if c.DataSource.RatePerSecond <= 0 {
		return fmt.Errorf("data_source.rate_per_second must be positive")
	}
	return nil
}

// TelegramEnabled reports whether both telegram credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
