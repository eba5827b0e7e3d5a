package commands

import (
	"os"

	"github.com/spf13/cobra"

	"VCPScanner/internal/config"
	"VCPScanner/internal/logger"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "vcpscan",
	Short: "A-share volatility contraction pattern scanner",
	Long: `vcpscan screens the turnover leaders of the A-share market for a volatility
contraction setup: price above its EMA, ATR near its trailing low and the close
within reach of the recent pivot high.

Examples:
  vcpscan scan
  vcpscan scan --json --record
  vcpscan scan --replay data/capture.db
  vcpscan serve
  vcpscan replay stats data/capture.db`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultConfig := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfig, "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug|info|warn|error)")
}

// loadConfig loads and validates the config and builds the root logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Log), nil
}
