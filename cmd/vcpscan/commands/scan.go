package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"VCPScanner/internal/model"
	"VCPScanner/internal/notifier"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and print the qualified symbols",
	Long: `Runs the full scan once: snapshot, candidate filter, per-symbol
classification and, when needed, the seed watchlist and default fallbacks.

Example:
  vcpscan scan
  vcpscan scan --json
  vcpscan scan --notify
  vcpscan scan --record
  vcpscan scan --replay data/capture.db`,
	RunE: runScan,
}

var (
	scanJSON   bool
	scanNotify bool
	scanReplay string
	scanRecord bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the result as JSON")
	scanCmd.Flags().BoolVar(&scanNotify, "notify", false, "send the report to Telegram")
	scanCmd.Flags().StringVar(&scanReplay, "replay", "", "scan from a capture database instead of the network")
	scanCmd.Flags().BoolVar(&scanRecord, "record", false, "capture provider responses into database.sqlite_path")
	scanCmd.MarkFlagsMutuallyExclusive("replay", "record")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, log, wiringOptions{replayPath: scanReplay, record: scanRecord})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res := a.scanner.Run(ctx)

	if scanJSON {
		err = writeJSON(cmd.OutOrStdout(), res)
	} else {
		writeText(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return err
	}

	if scanNotify {
		if !cfg.TelegramEnabled() {
			return fmt.Errorf("--notify needs telegram.bot_token and telegram.chat_id")
		}
		tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.DataSource.Proxy, log)
		if err := tn.SendWithRetry(ctx, notifier.FormatScanReport(res), 3); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
	}
	return nil
}

type candidateView struct {
	Code      string  `json:"code"`
	Name      string  `json:"name,omitempty"`
	Close     float64 `json:"close,omitempty"`
	EMA       float64 `json:"ema,omitempty"`
	ATR       float64 `json:"atr,omitempty"`
	MinATR    float64 `json:"min_atr,omitempty"`
	PivotHigh float64 `json:"pivot_high,omitempty"`
	MA5       float64 `json:"ma5,omitempty"`
}

type resultView struct {
	Tier       model.Tier      `json:"tier"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Candidates []candidateView `json:"candidates"`
}

func writeJSON(w io.Writer, res model.ScanResult) error {
	v := resultView{
		Tier:       res.Tier,
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
	}
	for _, c := range res.Candidates {
		v.Candidates = append(v.Candidates, candidateView{
			Code:      c.Code,
			Name:      c.Name,
			Close:     c.Indicators.Close,
			EMA:       c.Indicators.EMA,
			ATR:       c.Indicators.ATR,
			MinATR:    c.Indicators.MinATR,
			PivotHigh: c.Indicators.PivotHigh,
			MA5:       c.Indicators.MA5,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeText(w io.Writer, res model.ScanResult) {
	fmt.Fprintf(w, "tier: %s  duration: %s\n", res.Tier, res.Duration.Round(time.Millisecond))
	for i, c := range res.Candidates {
		fmt.Fprintf(w, "%d. %s %s\n", i+1, c.Code, c.Name)
	}
}
