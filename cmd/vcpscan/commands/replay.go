package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"VCPScanner/internal/logger"
	"VCPScanner/internal/recorder"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Inspect capture databases",
	Long: `Capture databases are written by "scan --record" and "serve --record"
and read back by "scan --replay".

Example:
  vcpscan replay stats data/capture.db`,
}

var replayStatsCmd = &cobra.Command{
	Use:   "stats [db]",
	Short: "Print row counts of a capture database",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplayStats,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.AddCommand(replayStatsCmd)
}

func runReplayStats(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Database.SQLitePath
	}
	if path == "" {
		return fmt.Errorf("no database given and database.sqlite_path is empty")
	}

	db, err := recorder.NewSQLiteRecorder(path, logger.Nop())
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := db.Stats()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "database:      %s\n", path)
	fmt.Fprintf(out, "providers:     %s\n", strings.Join(s.Providers, ", "))
	fmt.Fprintf(out, "captures:      %d\n", s.Captures)
	fmt.Fprintf(out, "snapshot rows: %d\n", s.SnapshotRows)
	fmt.Fprintf(out, "bar rows:      %d\n", s.BarRows)
	fmt.Fprintf(out, "symbols:       %d\n", s.Symbols)
	return nil
}
