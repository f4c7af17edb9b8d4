package main

import (
	"fmt"

	"github.com/Mr-Dark-debug/whiptrail/internal/analysis"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	analyzeSession string
	analyzeFormat  string
	analyzeSave    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Replay a session and report how the chain behaved",
	Long: `Replays a recorded session through a fresh animator at the configured
refresh rate and reports head and tail lag, peak segment stretch, how long the
chain took to settle once the pointer stopped, and the observed per-frame
decay of the head.

Example:
  whiptrail analyze --session 3f2a... --format json --save`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSession, "session", "", "Session ID to analyze (required)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "markdown", "Output format: markdown, json")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Store the replayed frames with the session, apart from its live frame stats")
	analyzeCmd.MarkFlagRequired("session")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeFormat != "markdown" && analyzeFormat != "json" {
		return fmt.Errorf("unknown format: %s", analyzeFormat)
	}

	params, err := cfg.TrailParams()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	analyzer := analysis.NewAnalyzer(store, params, logger)
	report, err := analyzer.Analyze(analyzeSession)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if analyzeSave {
		if err := analyzer.SaveFrames(report); err != nil {
			return err
		}
		logger.Info("frame stats saved", zap.String("session", analyzeSession), zap.Int("frames", report.Frames))
	}

	out := cmd.OutOrStdout()
	if analyzeFormat == "json" {
		b, err := analyzer.FormatJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
		return nil
	}
	fmt.Fprint(out, analyzer.FormatReport(report))
	return nil
}
