package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/config"
	"github.com/Mr-Dark-debug/whiptrail/internal/ingestion"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and metrics",
	RunE:  runStatus,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or show the configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the config path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgPath); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
		}
		if err := config.DefaultConfig().Save(cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// runStatus queries the daemon's metrics endpoint.
func runStatus(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("http://%s/api/metrics", cfg.Daemon.HTTPAddr)
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(out, "⚠ whiptrail daemon is not running.")
		fmt.Fprintln(out, "  Start it with: whiptrail-daemon")
		fmt.Fprintf(out, "  (tried: %s)\n", url)
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	var m ingestion.IngestionMetrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return fmt.Errorf("failed to decode metrics: %w", err)
	}

	fmt.Fprintln(out, "✅ whiptrail daemon is running.")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Sessions opened:     %d\n", m.SessionsOpened)
	fmt.Fprintf(out, "  Samples ingested:    %d\n", m.SamplesIngested)
	fmt.Fprintf(out, "  Frames rendered:     %d\n", m.FramesRendered)
	fmt.Fprintf(out, "  Frames dropped:      %d\n", m.FramesDropped)
	fmt.Fprintf(out, "  Render streams:      %d\n", m.ActiveStreams)
	fmt.Fprintf(out, "  Batches committed:   %d\n", m.BatchesCommitted)
	fmt.Fprintf(out, "  Errors:              %d\n", m.ErrorCount)
	fmt.Fprintf(out, "  Uptime:              %ds\n", m.Uptime)
	return nil
}
