// Command whiptrail inspects, analyses and simulates chain-trail sessions.
//
// Usage:
//
//	whiptrail <command> [flags]
//
// Commands:
//
//	sessions   List recorded sessions
//	samples    Dump one session's pointer samples
//	analyze    Replay a session and report how the chain behaved
//	simulate   Drive the trail headlessly along a scripted path
//	status     Show daemon status
//	config     Write or show the configuration file
//	version    Print version information
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mr-Dark-debug/whiptrail/internal/config"
	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	cfgPath string
	dbPath  string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "whiptrail",
	Short: "whiptrail - a chain of segments that whips after the pointer",
	Long: `whiptrail records pointer sessions, replays them through the trail
animator and reports how the chain followed.

Sessions come from the TUI (whiptrail-tui), from browsers connected to the
daemon's /ws endpoint, or from 'whiptrail simulate'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "whiptrail v%s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath(), "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(samplesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the configured database, creating its directory.
func openStore() (*database.DBService, error) {
	path := cfg.Database.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	store, err := database.NewDBService(path)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}
	return store, nil
}
