// whiptrail-daemon receives pointer streams, stores them as sessions and
// animates trails for websocket clients.
//
// Usage:
//
//	whiptrail-daemon [flags]
//
// Flags override the config file:
//
//	--listen    unix socket path, or host:port on Windows
//	--http      HTTP address for /ws, /metrics and /api/metrics
//	--db        Path to SQLite database file
//	--batch     Samples buffered before a flush
//	--flush     Flush interval
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/config"
	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/ingestion"
	"github.com/Mr-Dark-debug/whiptrail/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath    string
	listenAddr string
	httpAddr   string
	dbPath     string
	batchSize  int
	flushEvery time.Duration
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "whiptrail-daemon",
	Short:        "Pointer stream ingestion and trail rendering service",
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", config.DefaultPath(), "Path to config file")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "Wire protocol listen address")
	rootCmd.Flags().StringVar(&httpAddr, "http", "", "HTTP address for websocket and metrics")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database file")
	rootCmd.Flags().IntVar(&batchSize, "batch", 0, "Batch size before flush")
	rootCmd.Flags().DurationVar(&flushEvery, "flush", 0, "Flush interval")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	dcfg, err := ingestion.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		dcfg.ListenAddr = listenAddr
	}
	if httpAddr != "" {
		dcfg.HTTPAddr = httpAddr
	}
	if batchSize > 0 {
		dcfg.BatchSize = batchSize
	}
	if flushEvery > 0 {
		dcfg.FlushInterval = flushEvery
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Ensure the database directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := database.NewDBService(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon := ingestion.NewDaemonIngester(dcfg, store, log)
	if err := daemon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  WHIPTRAIL DAEMON")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Listen:  %s\n", dcfg.ListenAddr)
	fmt.Fprintf(out, "  DB:      %s\n", cfg.Database.Path)
	if dcfg.HTTPAddr != "" {
		fmt.Fprintf(out, "  Stream:  ws://%s/ws\n", dcfg.HTTPAddr)
		fmt.Fprintf(out, "  Metrics: http://%s/metrics\n", dcfg.HTTPAddr)
	}
	fmt.Fprintf(out, "  Trail:   %d points, %s @ %dHz\n", dcfg.Trail.Points, dcfg.Trail.Mode, dcfg.Trail.RefreshHz)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Press Ctrl+C to stop.")
	fmt.Fprintln(out)

	<-ctx.Done()

	fmt.Fprintln(out, "\n  Shutting down gracefully...")
	shutdownStart := time.Now()
	if err := daemon.Stop(); err != nil {
		log.Error("shutdown", zap.Error(err))
		return err
	}
	m := daemon.Metrics()
	log.Info("daemon stopped",
		zap.Duration("shutdown", time.Since(shutdownStart)),
		zap.Int64("samples", m.SamplesIngested),
		zap.Int64("frames", m.FramesRendered))
	fmt.Fprintln(out, "  Done.")
	return nil
}
