// whiptrail-tui draws the trail in the terminal, following the mouse.
//
// Usage:
//
//	whiptrail-tui [flags]
//
// Flags:
//
//	--config  Path to config file (default: ~/.whiptrail/config.yaml)
//	--db      Path to SQLite database file (overrides config)
//	--log     Log file; the alternate screen owns stderr (default: ~/.whiptrail/tui.log)
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mr-Dark-debug/whiptrail/internal/config"
	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/logging"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"
	"github.com/Mr-Dark-debug/whiptrail/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	dbPath  string
	logPath string
)

var rootCmd = &cobra.Command{
	Use:          "whiptrail-tui",
	Short:        "A chain of segments that whips after your mouse",
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", config.DefaultPath(), "Path to config file")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database file (overrides config)")
	rootCmd.Flags().StringVar(&logPath, "log", "", "Log file (default: tui.log next to the config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	switch {
	case logPath != "":
		cfg.Logging.File = logPath
	case cfg.Logging.File == "":
		cfg.Logging.File = filepath.Join(config.Dir(), "tui.log")
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	params, err := cfg.TrailParams()
	if err != nil {
		return err
	}

	// Recording needs the store; the trail itself does not.
	var store database.Store
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err == nil {
		db, err := database.NewDBService(cfg.Database.Path)
		if err != nil {
			log.Warn("session store unavailable", zap.String("path", cfg.Database.Path), zap.Error(err))
		} else {
			defer db.Close()
			store = db
		}
	}

	var theme trail.ThemeSource = tui.TerminalTheme{}
	if t, ok := cfg.Theme(); ok {
		theme = trail.StaticTheme(t)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	reloads := make(chan *config.Config)
	go func() {
		defer close(reloads)
		err := config.Watch(ctx, cfgPath, func(c *config.Config) {
			select {
			case reloads <- c:
			case <-ctx.Done():
			}
		}, func(err error) {
			log.Warn("config reload failed", zap.Error(err))
		})
		if err != nil {
			log.Warn("config watch stopped", zap.Error(err))
		}
	}()

	model, err := tui.NewModel(store, tui.Options{
		Params:     params,
		Appearance: cfg.TrailAppearance(),
		Theme:      theme,
		Reloads:    reloads,
		Log:        log,
	})
	if err != nil {
		return err
	}

	log.Info("tui started",
		zap.Int("points", params.Points),
		zap.String("mode", string(params.Mode)),
		zap.Int("hz", params.RefreshHz))

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}
