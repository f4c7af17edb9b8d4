// Package config loads whiptrail's YAML configuration.
//
// A missing file yields DefaultConfig; WHIPTRAIL_* environment variables
// override whatever the file says.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	"gopkg.in/yaml.v3"
)

// Config holds all whiptrail configuration.
type Config struct {
	Trail      TrailConfig      `yaml:"trail"`
	Appearance AppearanceConfig `yaml:"appearance"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TrailConfig is the physics of the chain.
type TrailConfig struct {
	Points       int     `yaml:"points"`
	HeadDamping  float64 `yaml:"head_damping"`
	TrailDamping float64 `yaml:"trail_damping"`
	Mode         string  `yaml:"mode"` // damped, timescaled, spring
	RefreshHz    int     `yaml:"refresh_hz"`
	SentinelX    float64 `yaml:"sentinel_x"`
	SentinelY    float64 `yaml:"sentinel_y"`

	SpringFrequency float64 `yaml:"spring_frequency"`
	SpringDamping   float64 `yaml:"spring_damping"`
}

// AppearanceConfig is how segments look. It never affects physics.
type AppearanceConfig struct {
	Theme        string  `yaml:"theme"` // dark, light, auto
	Color        string  `yaml:"color"`
	Thickness    float64 `yaml:"thickness"`
	DarkOpacity  float64 `yaml:"dark_opacity"`
	LightOpacity float64 `yaml:"light_opacity"`
	GlowSegments int     `yaml:"glow_segments"`
}

// DaemonConfig configures the ingestion daemon.
type DaemonConfig struct {
	// ListenAddr is a unix socket path, or host:port on Windows.
	ListenAddr string `yaml:"listen_addr"`
	// HTTPAddr serves /ws, /metrics, /api/metrics and /health.
	HTTPAddr      string `yaml:"http_addr"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
	// AllowedOrigins restricts websocket upgrades; empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig locates the session store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`   // empty logs to stderr
}

// Dir is whiptrail's home directory, ~/.whiptrail.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".whiptrail")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() *Config {
	tp := trail.DefaultParams()
	ap := trail.DefaultAppearance()

	listen := "127.0.0.1:9876"
	if runtime.GOOS != "windows" {
		listen = filepath.Join(os.TempDir(), "whiptrail.sock")
	}

	return &Config{
		Trail: TrailConfig{
			Points:          tp.Points,
			HeadDamping:     tp.HeadDamping,
			TrailDamping:    tp.TrailDamping,
			Mode:            string(tp.Mode),
			RefreshHz:       tp.RefreshHz,
			SentinelX:       tp.Sentinel.X,
			SentinelY:       tp.Sentinel.Y,
			SpringFrequency: tp.SpringFrequency,
			SpringDamping:   tp.SpringDamping,
		},
		Appearance: AppearanceConfig{
			Theme:        "auto",
			Color:        ap.Color,
			Thickness:    ap.Thickness,
			DarkOpacity:  ap.DarkOpacity,
			LightOpacity: ap.LightOpacity,
			GlowSegments: ap.GlowSegments,
		},
		Daemon: DaemonConfig{
			ListenAddr:    listen,
			HTTPAddr:      "127.0.0.1:9877",
			BatchSize:     1000,
			FlushInterval: "500ms",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(Dir(), "whiptrail.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WHIPTRAIL_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("WHIPTRAIL_LISTEN"); v != "" {
		c.Daemon.ListenAddr = v
	}
	if v := os.Getenv("WHIPTRAIL_HTTP"); v != "" {
		c.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("WHIPTRAIL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WHIPTRAIL_THEME"); v != "" {
		c.Appearance.Theme = v
	}
}

// Validate checks every section that has constraints.
func (c *Config) Validate() error {
	if _, err := c.TrailParams(); err != nil {
		return fmt.Errorf("trail: %w", err)
	}
	if c.Appearance.Theme != "auto" {
		if _, err := trail.ParseTheme(c.Appearance.Theme); err != nil {
			return fmt.Errorf("appearance: %w", err)
		}
	}
	if c.Appearance.DarkOpacity < 0 || c.Appearance.DarkOpacity > 1 ||
		c.Appearance.LightOpacity < 0 || c.Appearance.LightOpacity > 1 {
		return fmt.Errorf("appearance: opacity must be within [0, 1]")
	}
	if c.Daemon.BatchSize <= 0 {
		return fmt.Errorf("daemon: batch_size must be positive")
	}
	if _, err := c.Daemon.Flush(); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}

// TrailParams converts the trail section into core parameters.
func (c *Config) TrailParams() (trail.Params, error) {
	mode, err := trail.ParseMode(c.Trail.Mode)
	if err != nil {
		return trail.Params{}, err
	}
	p := trail.Params{
		Points:          c.Trail.Points,
		HeadDamping:     c.Trail.HeadDamping,
		TrailDamping:    c.Trail.TrailDamping,
		Sentinel:        trail.Pt(c.Trail.SentinelX, c.Trail.SentinelY),
		Mode:            mode,
		RefreshHz:       c.Trail.RefreshHz,
		SpringFrequency: c.Trail.SpringFrequency,
		SpringDamping:   c.Trail.SpringDamping,
	}
	return p, p.Validate()
}

// TrailAppearance converts the appearance section into core styling.
func (c *Config) TrailAppearance() trail.Appearance {
	return trail.Appearance{
		Color:        c.Appearance.Color,
		Thickness:    c.Appearance.Thickness,
		DarkOpacity:  c.Appearance.DarkOpacity,
		LightOpacity: c.Appearance.LightOpacity,
		GlowSegments: c.Appearance.GlowSegments,
	}
}

// Theme returns the fixed theme, or ok=false when the theme is "auto" and
// the caller should detect it.
func (c *Config) Theme() (theme trail.Theme, ok bool) {
	t, err := trail.ParseTheme(c.Appearance.Theme)
	if err != nil {
		return trail.ThemeDark, false
	}
	return t, true
}

// Flush parses FlushInterval.
func (d DaemonConfig) Flush() (time.Duration, error) {
	dur, err := time.ParseDuration(d.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("flush_interval %q: %w", d.FlushInterval, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("flush_interval must be positive")
	}
	return dur, nil
}
