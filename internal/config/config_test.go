package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesReferenceTrail(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	p, err := cfg.TrailParams()
	require.NoError(t, err)
	assert.Equal(t, trail.DefaultParams(), p)
	assert.Equal(t, trail.DefaultAppearance(), cfg.TrailAppearance())

	_, fixed := cfg.Theme()
	assert.False(t, fixed, "default theme is auto-detected")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Trail.Points)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
trail:
  points: 8
  mode: timescaled
appearance:
  theme: light
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	p, err := cfg.TrailParams()
	require.NoError(t, err)
	assert.Equal(t, 8, p.Points)
	assert.Equal(t, trail.ModeTimeScaled, p.Mode)
	assert.Equal(t, 0.4, p.HeadDamping, "unset keys keep defaults")

	theme, fixed := cfg.Theme()
	assert.True(t, fixed)
	assert.Equal(t, trail.ThemeLight, theme)
}

func TestLoadRejectsInvalidTrail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trail:\n  points: 1\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, trail.ErrInvalidParams)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WHIPTRAIL_DB", "/tmp/override.db")
	t.Setenv("WHIPTRAIL_THEME", "dark")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	theme, fixed := cfg.Theme()
	assert.True(t, fixed)
	assert.Equal(t, trail.ThemeDark, theme)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Trail.TrailDamping = 0.3

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, loaded.Trail.TrailDamping)
}

func TestFlushInterval(t *testing.T) {
	d := DaemonConfig{FlushInterval: "250ms"}
	got, err := d.Flush()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, got)

	_, err = DaemonConfig{FlushInterval: "soon"}.Flush()
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case reloaded <- c:
			case <-ctx.Done():
			}
		}, nil)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("trail:\n  head_damping: 0.5\n"), 0644))

	// Truncation may surface first as a reload of an empty file.
	deadline := time.After(3 * time.Second)
	for seen := false; !seen; {
		select {
		case c := <-reloaded:
			seen = c.Trail.HeadDamping == 0.5
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}

	cancel()
	require.NoError(t, <-done)
}
