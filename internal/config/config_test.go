package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"POSDISPLAY_CONFIG", "POSDISPLAY_HOME", "POSDISPLAY_TERMINAL_ID",
		"POSDISPLAY_LOG_LEVEL", "POSDISPLAY_HUB_ADDR", "POSDISPLAY_HUB_URL",
		"POSDISPLAY_HUB_TOKEN", "POSDISPLAY_SECRET", "POSDISPLAY_DISPLAY_NAME",
		"POSDISPLAY_BACKEND", "POSDISPLAY_DATABASE_PATH", "POSDISPLAY_PROBE_INTERVAL",
		"POSDISPLAY_STALENESS_THRESHOLD", "POSDISPLAY_SETTLE_DELAY",
		"POSDISPLAY_OPEN_TIMEOUT", "POSDISPLAY_MAX_PENDING", "DEBUG",
	} {
		t.Setenv(k, "")
	}
	return home
}

func ptr[T any](v T) *T { return &v }

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".posdisplay"), cfg.Home)
	require.Equal(t, BackendFile, cfg.Backend)
	require.Equal(t, 5*time.Second, cfg.ProbeInterval)
	require.Equal(t, 30*time.Second, cfg.StalenessThreshold)
	require.Equal(t, 1500*time.Millisecond, cfg.SettleDelay)
	require.Equal(t, 1024, cfg.Geometry.Width)
	require.Equal(t, 600, cfg.Geometry.Height)
	require.True(t, cfg.Geometry.Chromeless)
	require.Equal(t, filepath.Join(cfg.Home, "posdisplay.db"), cfg.DatabasePath)
	require.Equal(t, logger.LevelInfo, cfg.LogLevel)
}

func TestLoadEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("POSDISPLAY_PROBE_INTERVAL", "2s")
	t.Setenv("POSDISPLAY_STALENESS_THRESHOLD", "1m")
	t.Setenv("POSDISPLAY_BACKEND", "sqlite")
	t.Setenv("POSDISPLAY_LOG_LEVEL", "debug")
	t.Setenv("POSDISPLAY_MAX_PENDING", "8")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.ProbeInterval)
	require.Equal(t, time.Minute, cfg.StalenessThreshold)
	require.Equal(t, BackendSQLite, cfg.Backend)
	require.Equal(t, logger.LevelDebug, cfg.LogLevel)
	require.Equal(t, 8, cfg.MaxPending)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	isolate(t)
	t.Setenv("POSDISPLAY_SETTLE_DELAY", "soon")
	_, err := Load(Overrides{})
	require.ErrorContains(t, err, "POSDISPLAY_SETTLE_DELAY")
}

func TestFileOverlaysEnvironmentAndOverridesWin(t *testing.T) {
	home := isolate(t)
	t.Setenv("POSDISPLAY_DISPLAY_NAME", "from env")
	t.Setenv("POSDISPLAY_HUB_URL", "http://env:3005")

	path := filepath.Join(home, "posdisplay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
display_name: Bar Centrale
hub:
  url: http://hub.local:3005
storage:
  backend: memory
recovery:
  probe_interval_ms: 1000
  staleness_threshold_ms: 20000
surface:
  width: 800
  height: 480
  chromeless: false
`), 0o600))

	cfg, err := Load(Overrides{
		ConfigFile: &path,
		HubURL:     ptr("http://flag:3005"),
	})
	require.NoError(t, err)
	require.Equal(t, "Bar Centrale", cfg.DisplayName)
	require.Equal(t, "http://flag:3005", cfg.HubURL)
	require.Equal(t, BackendMemory, cfg.Backend)
	require.Equal(t, time.Second, cfg.ProbeInterval)
	require.Equal(t, 20*time.Second, cfg.StalenessThreshold)
	require.Equal(t, 800, cfg.Geometry.Width)
	require.False(t, cfg.Geometry.Chromeless)

	opts := cfg.DisplayOptions()
	require.Equal(t, "Bar Centrale", opts.DisplayContext.DisplayName)
	require.Equal(t, cfg.Geometry, opts.Geometry)
}

func TestLoadMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load(Overrides{ConfigFile: ptr("/does/not/exist.yaml")})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load(Overrides{})
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"zero probe interval":        func(c *Config) { c.ProbeInterval = 0 },
		"staleness below interval":   func(c *Config) { c.StalenessThreshold = c.ProbeInterval },
		"negative settle":            func(c *Config) { c.SettleDelay = -time.Second },
		"unknown backend":            func(c *Config) { c.Backend = "redis" },
		"empty geometry":             func(c *Config) { c.Geometry.Width = 0 },
		"no pending room":            func(c *Config) { c.MaxPending = 0 },
		"missing home":               func(c *Config) { c.Home = " " },
		"non-positive open deadline": func(c *Config) { c.OpenTimeout = 0 },
	}
	for name, mutate := range cases {
		c := *base
		mutate(&c)
		require.Error(t, c.Validate(), name)
	}
	require.NoError(t, base.Validate())
}
