// Package config loads posdisplay configuration from the environment, an
// optional YAML file and command line overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/displaysync"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/liveness"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/recovery"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const (
	defaultHubAddr = ":3005"
	defaultHubURL  = "http://127.0.0.1:3005"
)

// Config holds posdisplay configuration.
type Config struct {
	// Home is where local state (terminal id, snapshots, database) lives.
	Home string
	// TerminalID identifies this POS terminal. Empty means generate one
	// under Home on first use.
	TerminalID string
	LogLevel   logger.Level

	// HubAddr is the listen address of `posdisplay hub`.
	HubAddr string
	// HubURL is the base URL operators and displays dial.
	HubURL string
	// HubToken is the join token presented to the hub.
	HubToken string
	// Secret is the hub's shared secret.
	Secret string

	// DisplayName is shown on the customer display welcome screen.
	DisplayName string

	// Backend selects where recovery snapshots are kept.
	Backend string
	// DatabasePath is used by the sqlite backend.
	DatabasePath string

	ProbeInterval time.Duration
	// StalenessThreshold is a heuristic: a background period longer than
	// this is treated as a suspend that may have killed the surface.
	StalenessThreshold time.Duration
	SettleDelay        time.Duration
	OpenTimeout        time.Duration
	MaxPending         int

	Geometry display.Geometry
}

// Overrides optionally overrides loaded values.
//
// A nil pointer means "use the file/environment/default value".
type Overrides struct {
	ConfigFile  *string
	Home        *string
	TerminalID  *string
	LogLevel    *string
	HubAddr     *string
	HubURL      *string
	HubToken    *string
	Secret      *string
	DisplayName *string
	Backend     *string
}

// fileConfig is the YAML layout. Absent keys keep the environment value.
type fileConfig struct {
	Home        *string `yaml:"home"`
	TerminalID  *string `yaml:"terminal_id"`
	LogLevel    *string `yaml:"log_level"`
	DisplayName *string `yaml:"display_name"`

	Hub struct {
		Addr  *string `yaml:"addr"`
		URL   *string `yaml:"url"`
		Token *string `yaml:"token"`
	} `yaml:"hub"`

	Storage struct {
		Backend      *string `yaml:"backend"`
		DatabasePath *string `yaml:"database_path"`
	} `yaml:"storage"`

	Recovery struct {
		ProbeIntervalMs      *int64 `yaml:"probe_interval_ms"`
		StalenessThresholdMs *int64 `yaml:"staleness_threshold_ms"`
		SettleDelayMs        *int64 `yaml:"settle_delay_ms"`
		OpenTimeoutMs        *int64 `yaml:"open_timeout_ms"`
		MaxPending           *int   `yaml:"max_pending"`
	} `yaml:"recovery"`

	Surface struct {
		Width      *int  `yaml:"width"`
		Height     *int  `yaml:"height"`
		X          *int  `yaml:"x"`
		Y          *int  `yaml:"y"`
		Chromeless *bool `yaml:"chromeless"`
	} `yaml:"surface"`
}

// Load builds the configuration: defaults, then POSDISPLAY_* environment
// variables, then the YAML file named by POSDISPLAY_CONFIG or the override,
// then the explicit overrides. The result is validated.
func Load(overrides Overrides) (*Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	path := os.Getenv("POSDISPLAY_CONFIG")
	if overrides.ConfigFile != nil {
		path = *overrides.ConfigFile
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyOverrides(overrides); err != nil {
		return nil, err
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.Home, "posdisplay.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	opts := displaysync.DefaultOptions()
	return &Config{
		Home:               filepath.Join(homeDir, ".posdisplay"),
		LogLevel:           logger.LevelInfo,
		HubAddr:            defaultHubAddr,
		HubURL:             defaultHubURL,
		Backend:            BackendFile,
		ProbeInterval:      liveness.DefaultInterval,
		StalenessThreshold: opts.StalenessThreshold,
		SettleDelay:        opts.SettleDelay,
		OpenTimeout:        recovery.DefaultOpenTimeout,
		MaxPending:         recovery.DefaultMaxPending,
		Geometry:           displaysync.DefaultGeometry,
	}, nil
}

func fromEnv() (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}

	setString(&cfg.Home, "POSDISPLAY_HOME")
	setString(&cfg.TerminalID, "POSDISPLAY_TERMINAL_ID")
	setString(&cfg.HubAddr, "POSDISPLAY_HUB_ADDR")
	setString(&cfg.HubURL, "POSDISPLAY_HUB_URL")
	setString(&cfg.HubToken, "POSDISPLAY_HUB_TOKEN")
	setString(&cfg.Secret, "POSDISPLAY_SECRET")
	setString(&cfg.DisplayName, "POSDISPLAY_DISPLAY_NAME")
	setString(&cfg.Backend, "POSDISPLAY_BACKEND")
	setString(&cfg.DatabasePath, "POSDISPLAY_DATABASE_PATH")

	if raw := os.Getenv("POSDISPLAY_LOG_LEVEL"); raw != "" {
		lvl, err := logger.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("POSDISPLAY_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = lvl
	} else if debug := os.Getenv("DEBUG"); debug == "true" || debug == "1" {
		cfg.LogLevel = logger.LevelDebug
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"POSDISPLAY_PROBE_INTERVAL", &cfg.ProbeInterval},
		{"POSDISPLAY_STALENESS_THRESHOLD", &cfg.StalenessThreshold},
		{"POSDISPLAY_SETTLE_DELAY", &cfg.SettleDelay},
		{"POSDISPLAY_OPEN_TIMEOUT", &cfg.OpenTimeout},
	}
	for _, d := range durations {
		raw := os.Getenv(d.env)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.env, err)
		}
		*d.dst = v
	}

	if raw := os.Getenv("POSDISPLAY_MAX_PENDING"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("POSDISPLAY_MAX_PENDING: %w", err)
		}
		cfg.MaxPending = n
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	apply(&c.Home, fc.Home)
	apply(&c.TerminalID, fc.TerminalID)
	apply(&c.DisplayName, fc.DisplayName)
	apply(&c.HubAddr, fc.Hub.Addr)
	apply(&c.HubURL, fc.Hub.URL)
	apply(&c.HubToken, fc.Hub.Token)
	apply(&c.Backend, fc.Storage.Backend)
	apply(&c.DatabasePath, fc.Storage.DatabasePath)
	apply(&c.MaxPending, fc.Recovery.MaxPending)
	apply(&c.Geometry.Width, fc.Surface.Width)
	apply(&c.Geometry.Height, fc.Surface.Height)
	apply(&c.Geometry.X, fc.Surface.X)
	apply(&c.Geometry.Y, fc.Surface.Y)
	apply(&c.Geometry.Chromeless, fc.Surface.Chromeless)
	applyMs(&c.ProbeInterval, fc.Recovery.ProbeIntervalMs)
	applyMs(&c.StalenessThreshold, fc.Recovery.StalenessThresholdMs)
	applyMs(&c.SettleDelay, fc.Recovery.SettleDelayMs)
	applyMs(&c.OpenTimeout, fc.Recovery.OpenTimeoutMs)

	if fc.LogLevel != nil {
		lvl, err := logger.ParseLevel(*fc.LogLevel)
		if err != nil {
			return fmt.Errorf("config %s: log_level: %w", path, err)
		}
		c.LogLevel = lvl
	}
	return nil
}

func (c *Config) applyOverrides(o Overrides) error {
	apply(&c.Home, o.Home)
	apply(&c.TerminalID, o.TerminalID)
	apply(&c.HubAddr, o.HubAddr)
	apply(&c.HubURL, o.HubURL)
	apply(&c.HubToken, o.HubToken)
	apply(&c.Secret, o.Secret)
	apply(&c.DisplayName, o.DisplayName)
	apply(&c.Backend, o.Backend)
	if o.LogLevel != nil {
		lvl, err := logger.ParseLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = lvl
	}
	return nil
}

// Validate rejects configurations the display context cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Home) == "" {
		return fmt.Errorf("home directory is required")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %s", c.ProbeInterval)
	}
	if c.StalenessThreshold <= c.ProbeInterval {
		return fmt.Errorf("staleness threshold %s must exceed probe interval %s", c.StalenessThreshold, c.ProbeInterval)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative, got %s", c.SettleDelay)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("open timeout must be positive, got %s", c.OpenTimeout)
	}
	if c.MaxPending <= 0 {
		return fmt.Errorf("max pending must be positive, got %d", c.MaxPending)
	}
	if c.Geometry.Width <= 0 || c.Geometry.Height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", c.Geometry.Width, c.Geometry.Height)
	}
	switch c.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("invalid backend %q (expected file, sqlite, or memory)", c.Backend)
	}
	return nil
}

// DisplayOptions maps the configuration onto display context options.
func (c *Config) DisplayOptions() displaysync.Options {
	return displaysync.Options{
		Geometry:           c.Geometry,
		ProbeInterval:      c.ProbeInterval,
		StalenessThreshold: c.StalenessThreshold,
		SettleDelay:        c.SettleDelay,
		OpenTimeout:        c.OpenTimeout,
		MaxPending:         c.MaxPending,
		DisplayContext:     recovery.DisplayContext{DisplayName: c.DisplayName},
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func apply[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func applyMs(dst *time.Duration, ms *int64) {
	if ms != nil {
		*dst = time.Duration(*ms) * time.Millisecond
	}
}
