package main

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level quai configuration. Values come from the YAML
// file, overridden by QUAI_* environment variables and flags
// (flag > env > file > default).
type Config struct {
	Listen   string `yaml:"listen"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Storage StorageConfig `yaml:"storage"`
	Favicon FaviconConfig `yaml:"favicon"`
	Idle    IdleConfig    `yaml:"idle"`
	Panel   PanelConfig   `yaml:"panel"`
	Watch   WatchConfig   `yaml:"watch"`
	Obs     ObsConfig     `yaml:"observability"`
}

// StorageConfig names the SQLite files. Empty paths resolve under DataDir.
type StorageConfig struct {
	SitesDB   string `yaml:"sites_db"`
	FaviconDB string `yaml:"favicon_db"`
	ObsDB     string `yaml:"obs_db"`
	// Trace enables the sqlite-trace driver on the sites and favicon DBs
	// and persists slow/errored statements to TraceDB.
	Trace   bool   `yaml:"trace"`
	TraceDB string `yaml:"trace_db"`
}

type FaviconConfig struct {
	TTL              time.Duration `yaml:"ttl"`
	SourceTimeout    time.Duration `yaml:"source_timeout"`
	DisableDiscovery bool          `yaml:"disable_discovery"`
}

type IdleConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type PanelConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Mode            string        `yaml:"mode"` // headless | headful
	RemoteURL       string        `yaml:"remote_url"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	NavTimeout      time.Duration `yaml:"nav_timeout"`
	SnapshotMaxLen  int           `yaml:"snapshot_max_len"`
}

type WatchConfig struct {
	Disabled bool          `yaml:"disabled"`
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

type ObsConfig struct {
	Disabled          bool          `yaml:"disabled"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RetentionDays     int           `yaml:"retention_days"`
}

// loadConfig reads the YAML file when path is non-empty; otherwise it
// returns a zero Config for the override/defaults passes to fill.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// override applies flag > env precedence onto a file-sourced field.
func override(dst *string, flagVal, envKey string) {
	if flagVal != "" {
		*dst = flagVal
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8674"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Storage.SitesDB == "" {
		c.Storage.SitesDB = filepath.Join(c.DataDir, "sites.db")
	}
	if c.Storage.FaviconDB == "" {
		c.Storage.FaviconDB = filepath.Join(c.DataDir, "favicons.db")
	}
	if c.Storage.ObsDB == "" {
		c.Storage.ObsDB = filepath.Join(c.DataDir, "observability.db")
	}
	if c.Storage.TraceDB == "" {
		c.Storage.TraceDB = filepath.Join(c.DataDir, "traces.db")
	}

	// Favicon, idle, and panel zero values fall through to the service
	// defaults; only daemon-level knobs are resolved here.
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = time.Second
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 500 * time.Millisecond
	}
	if c.Obs.HeartbeatInterval <= 0 {
		c.Obs.HeartbeatInterval = time.Minute
	}
	if c.Obs.RetentionDays <= 0 {
		c.Obs.RetentionDays = 30
	}
}
