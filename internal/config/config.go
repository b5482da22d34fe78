// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "3s", "500ms", "10m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all monitor configuration.
type Config struct {
	Monitor   MonitorConfig   `yaml:"monitor"`
	Detector  DetectorConfig  `yaml:"detector"`
	Healer    HealerConfig    `yaml:"healer"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MonitorConfig holds sampling settings.
type MonitorConfig struct {
	Interval    Duration `yaml:"interval"`
	HistorySize int      `yaml:"history_size"`
	OpTimeout   Duration `yaml:"op_timeout"`
}

// DetectorConfig holds the detection thresholds.
type DetectorConfig struct {
	UnresponsiveZeroSamples int     `yaml:"unresponsive_zero_samples"`
	HighMemoryPercent       float64 `yaml:"high_memory_percent"`
	HighCPUPercent          float64 `yaml:"high_cpu_percent"`
}

// HealerConfig holds recovery settings.
type HealerConfig struct {
	Enabled          bool                `yaml:"enabled"`
	Interval         Duration            `yaml:"interval"`
	SoftImprovement  float64             `yaml:"soft_improvement"`
	SettleWait       Duration            `yaml:"settle_wait"`
	RecoverySettle   Duration            `yaml:"recovery_settle"`
	TerminateTimeout Duration            `yaml:"terminate_timeout"`
	KillTimeout      Duration            `yaml:"kill_timeout"`
	OpTimeout        Duration            `yaml:"op_timeout"`
	CPUSampleWindow  Duration            `yaml:"cpu_sample_window"`
	Protected        []string            `yaml:"protected"`
	Restart          map[string][]string `yaml:"restart"`
	RestartLimit     RestartLimitConfig  `yaml:"restart_limit"`
}

// RestartLimitConfig caps relaunches per process name.
type RestartLimitConfig struct {
	Burst int      `yaml:"burst"`
	Per   Duration `yaml:"per"`
}

// WhitelistConfig locates the whitelist file.
type WhitelistConfig struct {
	File string `yaml:"file"`
}

// LedgerConfig holds optimization ledger settings.
type LedgerConfig struct {
	File     string `yaml:"file"`
	Capacity int    `yaml:"capacity"`
}

// EventsConfig selects the event log sinks. Empty values disable a sink.
type EventsConfig struct {
	File        string `yaml:"file"`
	SQLite      string `yaml:"sqlite"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Interval:    Duration{3 * time.Second},
			HistorySize: 60,
			OpTimeout:   Duration{5 * time.Second},
		},
		Detector: DetectorConfig{
			UnresponsiveZeroSamples: 4,
			HighMemoryPercent:       60,
			HighCPUPercent:          90,
		},
		Healer: HealerConfig{
			Enabled:          true,
			Interval:         Duration{10 * time.Second},
			SoftImprovement:  0.30,
			SettleWait:       Duration{2 * time.Second},
			RecoverySettle:   Duration{2 * time.Second},
			TerminateTimeout: Duration{5 * time.Second},
			KillTimeout:      Duration{3 * time.Second},
			OpTimeout:        Duration{5 * time.Second},
			CPUSampleWindow:  Duration{500 * time.Millisecond},
			RestartLimit: RestartLimitConfig{
				Burst: 3,
				Per:   Duration{10 * time.Minute},
			},
		},
		Whitelist: WhitelistConfig{
			File: "./whitelist.json",
		},
		Ledger: LedgerConfig{
			File:     "./optimizations.json",
			Capacity: 50,
		},
		Events: EventsConfig{
			File:        "./logs/events.jsonl",
			NATSSubject: "shol.events",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "./shol.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take precedence over values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return LoadFromBytes(nil)
	}

	return LoadFromBytes(data)
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	LogLevel      string
	MetricsListen string
	MonitorOnly   bool
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > YAML file > defaults.
//
// An optional configPath argument controls file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no file)
//
// Unlike Load, an explicitly named file that cannot be read is an error.
func LoadLayered(cli CLIOverrides, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	var filePath string
	explicit := len(configPath) > 0
	if explicit {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		case explicit:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.MetricsListen != "" {
		cfg.Metrics.Listen = cli.MetricsListen
	}
	if cli.MonitorOnly {
		cfg.Healer.Enabled = false
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("SHOL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if file := os.Getenv("SHOL_WHITELIST_FILE"); file != "" {
		cfg.Whitelist.File = file
	}
	if file := os.Getenv("SHOL_LEDGER_FILE"); file != "" {
		cfg.Ledger.File = file
	}
	if url := os.Getenv("SHOL_NATS_URL"); url != "" {
		cfg.Events.NATSURL = url
	}
	if listen := os.Getenv("SHOL_METRICS_LISTEN"); listen != "" {
		cfg.Metrics.Listen = listen
	}
	if v := strings.ToLower(os.Getenv("SHOL_HEALER_ENABLED")); v != "" {
		cfg.Healer.Enabled = v == "1" || v == "true" || v == "yes"
	}
}

// Validate checks that the configuration is usable. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d Duration) {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive (got %s)", name, d.Duration))
		}
	}
	percent := func(name string, v float64) {
		if v <= 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 100] (got %v)", name, v))
		}
	}

	positive("monitor.interval", c.Monitor.Interval)
	positive("monitor.op_timeout", c.Monitor.OpTimeout)
	if c.Monitor.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("monitor.history_size must be at least 1 (got %d)", c.Monitor.HistorySize))
	}

	if n := c.Detector.UnresponsiveZeroSamples; n < 1 || n > c.Monitor.HistorySize {
		errs = append(errs, fmt.Errorf("detector.unresponsive_zero_samples must be in [1, history_size] (got %d)", n))
	}
	percent("detector.high_memory_percent", c.Detector.HighMemoryPercent)
	percent("detector.high_cpu_percent", c.Detector.HighCPUPercent)

	positive("healer.interval", c.Healer.Interval)
	positive("healer.terminate_timeout", c.Healer.TerminateTimeout)
	positive("healer.kill_timeout", c.Healer.KillTimeout)
	positive("healer.op_timeout", c.Healer.OpTimeout)
	if s := c.Healer.SoftImprovement; s <= 0 || s >= 1 {
		errs = append(errs, fmt.Errorf("healer.soft_improvement must be in (0, 1) (got %v)", s))
	}
	if c.Healer.SettleWait.Duration < 0 || c.Healer.RecoverySettle.Duration < 0 || c.Healer.CPUSampleWindow.Duration < 0 {
		errs = append(errs, errors.New("healer wait durations must not be negative"))
	}
	for name, argv := range c.Healer.Restart {
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			errs = append(errs, fmt.Errorf("healer.restart[%s] has an empty command", name))
		}
	}
	if c.Healer.RestartLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("healer.restart_limit.burst must not be negative (got %d)", c.Healer.RestartLimit.Burst))
	}

	if c.Whitelist.File == "" {
		errs = append(errs, errors.New("whitelist.file is required"))
	}
	if c.Ledger.Capacity < 1 {
		errs = append(errs, fmt.Errorf("ledger.capacity must be at least 1 (got %d)", c.Ledger.Capacity))
	}
	if c.Events.NATSURL != "" && c.Events.NATSSubject == "" {
		errs = append(errs, errors.New("events.nats_subject is required when nats_url is set"))
	}

	return errors.Join(errs...)
}
