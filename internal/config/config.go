// Package config loads loader configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fatotools/wms-loader/internal/util"
)

type Config struct {
	Log     LogConfig      `yaml:"log"`
	Folders []FolderConfig `yaml:"folders"`

	// Recursive controls whether source folders are walked into
	// subdirectories.
	Recursive bool `yaml:"recursive"`

	StagingPath string `yaml:"staging_path"`
	FinalPath   string `yaml:"final_path"`

	// AuditColumns toggles the per-run provenance columns stamped onto
	// every row.
	AuditColumns bool `yaml:"audit_columns"`

	// BatchSize is the requested rows-per-INSERT; the writer caps it
	// against the parameter ceiling.
	BatchSize int `yaml:"batch_size"`

	// MaxParams is the store's bound-parameter ceiling per statement.
	MaxParams int `yaml:"max_params"`

	Sniff    SniffConfig    `yaml:"sniff"`
	Publish  PublishConfig  `yaml:"publish"`
	Report   ReportConfig   `yaml:"report"`
	AuditLog AuditLogConfig `yaml:"audit_log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Watch    WatchConfig    `yaml:"watch"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// FolderConfig maps one source folder onto one destination table.
type FolderConfig struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

type SniffConfig struct {
	// BannerSignatures are export-tool banner strings; a first line or
	// top-left cell matching one (case-insensitive) pushes the header to
	// the second row.
	BannerSignatures []string `yaml:"banner_signatures"`
	// Delimiters are probed in order for delimited text files.
	Delimiters []string `yaml:"delimiters"`
}

type PublishConfig struct {
	Attempts     int `yaml:"attempts"`
	RetryDelayMs int `yaml:"retry_delay_ms"`
}

type ReportConfig struct {
	Dir string `yaml:"dir"`
}

type AuditLogConfig struct {
	Path       string `yaml:"path"`
	WebhookURL string `yaml:"webhook_url"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type WatchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DebounceMs int    `yaml:"debounce_ms"`
	Schedule   string `yaml:"schedule"`
}

// Default returns the built-in configuration before file and environment
// overrides.
func Default() Config {
	return Config{
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Recursive:    true,
		AuditColumns: true,
		BatchSize:    50000,
		MaxParams:    999,
		Sniff: SniffConfig{
			BannerSignatures: []string{"relatório de tarefas"},
			Delimiters:       []string{";", ",", "\t"},
		},
		Publish: PublishConfig{
			Attempts:     5,
			RetryDelayMs: 1500,
		},
		Report: ReportConfig{
			Dir: "reports",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		Watch: WatchConfig{
			Enabled:    false,
			DebounceMs: 2000,
		},
	}
}

// Load reads the YAML file at path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv layers WMS_LOADER_* environment variables over the file values.
func applyEnv(cfg *Config) {
	cfg.Log.Format = getenvDefault("WMS_LOADER_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Level = getenvDefault("WMS_LOADER_LOG_LEVEL", cfg.Log.Level)
	cfg.StagingPath = getenvDefault("WMS_LOADER_STAGING_PATH", cfg.StagingPath)
	cfg.FinalPath = getenvDefault("WMS_LOADER_FINAL_PATH", cfg.FinalPath)
	cfg.Metrics.Address = getenvDefault("WMS_LOADER_METRICS_ADDR", cfg.Metrics.Address)

	if v := os.Getenv("WMS_LOADER_BATCH_SIZE"); v != "" {
		if n, err := util.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = int(n)
		}
	}
	if v := os.Getenv("WMS_LOADER_PUBLISH_ATTEMPTS"); v != "" {
		if n, err := util.Atoi(v); err == nil && n > 0 {
			cfg.Publish.Attempts = int(n)
		}
	}
}

// Validate checks the fields every run depends on.
func (c Config) Validate() error {
	if len(c.Folders) == 0 {
		return fmt.Errorf("config: at least one folder mapping is required")
	}
	for i, f := range c.Folders {
		if f.Path == "" {
			return fmt.Errorf("config: folders[%d] missing path", i)
		}
		if f.Table == "" {
			return fmt.Errorf("config: folders[%d] missing table", i)
		}
	}
	if c.StagingPath == "" {
		return fmt.Errorf("config: staging_path is required")
	}
	if c.FinalPath == "" {
		return fmt.Errorf("config: final_path is required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be positive")
	}
	if c.MaxParams < 1 {
		return fmt.Errorf("config: max_params must be positive")
	}
	if c.Publish.Attempts < 1 {
		return fmt.Errorf("config: publish.attempts must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
