// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/flowanalyzer/internal/core"
)

const (
	// FilterEnv is the environment variable holding the capture filter expression.
	FilterEnv = "FLOWANALYZER_FILTER"
	// DefaultFilter applies when FilterEnv is unset or empty.
	DefaultFilter = "http"
)

// Filter is the capture filter expression handed opaquely to the engine.
// It is resolved once at start and never mutated.
type Filter struct {
	expr string
}

// NewFilter resolves expr, falling back to DefaultFilter when it is blank.
func NewFilter(expr string) Filter {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = DefaultFilter
	}
	return Filter{expr: expr}
}

func (f Filter) String() string {
	if f.expr == "" {
		return DefaultFilter
	}
	return f.expr
}

// IsDefault reports whether the filter is the built-in "http" selection.
func (f Filter) IsDefault() bool {
	return f.String() == DefaultFilter
}

// Config represents the top-level configuration.
// Maps to the `flowanalyzer:` root key in YAML.
type Config struct {
	Filter    Filter           `mapstructure:"-" yaml:"-"`
	Log       LogConfig        `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Source    SourceConfig     `mapstructure:"source" yaml:"source"`
	Reporters []ReporterConfig `mapstructure:"reporters" yaml:"reporters"`
	Store     StoreConfig      `mapstructure:"store" yaml:"store"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stderr.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Engine ───

// SourceConfig selects and configures the capture engine.
type SourceConfig struct {
	Type   string       `mapstructure:"type" yaml:"type"` // tshark | pcap
	Tshark TsharkConfig `mapstructure:"tshark" yaml:"tshark"`
	Pcap   PcapConfig   `mapstructure:"pcap" yaml:"pcap"`
}

// TsharkConfig configures the tshark engine.
type TsharkConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // empty = search PATH
}

// PcapConfig configures the native gopacket engine.
type PcapConfig struct {
	BPF     string        `mapstructure:"bpf" yaml:"bpf"`
	PairTTL time.Duration `mapstructure:"pair_ttl" yaml:"pair_ttl"`
}

// ─── Reporters ───

// ReporterConfig names a reporter plugin and its raw config block.
type ReporterConfig struct {
	Name   string         `mapstructure:"name" yaml:"name"`
	Config map[string]any `mapstructure:"config" yaml:"config,omitempty"`
}

// ─── Store ───

// StoreConfig configures the SQLite record store.
type StoreConfig struct {
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `flowanalyzer: ...`.
type configRoot struct {
	FlowAnalyzer Config `mapstructure:"flowanalyzer"`
}

// Load loads configuration. path may be empty, in which case only defaults
// and environment variables apply. Keys map to FLOWANALYZER_* variables,
// e.g. flowanalyzer.log.level -> FLOWANALYZER_LOG_LEVEL.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("flowanalyzer.filter", FilterEnv); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", FilterEnv, err)
	}

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.FlowAnalyzer
	cfg.Filter = NewFilter(v.GetString("flowanalyzer.filter"))

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values with the "flowanalyzer." prefix.
func setDefaults(v *viper.Viper) {
	v.SetDefault("flowanalyzer.log.level", "info")
	v.SetDefault("flowanalyzer.log.format", "text")
	v.SetDefault("flowanalyzer.log.outputs.file.enabled", false)
	v.SetDefault("flowanalyzer.log.outputs.file.path", "flowanalyzer.log")
	v.SetDefault("flowanalyzer.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("flowanalyzer.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("flowanalyzer.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("flowanalyzer.log.outputs.file.rotation.compress", true)

	v.SetDefault("flowanalyzer.metrics.enabled", false)
	v.SetDefault("flowanalyzer.metrics.listen", ":9091")
	v.SetDefault("flowanalyzer.metrics.path", "/metrics")

	v.SetDefault("flowanalyzer.source.type", "tshark")
	v.SetDefault("flowanalyzer.source.pcap.pair_ttl", "5m")

	v.SetDefault("flowanalyzer.store.batch_size", 5000)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %q (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: log format %q (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	switch cfg.Source.Type {
	case "tshark", "pcap":
	default:
		return fmt.Errorf("%w: source.type %q (must be tshark/pcap)", core.ErrConfigInvalid, cfg.Source.Type)
	}
	if cfg.Source.Pcap.PairTTL <= 0 {
		cfg.Source.Pcap.PairTTL = 5 * time.Minute
	}

	if len(cfg.Reporters) == 0 {
		cfg.Reporters = []ReporterConfig{{Name: "console"}}
	}
	for i, r := range cfg.Reporters {
		if r.Name == "" {
			return fmt.Errorf("%w: reporters[%d].name is required", core.ErrConfigInvalid, i)
		}
	}

	if cfg.Store.BatchSize <= 0 {
		cfg.Store.BatchSize = 5000
	}
	if cfg.Filter.expr == "" {
		cfg.Filter = NewFilter("")
	}
	return nil
}
