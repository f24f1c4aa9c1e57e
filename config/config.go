package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ftahirops/perfdiag/engine"
	"github.com/ftahirops/perfdiag/model"
	"github.com/ftahirops/perfdiag/report"
)

// EnvPrefix prefixes every environment override, e.g. PERFDIAG_INTERVAL.
const EnvPrefix = "PERFDIAG"

// Config holds user-configurable defaults and integrations.
type Config struct {
	Interval       time.Duration         `mapstructure:"interval" yaml:"interval"`
	Duration       time.Duration         `mapstructure:"duration" yaml:"duration"`
	LogLevel       string                `mapstructure:"log_level" yaml:"log_level"`
	Format         string                `mapstructure:"format" yaml:"format"`
	DetailLevel    string                `mapstructure:"detail_level" yaml:"detail_level"`
	MinCorrelation float64               `mapstructure:"min_correlation" yaml:"min_correlation"`
	HistorySize    int                   `mapstructure:"history_size" yaml:"history_size"`
	Scoring        report.ScoringWeights `mapstructure:"scoring" yaml:"scoring"`
	// Thresholds and Baselines are lists so metric names keep their case.
	Thresholds   []model.Threshold `mapstructure:"thresholds" yaml:"thresholds"`
	Baselines    []model.Baseline  `mapstructure:"baselines" yaml:"baselines"`
	Storage      StorageConfig     `mapstructure:"storage" yaml:"storage"`
	MetricsAddr  string            `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	TelemetryURL string            `mapstructure:"telemetry_url" yaml:"telemetry_url"`
}

// StorageConfig selects the report store. An empty driver disables it.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

const mib = 1 << 20

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		Interval:       engine.DefaultInterval,
		Duration:       engine.DefaultDuration,
		LogLevel:       "info",
		Format:         string(report.FormatText),
		DetailLevel:    string(model.DetailComprehensive),
		MinCorrelation: engine.DefaultMinCorrelation,
		HistorySize:    engine.DefaultHistorySize,
		Scoring:        report.DefaultWeights(),
		Thresholds:     DefaultThresholds(),
		Baselines:      DefaultBaselines(),
	}
}

// DefaultThresholds are the stock frame rate, memory growth and render
// time tiers.
func DefaultThresholds() []model.Threshold {
	return []model.Threshold{
		{Metric: model.MetricFrameRate, Critical: 20, High: 40, Medium: 55, Direction: model.DirectionBelow},
		{Metric: model.MetricMemoryGrowth, Critical: 5 * mib, High: 2 * mib, Medium: 1 * mib, Direction: model.DirectionAbove},
		{Metric: model.MetricRenderTime, Critical: 50, High: 33.33, Medium: 20, Direction: model.DirectionAbove},
	}
}

// DefaultBaselines describe a healthy 60 fps session.
func DefaultBaselines() []model.Baseline {
	return []model.Baseline{
		{Metric: model.MetricFrameRate, Mean: 60, StdDev: 5},
		{Metric: model.MetricMemoryUsage, Mean: 50 * mib, StdDev: 10 * mib},
		{Metric: model.MetricRenderTime, Mean: 12, StdDev: 3},
		{Metric: model.MetricNetworkLatency, Mean: 50, StdDev: 20},
		{Metric: model.MetricInputLag, Mean: 15, StdDev: 5},
	}
}

// Path returns ~/.config/perfdiag/config.yaml (or XDG_CONFIG_HOME).
// Returns empty string if home directory cannot be determined.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "perfdiag", "config.yaml")
}

// Load reads configuration from (in decreasing priority):
//  1. environment variables (PERFDIAG_INTERVAL, PERFDIAG_STORAGE_DSN, ...)
//  2. the YAML or JSON file at path, or Path() when path is empty
//  3. Default()
//
// A missing file is only an error when path was given explicitly.
func Load(path string) (Config, error) {
	def := Default()
	v := viper.New()

	v.SetDefault("interval", def.Interval)
	v.SetDefault("duration", def.Duration)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("format", def.Format)
	v.SetDefault("detail_level", def.DetailLevel)
	v.SetDefault("min_correlation", def.MinCorrelation)
	v.SetDefault("history_size", def.HistorySize)
	v.SetDefault("scoring.critical_bottleneck", def.Scoring.CriticalBottleneck)
	v.SetDefault("scoring.high_bottleneck", def.Scoring.HighBottleneck)
	v.SetDefault("scoring.critical_anomaly", def.Scoring.CriticalAnomaly)
	v.SetDefault("scoring.high_anomaly", def.Scoring.HighAnomaly)
	v.SetDefault("storage.driver", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("telemetry_url", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = Path()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			switch {
			case explicit:
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			default:
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("cannot decode config: %w", err)
	}
	if !v.IsSet("thresholds") {
		cfg.Thresholds = def.Thresholds
	}
	if !v.IsSet("baselines") {
		cfg.Baselines = def.Baselines
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field; the returned error wraps model.ErrInvalidConfig.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", model.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.Interval <= 0 {
		return invalid("interval must be positive, got %s", c.Interval)
	}
	if c.Duration <= 0 {
		return invalid("duration must be positive, got %s", c.Duration)
	}
	if c.Interval > c.Duration {
		return invalid("interval %s exceeds duration %s", c.Interval, c.Duration)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level: %v", err)
	}
	if _, err := report.ParseFormat(c.Format); err != nil {
		return invalid("format: %v", err)
	}
	if _, err := model.ParseDetailLevel(c.DetailLevel); err != nil {
		return invalid("detail_level: %v", err)
	}
	if c.MinCorrelation < 0 || c.MinCorrelation > 1 {
		return invalid("min_correlation %v outside [0,1]", c.MinCorrelation)
	}
	if c.HistorySize < 0 {
		return invalid("history_size must not be negative")
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if _, err := c.ThresholdMap(); err != nil {
		return err
	}
	if _, err := c.BaselineMap(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "", "sqlite", "postgres":
	default:
		return invalid("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver != "" && c.Storage.DSN == "" {
		return invalid("storage.dsn is required for driver %s", c.Storage.Driver)
	}
	return nil
}

// ThresholdMap keys the threshold list by metric, rejecting duplicates
// and invalid tiers.
func (c Config) ThresholdMap() (map[string]model.Threshold, error) {
	out := make(map[string]model.Threshold, len(c.Thresholds))
	for _, t := range c.Thresholds {
		if _, dup := out[t.Metric]; dup {
			return nil, fmt.Errorf("%w: duplicate threshold for %q", model.ErrInvalidConfig, t.Metric)
		}
		out[t.Metric] = t
	}
	if _, err := model.NewThresholdSet(out); err != nil {
		return nil, err
	}
	return out, nil
}

// BaselineMap keys the baseline list by metric, rejecting duplicates and
// invalid values.
func (c Config) BaselineMap() (map[string]model.Baseline, error) {
	out := make(map[string]model.Baseline, len(c.Baselines))
	for _, b := range c.Baselines {
		if _, dup := out[b.Metric]; dup {
			return nil, fmt.Errorf("%w: duplicate baseline for %q", model.ErrInvalidConfig, b.Metric)
		}
		out[b.Metric] = b
	}
	if _, err := model.NewBaselineSet(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Settings converts the config into engine settings.
func (c Config) Settings() (engine.Settings, error) {
	ts, err := c.ThresholdMap()
	if err != nil {
		return engine.Settings{}, err
	}
	bs, err := c.BaselineMap()
	if err != nil {
		return engine.Settings{}, err
	}
	corr := engine.NewCorrelator()
	if c.MinCorrelation > 0 {
		corr.MinCorrelation = c.MinCorrelation
	}
	return engine.Settings{
		Thresholds:  ts,
		Baselines:   bs,
		Correlator:  corr,
		Weights:     c.Scoring,
		HistorySize: c.HistorySize,
	}, nil
}

// Options returns engine run options for the configured duration,
// interval and detail level, with every stage enabled.
func (c Config) Options() engine.Options {
	opts := engine.DefaultOptions()
	opts.Duration = c.Duration
	opts.Interval = c.Interval
	if lvl, err := model.ParseDetailLevel(c.DetailLevel); err == nil {
		opts.DetailLevel = lvl
	}
	return opts
}

// Save writes cfg as YAML to path, or Path() when path is empty.
func Save(path string, cfg Config) error {
	if path == "" {
		path = Path()
	}
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
