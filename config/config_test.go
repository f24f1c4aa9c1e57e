package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/perfdiag/model"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	ts, err := cfg.ThresholdMap()
	require.NoError(t, err)
	fr := ts[model.MetricFrameRate]
	assert.Equal(t, model.SeverityCritical, fr.Classify(15))
	assert.Equal(t, model.SeverityNone, fr.Classify(60))
	assert.Equal(t, model.SeverityHigh, ts[model.MetricMemoryGrowth].Classify(3*mib))

	bs, err := cfg.BaselineMap()
	require.NoError(t, err)
	assert.Len(t, bs, 5)
}

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFileAndEnv(t *testing.T) {
	p := writeFile(t, "perfdiag.yaml", `
interval: 250ms
duration: 10s
format: json
scoring:
  critical_bottleneck: 30
thresholds:
  - metric: frameRate
    critical: 25
    high: 45
    medium: 58
  - metric: customLatency
    critical: 500
    high: 200
    medium: 100
storage:
  driver: sqlite
  dsn: /tmp/perfdiag.db
`)
	t.Setenv("PERFDIAG_LOG_LEVEL", "debug")
	t.Setenv("PERFDIAG_MIN_CORRELATION", "0.8")
	t.Setenv("PERFDIAG_STORAGE_DSN", "/var/lib/perfdiag.db")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.Duration)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.8, cfg.MinCorrelation)
	assert.Equal(t, 30, cfg.Scoring.CriticalBottleneck)
	assert.Equal(t, 10, cfg.Scoring.HighBottleneck)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/perfdiag.db", cfg.Storage.DSN)

	ts, err := cfg.ThresholdMap()
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Contains(t, ts, "customLatency")
	assert.Equal(t, 25.0, ts[model.MetricFrameRate].Critical)
	assert.Equal(t, DefaultBaselines(), cfg.Baselines)

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, 0.8, s.Correlator.MinCorrelation)
	assert.Equal(t, 30, s.Weights.CriticalBottleneck)

	opts := cfg.Options()
	assert.Equal(t, 250*time.Millisecond, opts.Interval)
	assert.Equal(t, model.DetailComprehensive, opts.DetailLevel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"interval above duration", "interval: 1m\nduration: 1s\n"},
		{"bad format", "format: pdf\n"},
		{"bad level", "log_level: loud\n"},
		{"bad detail", "detail_level: verbose\n"},
		{"inverted threshold", "thresholds:\n  - metric: frameRate\n    critical: 60\n    high: 40\n    medium: 20\n    direction: below\n"},
		{"duplicate baseline", "baselines:\n  - metric: a\n    mean: 1\n  - metric: a\n    mean: 2\n"},
		{"negative weight", "scoring:\n  high_anomaly: -1\n"},
		{"storage without dsn", "storage:\n  driver: postgres\n"},
		{"unknown driver", "storage:\n  driver: mysql\n  dsn: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.body))
			assert.ErrorIs(t, err, model.ErrInvalidConfig)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Interval = 50 * time.Millisecond
	cfg.Baselines = []model.Baseline{{Metric: model.MetricFrameRate, Mean: 59.5, StdDev: 1.25}}
	p := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, Save(p, cfg))
	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
