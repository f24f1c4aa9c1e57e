package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortBySeverity(t *testing.T) {
	in := []Severity{SeverityLow, SeverityCritical, SeverityMedium, SeverityHigh}
	got := SortBySeverity(in)
	assert.Equal(t, []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}, got)
	// input untouched
	assert.Equal(t, SeverityLow, in[0])
}

func TestSeverityText(t *testing.T) {
	for _, s := range []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var back Severity
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}
	_, err := ParseSeverity("catastrophic")
	assert.Error(t, err)
}

func TestThresholdClassify(t *testing.T) {
	frame := Threshold{Metric: MetricFrameRate, Critical: 20, High: 40, Medium: 55}
	render := Threshold{Metric: MetricRenderTime, Critical: 50, High: 33.33, Medium: 20}

	tests := []struct {
		name string
		th   Threshold
		v    float64
		want Severity
	}{
		{"frame critical boundary inclusive", frame, 20, SeverityCritical},
		{"frame critical", frame, 15, SeverityCritical},
		{"frame high", frame, 30, SeverityHigh},
		{"frame high boundary", frame, 40, SeverityHigh},
		{"frame medium", frame, 50, SeverityMedium},
		{"frame fine", frame, 70, SeverityNone},
		{"render critical boundary inclusive", render, 50, SeverityCritical},
		{"render high", render, 40, SeverityHigh},
		{"render medium", render, 20, SeverityMedium},
		{"render fine", render, 10, SeverityNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.th.Classify(tt.v))
		})
	}
}

func TestThresholdDirectionInference(t *testing.T) {
	assert.Equal(t, DirectionBelow, Threshold{Critical: 20, High: 40, Medium: 55}.EffectiveDirection())
	assert.Equal(t, DirectionAbove, Threshold{Critical: 50, High: 30, Medium: 20}.EffectiveDirection())
	assert.Equal(t, DirectionAbove, Threshold{Critical: 1, High: 2, Medium: 3, Direction: DirectionAbove}.EffectiveDirection())
}

func TestThresholdValidate(t *testing.T) {
	tests := []struct {
		name    string
		th      Threshold
		wantErr bool
	}{
		{"above ok", Threshold{Metric: "x", Critical: 3, High: 2, Medium: 1}, false},
		{"below ok", Threshold{Metric: "x", Critical: 1, High: 2, Medium: 3}, false},
		{"out of order", Threshold{Metric: "x", Critical: 3, High: 5, Medium: 1}, true},
		{"explicit direction contradicts", Threshold{Metric: "x", Critical: 1, High: 2, Medium: 3, Direction: DirectionAbove}, true},
		{"nan", Threshold{Metric: "x", Critical: math.NaN(), High: 2, Medium: 1}, true},
		{"bad direction", Threshold{Metric: "x", Critical: 3, High: 2, Medium: 1, Direction: "sideways"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewThresholdSet(t *testing.T) {
	set, err := NewThresholdSet(map[string]Threshold{
		"frameRate": {Critical: 20, High: 40, Medium: 55},
	})
	require.NoError(t, err)
	th, ok := set.Get("frameRate")
	require.True(t, ok)
	assert.Equal(t, "frameRate", th.Metric)

	// returned map is a copy
	m := set.Map()
	delete(m, "frameRate")
	assert.Equal(t, 1, set.Len())

	_, err = NewThresholdSet(map[string]Threshold{"a": {Metric: "b", Critical: 3, High: 2, Medium: 1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var nilSet *ThresholdSet
	_, ok = nilSet.Get("frameRate")
	assert.False(t, ok)
	assert.Zero(t, nilSet.Len())
}

func TestNewBaselineSet(t *testing.T) {
	_, err := NewBaselineSet(map[string]Baseline{"frameRate": {Mean: 60, StdDev: -1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	set, err := NewBaselineSet(map[string]Baseline{"frameRate": {Mean: 60, StdDev: 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"frameRate"}, set.Metrics())
}

func TestSigmaJSON(t *testing.T) {
	a := Anomaly{Metric: "frameRate", Severity: SeverityCritical, Deviation: Sigma(math.Inf(1))}
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"deviation_sigma":"+Inf"`)
	assert.Contains(t, string(b), `"severity":"critical"`)

	var back Anomaly
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Deviation.IsInf())

	var s Sigma
	require.NoError(t, json.Unmarshal([]byte("6"), &s))
	assert.Equal(t, Sigma(6), s)
}

func TestSessionSeriesAndMetrics(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s := &Session{
		ID: "s1",
		Samples: []Sample{
			{Timestamp: t0, Metrics: map[string]float64{"a": 1, "b": 2}, Complete: true},
			{Timestamp: t0.Add(time.Second), Metrics: map[string]float64{"a": 3}, Missing: []string{"b"}},
		},
	}
	assert.Equal(t, []string{"a", "b"}, s.Metrics())
	ts, vals := s.Series("b")
	assert.Len(t, ts, 1)
	assert.Equal(t, []float64{2}, vals)
	assert.NoError(t, s.Validate())

	s.Samples[1].Timestamp = t0.Add(-time.Second)
	assert.Error(t, s.Validate())
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  PerformanceLevel
	}{
		{100, LevelExcellent}, {90, LevelExcellent}, {89, LevelGood}, {75, LevelGood},
		{74, LevelFair}, {60, LevelFair}, {59, LevelPoor}, {40, LevelPoor}, {39, LevelCritical}, {0, LevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %d", tt.score)
	}
}

func TestLookupMetric(t *testing.T) {
	assert.Equal(t, TypeFrameRate, LookupMetric(MetricFrameRate).Type)
	unknown := LookupMetric("shaderCompiles")
	assert.Equal(t, TypeComputation, unknown.Type)
	assert.Equal(t, "shaderCompiles", unknown.Name)
}
