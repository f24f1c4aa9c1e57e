package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/perfdiag/model"
)

func TestRecorderPlayerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	s1 := sessionOf(frames(60, 61)...)
	s1.ID = "one"
	s2 := sessionOf(frames(15, 18, 70)...)
	s2.ID = "two"

	d := newTestDiagnostics(t, nil)
	require.NoError(t, rec.Record(s1, d.Analyze(s1, DefaultOptions()).Report))
	require.NoError(t, rec.Record(s2, nil))
	require.Error(t, rec.Record(nil, nil))

	player, err := NewPlayer(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 2, player.Len())

	sess, rep, ok := player.Next()
	require.True(t, ok)
	assert.Equal(t, "one", sess.ID)
	require.NotNil(t, rep)
	assert.Equal(t, "one", rep.SessionID)
	assert.Len(t, sess.Samples, 2)
	assert.True(t, sess.Samples[0].Timestamp.Equal(t0))

	sess, rep, ok = player.Next()
	require.True(t, ok)
	assert.Equal(t, "two", sess.ID)
	assert.Nil(t, rep)

	_, _, ok = player.Next()
	assert.False(t, ok)
}

func TestPlayerSkipsMalformedLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRecorder(&buf).Record(sessionOf(frames(15, 18, 70)...), nil))
	input := "not json\n\n{\"report\":{}}\n" + buf.String()

	player, err := NewPlayer(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, player.Len())
	assert.Equal(t, 2, player.Skipped())
}

func TestPlayerReplay(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	require.NoError(t, rec.Record(sessionOf(frames(60, 60, 60)...), nil))
	require.NoError(t, rec.Record(sessionOf(frames(15, 18, 70)...), nil))

	player, err := NewPlayer(&buf)
	require.NoError(t, err)

	d := newTestDiagnostics(t, nil)
	results := player.Replay(d, DefaultOptions())
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Report.TechnicalDetails.Bottlenecks)
	require.Len(t, results[1].Report.TechnicalDetails.Bottlenecks, 1)
	assert.Equal(t, 2, results[1].Report.TechnicalDetails.Bottlenecks[0].OccurrenceCount)
	require.NotNil(t, results[1].Comparison)
	assert.Equal(t, []string{model.MetricFrameRate}, results[1].Comparison.NewBottlenecks)
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(2)
	assert.Nil(t, h.Latest())
	_, ok := h.CompareLatest()
	assert.False(t, ok)

	for _, score := range []int{90, 70, 40} {
		h.Push(&model.Report{Summary: model.Summary{HealthScore: score}})
	}
	h.Push(nil)

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 70, h.Get(0).Summary.HealthScore)
	assert.Equal(t, 40, h.Latest().Summary.HealthScore)
	assert.Equal(t, 70, h.Previous().Summary.HealthScore)
	assert.Nil(t, h.Get(2))

	c, ok := h.CompareLatest()
	require.True(t, ok)
	assert.Equal(t, -30, c.ScoreDelta)
}

func TestCompareBottleneckSets(t *testing.T) {
	withBottlenecks := func(level model.PerformanceLevel, metrics ...string) *model.Report {
		r := &model.Report{Summary: model.Summary{PerformanceLevel: level}}
		for _, m := range metrics {
			r.TechnicalDetails.Bottlenecks = append(r.TechnicalDetails.Bottlenecks, model.Bottleneck{Metric: m})
		}
		return r
	}
	prev := withBottlenecks(model.LevelFair, model.MetricFrameRate, model.MetricRenderTime)
	curr := withBottlenecks(model.LevelPoor, model.MetricRenderTime, model.MetricMemoryGrowth)

	c := Compare(prev, curr)
	assert.True(t, c.LevelChanged)
	assert.Equal(t, []string{model.MetricMemoryGrowth}, c.NewBottlenecks)
	assert.Equal(t, []string{model.MetricFrameRate}, c.ResolvedBottlenecks)

	assert.Equal(t, Comparison{}, Compare(nil, curr))
}

func TestMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	d := newTestDiagnostics(t, nil, WithMetrics(m))
	res := d.Analyze(sessionOf(frames(15, 18, 70)...), DefaultOptions())

	assert.Equal(t, float64(res.Report.Summary.HealthScore), gaugeValue(t, reg, "perfdiag_health_score"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var critical float64
	for _, mf := range families {
		if mf.GetName() != "perfdiag_bottlenecks" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "severity" && lp.GetValue() == "critical" {
					critical = metric.GetGauge().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, critical)

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.observeSample()
		nilMetrics.observeFailure("x")
		nilMetrics.observeRun(nil, nil)
	})
}
