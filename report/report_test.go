package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ftahirops/perfdiag/model"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedReporter() *Reporter {
	r := New(DefaultWeights())
	r.now = func() time.Time { return at }
	return r
}

func bottleneck(sev model.Severity) model.Bottleneck {
	return model.Bottleneck{
		Type:            model.TypeFrameRate,
		Metric:          model.MetricFrameRate,
		Severity:        sev,
		Value:           15,
		Threshold:       20,
		OccurrenceCount: 2,
		FirstSeen:       at,
		LastSeen:        at.Add(100 * time.Millisecond),
	}
}

func anomaly(sev model.Severity, z float64) model.Anomaly {
	return model.Anomaly{
		Metric:    model.MetricMemoryUsage,
		Severity:  sev,
		Value:     200 << 20,
		Expected:  50 << 20,
		Deviation: model.Sigma(z),
		Timestamp: at,
		Kind:      model.AnomalySpike,
	}
}

func testSession(n int) *model.Session {
	s := &model.Session{ID: "sess-1", StartTime: at, EndTime: at.Add(time.Duration(n) * 100 * time.Millisecond)}
	for i := 0; i < n; i++ {
		s.Samples = append(s.Samples, model.Sample{
			Timestamp: at.Add(time.Duration(i) * 100 * time.Millisecond),
			Metrics:   map[string]float64{model.MetricFrameRate: 15},
			Complete:  true,
		})
	}
	return s
}

func TestScore(t *testing.T) {
	w := DefaultWeights()
	tests := []struct {
		name        string
		bottlenecks []model.Bottleneck
		anomalies   []model.Anomaly
		want        int
	}{
		{"no findings", nil, nil, 100},
		{"one critical bottleneck", []model.Bottleneck{bottleneck(model.SeverityCritical)}, nil, 80},
		{"mixed", []model.Bottleneck{bottleneck(model.SeverityHigh), bottleneck(model.SeverityMedium)},
			[]model.Anomaly{anomaly(model.SeverityCritical, 5), anomaly(model.SeverityHigh, 3)}, 67},
		{"clamped at zero", []model.Bottleneck{
			bottleneck(model.SeverityCritical), bottleneck(model.SeverityCritical),
			bottleneck(model.SeverityCritical), bottleneck(model.SeverityCritical),
			bottleneck(model.SeverityCritical), bottleneck(model.SeverityCritical),
		}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(w, tt.bottlenecks, tt.anomalies))
		})
	}
}

func TestScoreIsMonotonic(t *testing.T) {
	w := DefaultWeights()
	var bs []model.Bottleneck
	prev := Score(w, bs, nil)
	for i := 0; i < 8; i++ {
		bs = append(bs, bottleneck(model.SeverityHigh))
		cur := Score(w, bs, nil)
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	w := DefaultWeights()
	w.CriticalAnomaly = -5
	assert.ErrorIs(t, w.Validate(), model.ErrInvalidConfig)
}

func TestGenerate(t *testing.T) {
	f := Findings{
		Bottlenecks: []model.Bottleneck{bottleneck(model.SeverityCritical)},
		Anomalies:   []model.Anomaly{anomaly(model.SeverityHigh, 3.5)},
	}
	rep := fixedReporter().Generate(testSession(3), f)

	assert.Equal(t, "sess-1", rep.SessionID)
	assert.Equal(t, at, rep.GeneratedAt)
	assert.Equal(t, 72, rep.Summary.HealthScore)
	assert.Equal(t, model.LevelFair, rep.Summary.PerformanceLevel)
	assert.Equal(t, 1, rep.Summary.CriticalIssues)
	assert.Equal(t, 1, rep.Summary.HighIssues)
	assert.Equal(t, 3, rep.Summary.SampleCount)
	assert.Contains(t, rep.Summary.Text, "72")
	assert.Equal(t, 300*time.Millisecond, rep.TechnicalDetails.Duration)
	assert.NotNil(t, rep.TechnicalDetails.RootCauses)
	assert.NotNil(t, rep.Recommendations)
	assert.Empty(t, rep.Error)
}

func TestGenerateEmptySession(t *testing.T) {
	rep := fixedReporter().Generate(testSession(0), Findings{})
	assert.Equal(t, 100, rep.Summary.HealthScore)
	assert.Equal(t, model.LevelExcellent, rep.Summary.PerformanceLevel)
	assert.Zero(t, rep.Summary.CriticalIssues)
	assert.Empty(t, rep.TechnicalDetails.Bottlenecks)
}

func TestDegraded(t *testing.T) {
	rep := Degraded(testSession(2), errors.New("boom"), at)
	assert.Equal(t, "boom", rep.Error)
	assert.Equal(t, model.LevelUnknown, rep.Summary.PerformanceLevel)
	assert.Equal(t, 2, rep.Summary.SampleCount)
	assert.Equal(t, "sess-1", rep.SessionID)
}

func fullReport() *model.Report {
	f := Findings{
		Summaries: map[string]model.MetricSummary{
			model.MetricFrameRate:   {Metric: model.MetricFrameRate, Min: 15, Max: 70, Mean: 34.3, Count: 3},
			model.MetricMemoryUsage: {Metric: model.MetricMemoryUsage, Min: 50 << 20, Max: 200 << 20, Mean: 100 << 20, Count: 3},
		},
		Quality:     model.DataQuality{Completeness: 1, Consistency: 1, Overall: 1},
		Bottlenecks: []model.Bottleneck{bottleneck(model.SeverityCritical)},
		Anomalies:   []model.Anomaly{anomaly(model.SeverityCritical, 5)},
		RootCauses: []model.RootCause{{
			RelatedIssue: "critical frame_rate bottleneck on frameRate",
			Metric:       model.MetricFrameRate,
			Severity:     model.SeverityCritical,
			Confidence:   0.9,
			CandidateCauses: []model.CandidateCause{
				{Metric: model.MetricMemoryUsage, CorrelationScore: -0.9, Overlap: 3, Rule: "gc pressure"},
			},
			Recommendations: []string{"reduce heap size"},
		}},
		Recommendations: []model.Recommendation{
			{Title: "Optimize frame rate", Priority: model.SeverityHigh, Description: "fix <frames>", Actions: []string{"profile"}},
			{Title: "Investigate memoryUsage anomalies", Priority: model.SeverityMedium},
			{Title: "Continuous performance monitoring", Priority: model.SeverityLow},
			{Title: "Fourth", Priority: model.SeverityLow},
		},
	}
	return fixedReporter().Generate(testSession(3), f)
}

func TestFormatAllFormatsCarryHeadline(t *testing.T) {
	rep := fullReport()
	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			out, err := Format(rep, f)
			require.NoError(t, err)
			assert.Contains(t, out, "65")
			assert.Contains(t, out, string(model.LevelFair))
			assert.Contains(t, out, "frameRate")
		})
	}
}

func TestFormatJSONRoundTrip(t *testing.T) {
	rep := fullReport()
	out, err := Format(rep, FormatJSON)
	require.NoError(t, err)

	var back model.Report
	require.NoError(t, json.Unmarshal([]byte(out), &back))
	assert.Equal(t, rep.Summary, back.Summary)
	assert.Equal(t, rep.TechnicalDetails.Bottlenecks[0].Metric, back.TechnicalDetails.Bottlenecks[0].Metric)
	assert.Equal(t, model.SeverityCritical, back.TechnicalDetails.Anomalies[0].Severity)
}

func TestFormatYAMLUsesJSONKeys(t *testing.T) {
	out, err := Format(fullReport(), FormatYAML)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	summary, ok := doc["summary"].(map[string]interface{})
	require.True(t, ok, "summary section missing:\n%s", out)
	assert.EqualValues(t, 65, summary["health_score"])
	assert.NotContains(t, out, `"summary"`)
}

func TestFormatHTMLEscapes(t *testing.T) {
	out, err := Format(fullReport(), FormatHTML)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<div"))
	assert.Contains(t, out, "fix &lt;frames&gt;")
	assert.NotContains(t, out, "<frames>")
}

func TestFormatDetailLevels(t *testing.T) {
	rep := fullReport()

	rep.DetailLevel = model.DetailBasic
	basic, err := Format(rep, FormatText)
	require.NoError(t, err)
	assert.NotContains(t, basic, "Bottlenecks:")
	assert.NotContains(t, basic, "Fourth")
	assert.Contains(t, basic, "Optimize frame rate")

	rep.DetailLevel = model.DetailStandard
	standard, err := Format(rep, FormatText)
	require.NoError(t, err)
	assert.Contains(t, standard, "Bottlenecks:")
	assert.Contains(t, standard, "Root causes:")
	assert.NotContains(t, standard, "Metrics:")

	rep.DetailLevel = model.DetailComprehensive
	full, err := Format(rep, FormatText)
	require.NoError(t, err)
	assert.Contains(t, full, "Metrics:")
	assert.Contains(t, full, "200 MiB")
	assert.Contains(t, full, "- profile")
}

func TestFormatErrors(t *testing.T) {
	_, err := Format(fullReport(), OutputFormat("pdf"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseFormat("XML")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	f, err := ParseFormat(" Markdown ")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	out, err := Format(nil, FormatText)
	require.NoError(t, err)
	assert.Contains(t, out, "no report")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		metric string
		v      float64
		want   string
	}{
		{model.MetricFrameRate, 59.94, "59.9 fps"},
		{model.MetricRenderTime, 16.666, "16.67 ms"},
		{model.MetricMemoryUsage, 50 << 20, "50 MiB"},
		{model.MetricMemoryGrowth, -(2 << 20), "-2.0 MiB/s"},
		{model.MetricGoroutines, 12345, "12,345"},
		{"custom", 0.5, "0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.metric, tt.v))
		})
	}
}
