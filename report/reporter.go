package report

import (
	"fmt"
	"time"

	"github.com/ftahirops/perfdiag/model"
)

// ScoringWeights are the health-score penalties per finding.
type ScoringWeights struct {
	CriticalBottleneck int `json:"critical_bottleneck" yaml:"critical_bottleneck" mapstructure:"critical_bottleneck"`
	HighBottleneck     int `json:"high_bottleneck" yaml:"high_bottleneck" mapstructure:"high_bottleneck"`
	CriticalAnomaly    int `json:"critical_anomaly" yaml:"critical_anomaly" mapstructure:"critical_anomaly"`
	HighAnomaly        int `json:"high_anomaly" yaml:"high_anomaly" mapstructure:"high_anomaly"`
}

// DefaultWeights returns the standard linear penalties.
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		CriticalBottleneck: 20,
		HighBottleneck:     10,
		CriticalAnomaly:    15,
		HighAnomaly:        8,
	}
}

// Validate rejects negative penalties, which would let findings raise the score.
func (w ScoringWeights) Validate() error {
	for name, v := range map[string]int{
		"critical_bottleneck": w.CriticalBottleneck,
		"high_bottleneck":     w.HighBottleneck,
		"critical_anomaly":    w.CriticalAnomaly,
		"high_anomaly":        w.HighAnomaly,
	} {
		if v < 0 {
			return fmt.Errorf("%w: scoring weight %s must not be negative", model.ErrInvalidConfig, name)
		}
	}
	return nil
}

// Findings is the output of every analysis stage for one session.
// Disabled stages leave their field empty.
type Findings struct {
	Summaries       map[string]model.MetricSummary `json:"summaries"`
	Quality         model.DataQuality              `json:"quality"`
	Bottlenecks     []model.Bottleneck             `json:"bottlenecks"`
	Anomalies       []model.Anomaly                `json:"anomalies"`
	RootCauses      []model.RootCause              `json:"root_causes"`
	Recommendations []model.Recommendation         `json:"recommendations"`
}

// Score computes the clamped 0..100 health score.
func Score(w ScoringWeights, bottlenecks []model.Bottleneck, anomalies []model.Anomaly) int {
	score := 100
	for _, b := range bottlenecks {
		switch b.Severity {
		case model.SeverityCritical:
			score -= w.CriticalBottleneck
		case model.SeverityHigh:
			score -= w.HighBottleneck
		}
	}
	for _, a := range anomalies {
		switch a.Severity {
		case model.SeverityCritical:
			score -= w.CriticalAnomaly
		case model.SeverityHigh:
			score -= w.HighAnomaly
		}
	}
	return max(0, min(100, score))
}

// Reporter assembles findings into a Report.
type Reporter struct {
	Weights ScoringWeights
	now     func() time.Time
}

// New creates a reporter with the given weights.
func New(w ScoringWeights) *Reporter {
	return &Reporter{Weights: w, now: time.Now}
}

func (r *Reporter) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

// Generate builds the report. It never panics: an internal failure yields
// a degraded report with Error set.
func (r *Reporter) Generate(session *model.Session, f Findings) (rep *model.Report) {
	defer func() {
		if rec := recover(); rec != nil {
			rep = Degraded(session, fmt.Errorf("generate report: %v", rec), r.clock())
		}
	}()

	score := Score(r.Weights, f.Bottlenecks, f.Anomalies)
	level := model.LevelForScore(score)

	sum := model.Summary{
		HealthScore:      score,
		PerformanceLevel: level,
		BottleneckCount:  len(f.Bottlenecks),
		AnomalyCount:     len(f.Anomalies),
		SampleCount:      session.Len(),
	}
	for _, b := range f.Bottlenecks {
		tally(&sum, b.Severity)
	}
	for _, a := range f.Anomalies {
		tally(&sum, a.Severity)
	}
	sum.Text = summaryText(level, score, sum.CriticalIssues)

	rep = &model.Report{
		GeneratedAt: r.clock(),
		Summary:     sum,
		TechnicalDetails: model.TechnicalDetails{
			MetricSummaries: nonNilMap(f.Summaries),
			DataQuality:     f.Quality,
			Bottlenecks:     nonNil(f.Bottlenecks),
			Anomalies:       nonNil(f.Anomalies),
			RootCauses:      nonNil(f.RootCauses),
		},
		Recommendations: nonNil(f.Recommendations),
	}
	if session != nil {
		rep.SessionID = session.ID
		rep.TechnicalDetails.Duration = session.Duration()
		rep.TechnicalDetails.Canceled = session.Canceled
	}
	return rep
}

func tally(s *model.Summary, sev model.Severity) {
	switch sev {
	case model.SeverityCritical:
		s.CriticalIssues++
	case model.SeverityHigh:
		s.HighIssues++
	}
}

func summaryText(level model.PerformanceLevel, score, critical int) string {
	switch level {
	case model.LevelExcellent:
		return fmt.Sprintf("System is in excellent condition (score: %d). No major issues detected.", score)
	case model.LevelGood:
		return fmt.Sprintf("System is in good condition (score: %d). There is minor room for improvement.", score)
	case model.LevelFair:
		return fmt.Sprintf("System is in fair condition (score: %d). %d critical issue(s) detected.", score, critical)
	case model.LevelPoor:
		return fmt.Sprintf("System has performance problems (score: %d). %d critical issue(s) need attention.", score, critical)
	}
	return fmt.Sprintf("System is in a critical state (score: %d). %d critical issue(s) need urgent attention.", score, critical)
}

// Degraded returns the minimal report used when generation fails.
func Degraded(session *model.Session, err error, at time.Time) *model.Report {
	rep := &model.Report{
		GeneratedAt: at,
		Summary: model.Summary{
			PerformanceLevel: model.LevelUnknown,
			SampleCount:      session.Len(),
			Text:             "Diagnostic report unavailable.",
		},
		TechnicalDetails: model.TechnicalDetails{
			MetricSummaries: map[string]model.MetricSummary{},
			Bottlenecks:     []model.Bottleneck{},
			Anomalies:       []model.Anomaly{},
			RootCauses:      []model.RootCause{},
		},
		Recommendations: []model.Recommendation{},
		Error:           err.Error(),
	}
	if session != nil {
		rep.SessionID = session.ID
	}
	return rep
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
