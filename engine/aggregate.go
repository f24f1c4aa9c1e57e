package engine

import (
	"math"

	"github.com/ftahirops/perfdiag/model"
)

// Summarize computes min/max/mean/stddev for every metric present in at
// least one sample. Samples missing a metric do not count towards it.
func Summarize(session *model.Session) map[string]model.MetricSummary {
	out := make(map[string]model.MetricSummary)
	for _, name := range session.Metrics() {
		_, vals := session.Series(name)
		if len(vals) == 0 {
			continue
		}
		s := model.MetricSummary{
			Metric: name,
			Min:    math.Inf(1),
			Max:    math.Inf(-1),
			Mean:   Mean(vals),
			StdDev: StdDev(vals),
			Count:  len(vals),
		}
		for _, v := range vals {
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		out[name] = s
	}
	return out
}

// LearnBaselines turns a healthy session into per-metric baselines.
// Metrics with a single sample get zero spread.
func LearnBaselines(session *model.Session) map[string]model.Baseline {
	out := make(map[string]model.Baseline)
	for name, s := range Summarize(session) {
		out[name] = model.Baseline{Metric: name, Mean: s.Mean, StdDev: s.StdDev}
	}
	return out
}
