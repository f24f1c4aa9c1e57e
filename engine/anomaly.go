package engine

import (
	"math"
	"sort"

	"github.com/ftahirops/perfdiag/model"
)

// Z-score tiers for anomaly severity.
const (
	zCritical = 4.0
	zHigh     = 3.0
	zMedium   = 2.0
)

// DetectAnomalies scores every sample against its metric's baseline and
// emits one record per sample whose z-score reaches the medium tier.
// A baseline with zero spread flags any differing value as critical.
func DetectAnomalies(session *model.Session, baselines *model.BaselineSet) []model.Anomaly {
	out := []model.Anomaly{}
	if session.Len() == 0 || baselines.Len() == 0 {
		return out
	}
	metrics := baselines.Metrics()
	for _, smp := range session.Samples {
		for _, metric := range metrics {
			v, ok := smp.Value(metric)
			if !ok {
				continue
			}
			b, _ := baselines.Get(metric)
			z, sev := zScore(v, b)
			if sev == model.SeverityNone {
				continue
			}
			kind := model.AnomalySpike
			if v < b.Mean {
				kind = model.AnomalyDrop
			}
			out = append(out, model.Anomaly{
				Metric:    metric,
				Severity:  sev,
				Value:     v,
				Expected:  b.Mean,
				Deviation: model.Sigma(z),
				Timestamp: smp.Timestamp,
				Kind:      kind,
			})
		}
	}
	sortAnomalies(out)
	return out
}

// zScore returns |v-mean|/stddev and its severity tier.
func zScore(v float64, b model.Baseline) (float64, model.Severity) {
	diff := math.Abs(v - b.Mean)
	if b.StdDev == 0 {
		if diff == 0 {
			return 0, model.SeverityNone
		}
		return math.Inf(1), model.SeverityCritical
	}
	z := diff / b.StdDev
	switch {
	case z >= zCritical:
		return z, model.SeverityCritical
	case z >= zHigh:
		return z, model.SeverityHigh
	case z >= zMedium:
		return z, model.SeverityMedium
	}
	return z, model.SeverityNone
}

func sortAnomalies(as []model.Anomaly) {
	sort.SliceStable(as, func(i, j int) bool {
		a, b := as[i], as[j]
		if a.Severity != b.Severity {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Metric < b.Metric
	})
}

// countAnomalies tallies anomalies per metric.
func countAnomalies(as []model.Anomaly) map[string]int {
	out := make(map[string]int)
	for _, a := range as {
		out[a.Metric]++
	}
	return out
}
