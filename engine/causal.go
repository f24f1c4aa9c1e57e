package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/ftahirops/perfdiag/model"
)

// causalRule defines a known cause→effect relationship between metrics.
type causalRule struct {
	from, to, rule string
	weight         float64
}

var causalRules = []causalRule{
	// Memory domain
	{model.MetricMemoryUsage, model.MetricGCPause, "heap size→gc pause", 0.85},
	{model.MetricMemoryGrowth, model.MetricGCPause, "allocation rate→gc pause", 0.8},
	{model.MetricMemoryUsage, model.MetricFrameRate, "gc pressure", 0.8},
	{model.MetricResidentMemory, model.MetricFrameRate, "resident growth→frame drops", 0.6},
	{model.MetricGoroutines, model.MetricGCPause, "goroutine stacks→gc pause", 0.5},

	// Cross-domain: memory → rendering
	{model.MetricGCPause, model.MetricFrameRate, "gc pause→frame drops", 0.9},
	{model.MetricGCPause, model.MetricRenderTime, "gc pause→render stalls", 0.8},
	{model.MetricGCPause, model.MetricInputLag, "gc pause→input lag", 0.6},

	// Rendering domain
	{model.MetricRenderTime, model.MetricFrameRate, "render cost→frame drops", 0.95},
	{model.MetricRenderTime, model.MetricInputLag, "render cost→input lag", 0.7},
	{model.MetricFrameRate, model.MetricInputLag, "frame pacing→input lag", 0.6},
	{model.MetricGoroutines, model.MetricRenderTime, "scheduler contention→render", 0.4},

	// Network domain
	{model.MetricNetworkLatency, model.MetricInputLag, "network latency→input lag", 0.6},
}

// lookupRule returns the rule explaining cause→effect, if any.
func lookupRule(cause, effect string) (causalRule, bool) {
	for _, r := range causalRules {
		if r.from == cause && r.to == effect {
			return r, true
		}
	}
	return causalRule{}, false
}

// Correlator defaults.
const (
	DefaultMinCorrelation = 0.6
	DefaultMinOverlap     = 3
)

// Correlator links each bottleneck to metrics whose series move with it.
type Correlator struct {
	// MinCorrelation is the |r| a metric needs to become a candidate cause.
	MinCorrelation float64
	// MinOverlap is the fewest samples carrying both metrics for a pair to count.
	MinOverlap int
}

// NewCorrelator returns a correlator with default settings.
func NewCorrelator() Correlator {
	return Correlator{MinCorrelation: DefaultMinCorrelation, MinOverlap: DefaultMinOverlap}
}

func (c Correlator) withDefaults() Correlator {
	if c.MinCorrelation <= 0 {
		c.MinCorrelation = DefaultMinCorrelation
	}
	if c.MinOverlap < DefaultMinOverlap {
		c.MinOverlap = DefaultMinOverlap
	}
	return c
}

// Analyze returns one RootCause per bottleneck, in bottleneck order.
// Correlation is computed over the whole session; pairs with too little
// overlap or zero variance are skipped.
func (c Correlator) Analyze(session *model.Session, bottlenecks []model.Bottleneck, anomalies []model.Anomaly) []model.RootCause {
	out := make([]model.RootCause, 0, len(bottlenecks))
	if len(bottlenecks) == 0 {
		return out
	}
	c = c.withDefaults()

	maxCount := 0
	for _, b := range bottlenecks {
		if b.OccurrenceCount > maxCount {
			maxCount = b.OccurrenceCount
		}
	}

	anomalyCounts := countAnomalies(anomalies)
	metrics := session.Metrics()
	cache := make(map[string][]model.CandidateCause)

	for _, b := range bottlenecks {
		cands, ok := cache[b.Metric]
		if !ok {
			cands = c.candidates(session, b.Metric, metrics, anomalyCounts)
			cache[b.Metric] = cands
		}
		rc := model.RootCause{
			RelatedIssue:    fmt.Sprintf("%s %s bottleneck on %s", b.Severity, b.Type, b.Metric),
			Metric:          b.Metric,
			Severity:        b.Severity,
			CandidateCauses: append([]model.CandidateCause(nil), cands...),
		}
		if len(cands) == 0 {
			rc.CandidateCauses = []model.CandidateCause{}
			rc.Recommendations = fallbackAdvice(b)
		} else {
			norm := 0.0
			if maxCount > 0 {
				norm = float64(b.OccurrenceCount) / float64(maxCount)
			}
			rc.Confidence = math.Min(1, math.Abs(cands[0].CorrelationScore)*norm)
			rc.Recommendations = causeAdvice(cands)
		}
		out = append(out, rc)
	}
	return out
}

func (c Correlator) candidates(session *model.Session, target string, metrics []string, anomalyCounts map[string]int) []model.CandidateCause {
	var cands []model.CandidateCause
	weights := make(map[string]float64)
	for _, other := range metrics {
		if other == target {
			continue
		}
		xs, ys := overlap(session, target, other)
		if len(xs) < c.MinOverlap {
			continue
		}
		r, ok := Pearson(xs, ys)
		if !ok || math.Abs(r) < c.MinCorrelation {
			continue
		}
		cand := model.CandidateCause{
			Metric:           other,
			CorrelationScore: r,
			Overlap:          len(xs),
			AnomalyCount:     anomalyCounts[other],
		}
		if rule, ok := lookupRule(other, target); ok {
			cand.Rule = rule.rule
			weights[other] = rule.weight
		}
		cands = append(cands, cand)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		ai, aj := math.Abs(cands[i].CorrelationScore), math.Abs(cands[j].CorrelationScore)
		if ai != aj {
			return ai > aj
		}
		if weights[cands[i].Metric] != weights[cands[j].Metric] {
			return weights[cands[i].Metric] > weights[cands[j].Metric]
		}
		return cands[i].Metric < cands[j].Metric
	})
	return cands
}

// overlap returns the paired values of samples that carry both metrics.
func overlap(session *model.Session, a, b string) (xs, ys []float64) {
	for _, smp := range session.Samples {
		va, okA := smp.Value(a)
		vb, okB := smp.Value(b)
		if okA && okB {
			xs = append(xs, va)
			ys = append(ys, vb)
		}
	}
	return xs, ys
}
