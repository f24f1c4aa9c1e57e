package engine

import (
	"fmt"
	"sort"

	"github.com/ftahirops/perfdiag/model"
)

// typeRecommendations maps a bottleneck type to its remediation.
var typeRecommendations = map[string]model.Recommendation{
	model.TypeFrameRate: {
		Type:        "optimization",
		Priority:    model.SeverityHigh,
		Category:    "rendering",
		Title:       "Optimize frame rate",
		Description: "Improve frame rate by reducing work in the rendering pipeline",
		Actions: []string{
			"Review adaptive quality settings",
			"Reduce per-frame rendering load",
			"Adjust frame pacing",
			"Tune vsync configuration",
		},
		EstimatedImpact:      "high",
		ImplementationEffort: "medium",
		TimeToImplement:      "1-3 days",
	},
	model.TypeMemory: {
		Type:        "memory",
		Priority:    model.SeverityHigh,
		Category:    "memory_management",
		Title:       "Reduce memory usage",
		Description: "Improve stability through better memory management",
		Actions: []string{
			"Review memory manager limits",
			"Make object pools more effective",
			"Fix memory leaks",
			"Tune garbage collection (GOGC, GOMEMLIMIT)",
		},
		EstimatedImpact:      "high",
		ImplementationEffort: "medium",
		TimeToImplement:      "2-5 days",
	},
	model.TypeRendering: {
		Type:        "rendering",
		Priority:    model.SeverityMedium,
		Category:    "rendering_optimization",
		Title:       "Improve rendering efficiency",
		Description: "Cut the cost of each rendered frame",
		Actions: []string{
			"Track dirty regions more precisely",
			"Batch draw calls",
			"Flatten layer composition",
			"Optimize shaders",
		},
		EstimatedImpact:      "medium",
		ImplementationEffort: "medium",
		TimeToImplement:      "3-7 days",
	},
	model.TypeNetwork: {
		Type:        "network",
		Priority:    model.SeverityMedium,
		Category:    "network_optimization",
		Title:       "Reduce network latency impact",
		Description: "Keep gameplay responsive when round trips are slow",
		Actions: []string{
			"Add client-side prediction",
			"Batch or compress network messages",
			"Check connection reuse and keepalive settings",
		},
		EstimatedImpact:      "medium",
		ImplementationEffort: "high",
		TimeToImplement:      "3-7 days",
	},
	model.TypeInteraction: {
		Type:        "interaction",
		Priority:    model.SeverityMedium,
		Category:    "input_responsiveness",
		Title:       "Improve input responsiveness",
		Description: "Shorten the path from input event to presented frame",
		Actions: []string{
			"Process input before simulation each frame",
			"Avoid blocking work on the input path",
		},
		EstimatedImpact:      "medium",
		ImplementationEffort: "medium",
		TimeToImplement:      "1-3 days",
	},
	model.TypeComputation: {
		Type:        "optimization",
		Priority:    model.SeverityMedium,
		Category:    "runtime",
		Title:       "Reduce runtime overhead",
		Description: "Lower scheduler and CPU pressure in the game process",
		Actions: []string{
			"Profile CPU with pprof",
			"Bound worker goroutine counts",
		},
		EstimatedImpact:      "medium",
		ImplementationEffort: "medium",
		TimeToImplement:      "1-3 days",
	},
}

var monitoringRecommendation = model.Recommendation{
	Type:        "monitoring",
	Priority:    model.SeverityLow,
	Category:    "continuous_improvement",
	Title:       "Continuous performance monitoring",
	Description: "Run diagnostics regularly to catch regressions early",
	Actions: []string{
		"Schedule periodic diagnostic runs",
		"Review alert thresholds periodically",
		"Analyse performance trends",
		"Refresh baselines from healthy sessions",
	},
	EstimatedImpact:      "low",
	ImplementationEffort: "low",
	TimeToImplement:      "1 day",
}

func anomalyRecommendation(metric string) model.Recommendation {
	return model.Recommendation{
		Type:        "investigation",
		Priority:    model.SeverityMedium,
		Category:    "anomaly_resolution",
		Title:       fmt.Sprintf("Investigate %s anomalies", metric),
		Description: fmt.Sprintf("Find the cause of abnormal %s readings", metric),
		Actions: []string{
			"Analyse when the anomalies occur",
			"Check correlated systems",
			"Review threshold settings",
			"Strengthen preventive monitoring",
		},
		EstimatedImpact:      "medium",
		ImplementationEffort: "low",
		TimeToImplement:      "1-2 days",
	}
}

// rootCauseConfidence is the confidence a root cause needs to earn its own
// recommendation.
const rootCauseConfidence = 0.5

// Recommend derives deduplicated recommendations from findings, highest
// priority first.
func Recommend(bottlenecks []model.Bottleneck, anomalies []model.Anomaly, rootCauses []model.RootCause) []model.Recommendation {
	var recs []model.Recommendation
	for _, b := range bottlenecks {
		if rec, ok := typeRecommendations[b.Type]; ok {
			rec.Actions = append([]string(nil), rec.Actions...)
			recs = append(recs, rec)
		}
	}
	for _, rc := range rootCauses {
		if rc.Confidence < rootCauseConfidence || len(rc.CandidateCauses) == 0 {
			continue
		}
		top := rc.CandidateCauses[0]
		pri := rc.Severity
		if pri > model.SeverityHigh {
			pri = model.SeverityHigh
		}
		recs = append(recs, model.Recommendation{
			Type:                 "root_cause",
			Priority:             pri,
			Category:             model.LookupMetric(top.Metric).Type,
			Title:                fmt.Sprintf("Address %s driving %s", top.Metric, rc.Metric),
			Description:          fmt.Sprintf("%s tracks %s with r=%+.2f over %d samples", top.Metric, rc.Metric, top.CorrelationScore, top.Overlap),
			Actions:              append([]string(nil), rc.Recommendations...),
			EstimatedImpact:      "high",
			ImplementationEffort: "medium",
		})
	}
	for _, a := range anomalies {
		recs = append(recs, anomalyRecommendation(a.Metric))
	}
	recs = append(recs, monitoringRecommendation)
	return dedupRecommendations(recs)
}

func dedupRecommendations(recs []model.Recommendation) []model.Recommendation {
	seen := make(map[string]bool)
	out := make([]model.Recommendation, 0, len(recs))
	for _, r := range recs {
		if seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}

// causeHints maps a candidate cause metric to a concrete next step.
var causeHints = map[string]string{
	model.MetricMemoryUsage:    "reduce heap size: reuse buffers and pool short-lived objects",
	model.MetricMemoryGrowth:   "find the allocation hot spot with a heap profile",
	model.MetricResidentMemory: "check for native or mmap growth outside the Go heap",
	model.MetricGCPause:        "lower GC pressure: tune GOGC/GOMEMLIMIT and cut allocation churn",
	model.MetricRenderTime:     "profile the render path and cut per-frame draw work",
	model.MetricFrameRate:      "stabilise frame pacing before tuning dependent systems",
	model.MetricGoroutines:     "bound concurrent goroutines and check for leaks",
	model.MetricNetworkLatency: "move network waits off the frame loop",
	model.MetricInputLag:       "shorten the input handling path",
}

// causeAdvice turns the top candidates into advice strings.
func causeAdvice(cands []model.CandidateCause) []string {
	var out []string
	for i, c := range cands {
		if i == 3 {
			break
		}
		hint, ok := causeHints[c.Metric]
		if !ok {
			hint = "investigate why it moves with the bottleneck"
		}
		line := fmt.Sprintf("%s (r=%+.2f): %s", c.Metric, c.CorrelationScore, hint)
		if c.Rule != "" {
			line = fmt.Sprintf("%s (r=%+.2f, %s): %s", c.Metric, c.CorrelationScore, c.Rule, hint)
		}
		out = append(out, line)
	}
	return out
}

// fallbackAdvice is given when no metric explains a bottleneck.
func fallbackAdvice(b model.Bottleneck) []string {
	return []string{
		fmt.Sprintf("No tracked metric correlates with %s; add instrumentation around the %s", b.Metric, b.Component),
		"Collect a longer session to gather more overlapping samples",
		"Capture a CPU profile while the bottleneck is active",
	}
}
