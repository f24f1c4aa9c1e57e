package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ftahirops/perfdiag/model"
)

// run is an open bottleneck for one metric.
type run struct {
	b     model.Bottleneck
	th    model.Threshold
	worst float64
}

// DetectBottlenecks classifies every sample against thresholds and merges
// consecutive samples of the same metric and severity into one record.
// A sample that lacks the metric neither extends nor breaks its run.
func DetectBottlenecks(session *model.Session, thresholds *model.ThresholdSet) []model.Bottleneck {
	if session.Len() == 0 || thresholds.Len() == 0 {
		return []model.Bottleneck{}
	}

	var out []model.Bottleneck
	open := make(map[string]*run)
	closeRun := func(metric string) {
		if r, ok := open[metric]; ok {
			out = append(out, r.finish())
			delete(open, metric)
		}
	}

	for _, smp := range session.Samples {
		for _, metric := range thresholds.Metrics() {
			v, ok := smp.Value(metric)
			if !ok {
				continue
			}
			th, _ := thresholds.Get(metric)
			sev := th.Classify(v)

			cur, isOpen := open[metric]
			if isOpen && cur.b.Severity == sev {
				cur.extend(smp, v)
				continue
			}
			closeRun(metric)
			if sev == model.SeverityNone {
				continue
			}
			open[metric] = newRun(smp, th, sev, v)
		}
	}
	for _, metric := range thresholds.Metrics() {
		closeRun(metric)
	}

	sortBottlenecks(out)
	if out == nil {
		out = []model.Bottleneck{}
	}
	return out
}

func newRun(smp model.Sample, th model.Threshold, sev model.Severity, v float64) *run {
	info := model.LookupMetric(th.Metric)
	return &run{
		th:    th,
		worst: v,
		b: model.Bottleneck{
			Type:            info.Type,
			Component:       info.Component,
			Severity:        sev,
			Metric:          th.Metric,
			Threshold:       th.Boundary(sev),
			FirstSeen:       smp.Timestamp,
			LastSeen:        smp.Timestamp,
			OccurrenceCount: 1,
			MinValue:        v,
			MaxValue:        v,
		},
	}
}

func (r *run) extend(smp model.Sample, v float64) {
	r.b.OccurrenceCount++
	r.b.LastSeen = smp.Timestamp
	r.b.MinValue = math.Min(r.b.MinValue, v)
	r.b.MaxValue = math.Max(r.b.MaxValue, v)
	if r.th.EffectiveDirection() == model.DirectionBelow {
		r.worst = math.Min(r.worst, v)
	} else {
		r.worst = math.Max(r.worst, v)
	}
}

func (r *run) finish() model.Bottleneck {
	b := r.b
	b.Value = r.worst
	b.Description = describeBottleneck(b, r.th.EffectiveDirection())
	return b
}

func describeBottleneck(b model.Bottleneck, dir model.Direction) string {
	info := model.LookupMetric(b.Metric)
	cmp := "above"
	if dir == model.DirectionBelow {
		cmp = "below"
	}
	unit := ""
	if info.Unit != "" {
		unit = " " + info.Unit
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s threshold %.4g%s", b.Metric, b.Severity, cmp, b.Threshold, unit)
	fmt.Fprintf(&sb, " for %d sample(s), worst %.4g%s", b.OccurrenceCount, b.Value, unit)
	return sb.String()
}

func sortBottlenecks(bs []model.Bottleneck) {
	sort.SliceStable(bs, func(i, j int) bool {
		a, b := bs[i], bs[j]
		if a.Severity != b.Severity {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.OccurrenceCount != b.OccurrenceCount {
			return a.OccurrenceCount > b.OccurrenceCount
		}
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		return a.FirstSeen.Before(b.FirstSeen)
	})
}
