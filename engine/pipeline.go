package engine

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ftahirops/perfdiag/model"
	"github.com/ftahirops/perfdiag/report"
)

// Stage names.
const (
	StageBottleneck = "bottleneck"
	StageAnomaly    = "anomaly"
	StageRootCause  = "rootcause"
	StageRecommend  = "recommend"
)

// Option defaults.
const (
	DefaultDuration = 30 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Options select which stages run and how long to collect.
type Options struct {
	Duration               time.Duration
	Interval               time.Duration
	IncludeBottlenecks     bool
	IncludeAnomalies       bool
	IncludeRootCause       bool
	IncludeRecommendations bool
	DetailLevel            model.DetailLevel
	// FocusMetric narrows bottlenecks and anomalies to one metric.
	// Correlation still considers every metric.
	FocusMetric string
	// OnSample observes samples while collecting.
	OnSample func(model.Sample)
}

// DefaultOptions runs every stage for 30 seconds at 100ms.
func DefaultOptions() Options {
	return Options{
		Duration:               DefaultDuration,
		Interval:               DefaultInterval,
		IncludeBottlenecks:     true,
		IncludeAnomalies:       true,
		IncludeRootCause:       true,
		IncludeRecommendations: true,
		DetailLevel:            model.DetailComprehensive,
	}
}

func (o Options) enabled(stage string) bool {
	switch stage {
	case StageBottleneck:
		return o.IncludeBottlenecks
	case StageAnomaly:
		return o.IncludeAnomalies
	case StageRootCause:
		// needs bottlenecks to explain
		return o.IncludeRootCause && o.IncludeBottlenecks
	case StageRecommend:
		return o.IncludeRecommendations
	}
	return false
}

// Validate rejects unusable collection settings.
func (o Options) Validate() error {
	if o.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", model.ErrInvalidConfig, o.Duration)
	}
	if o.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", model.ErrInvalidConfig, o.Interval)
	}
	if o.Interval > o.Duration {
		return fmt.Errorf("%w: interval %s exceeds duration %s", model.ErrInvalidConfig, o.Interval, o.Duration)
	}
	if _, err := model.ParseDetailLevel(string(o.DetailLevel)); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
	}
	return nil
}

// stageInput is the immutable view each stage reads.
type stageInput struct {
	session    *model.Session
	thresholds *model.ThresholdSet
	baselines  *model.BaselineSet
	correlator Correlator
	focus      string
}

// stage reads in and writes only its own fields of f.
type stage func(in *stageInput, f *report.Findings)

// detectionStages run concurrently; analysisStages run in order afterwards.
var (
	detectionStages = map[string]stage{
		StageBottleneck: func(in *stageInput, f *report.Findings) {
			f.Bottlenecks = focusBottlenecks(DetectBottlenecks(in.session, in.thresholds), in.focus)
		},
		StageAnomaly: func(in *stageInput, f *report.Findings) {
			f.Anomalies = focusAnomalies(DetectAnomalies(in.session, in.baselines), in.focus)
		},
	}
	analysisStages = map[string]stage{
		StageRootCause: func(in *stageInput, f *report.Findings) {
			f.RootCauses = in.correlator.Analyze(in.session, f.Bottlenecks, f.Anomalies)
		},
		StageRecommend: func(in *stageInput, f *report.Findings) {
			f.Recommendations = Recommend(f.Bottlenecks, f.Anomalies, f.RootCauses)
		},
	}
	analysisOrder = []string{StageRootCause, StageRecommend}
)

// runStages executes the enabled stages. A panicking stage leaves its
// output empty and is reported in the returned error.
func runStages(in *stageInput, opts Options) (report.Findings, error) {
	var f report.Findings

	var g errgroup.Group
	g.Go(func() error {
		return guard("aggregate", func() {
			f.Summaries = Summarize(in.session)
			f.Quality = AssessQuality(in.session)
		})
	})
	detected := make(map[string]*report.Findings, len(detectionStages))
	for name := range detectionStages {
		if opts.enabled(name) {
			detected[name] = &report.Findings{}
		}
	}
	for name, out := range detected {
		g.Go(func() error {
			return guard(name, func() { detectionStages[name](in, out) })
		})
	}
	err := g.Wait()
	if out, ok := detected[StageBottleneck]; ok {
		f.Bottlenecks = out.Bottlenecks
	}
	if out, ok := detected[StageAnomaly]; ok {
		f.Anomalies = out.Anomalies
	}

	for _, name := range analysisOrder {
		if !opts.enabled(name) {
			continue
		}
		if serr := guard(name, func() { analysisStages[name](in, &f) }); serr != nil && err == nil {
			err = serr
		}
	}
	return f, err
}

func guard(name string, fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("stage %s panicked: %v", name, rec)
		}
	}()
	fn()
	return nil
}

func focusBottlenecks(bs []model.Bottleneck, metric string) []model.Bottleneck {
	if metric == "" {
		return bs
	}
	out := []model.Bottleneck{}
	for _, b := range bs {
		if b.Metric == metric {
			out = append(out, b)
		}
	}
	return out
}

func focusAnomalies(as []model.Anomaly, metric string) []model.Anomaly {
	if metric == "" {
		return as
	}
	out := []model.Anomaly{}
	for _, a := range as {
		if a.Metric == metric {
			out = append(out, a)
		}
	}
	return out
}
