package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ftahirops/perfdiag/collector"
	"github.com/ftahirops/perfdiag/logging"
	"github.com/ftahirops/perfdiag/model"
	"github.com/ftahirops/perfdiag/report"
)

// DefaultHistorySize is the number of reports kept for comparison.
const DefaultHistorySize = 32

// ReportSaver persists finished reports.
type ReportSaver interface {
	SaveReport(ctx context.Context, session *model.Session, rep *model.Report) error
}

// Settings is the tunable configuration of a Diagnostics.
type Settings struct {
	Thresholds  map[string]model.Threshold
	Baselines   map[string]model.Baseline
	Correlator  Correlator
	Weights     report.ScoringWeights
	HistorySize int
}

// Option configures a Diagnostics.
type Option func(*Diagnostics)

// WithLogger sets the logger used by the pipeline and its samplers.
func WithLogger(l *zap.Logger) Option {
	return func(d *Diagnostics) { d.log = logging.OrNop(l) }
}

// WithMetrics exports run results through m.
func WithMetrics(m *Metrics) Option {
	return func(d *Diagnostics) { d.metrics = m }
}

// WithStore saves every report produced by Run.
func WithStore(s ReportSaver) Option {
	return func(d *Diagnostics) { d.store = s }
}

// WithRecorder appends every session collected by Run to r.
func WithRecorder(r *Recorder) Option {
	return func(d *Diagnostics) { d.recorder = r }
}

// WithSamplerOptions passes extra options to each collection's sampler.
func WithSamplerOptions(opts ...collector.SamplerOption) Option {
	return func(d *Diagnostics) { d.samplerOpts = append(d.samplerOpts, opts...) }
}

// Diagnostics runs collection and the analysis pipeline.
type Diagnostics struct {
	registry   *collector.Registry
	thresholds atomic.Pointer[model.ThresholdSet]
	baselines  atomic.Pointer[model.BaselineSet]
	correlator Correlator
	reporter   *report.Reporter
	history    *History

	log         *zap.Logger
	metrics     *Metrics
	store       ReportSaver
	recorder    *Recorder
	samplerOpts []collector.SamplerOption
	shortcuts   Shortcuts
}

// Result is the outcome of one diagnostic run.
type Result struct {
	Session  *model.Session
	Findings report.Findings
	Report   *model.Report
	// Comparison is set when an earlier report exists in history.
	Comparison *Comparison
}

// New validates settings and builds a Diagnostics over reg.
func New(reg *collector.Registry, s Settings, opts ...Option) (*Diagnostics, error) {
	if reg == nil {
		reg = collector.NewRegistry()
	}
	if err := s.Weights.Validate(); err != nil {
		return nil, err
	}
	ts, err := model.NewThresholdSet(s.Thresholds)
	if err != nil {
		return nil, err
	}
	bs, err := model.NewBaselineSet(s.Baselines)
	if err != nil {
		return nil, err
	}
	if s.Correlator.MinCorrelation < 0 || s.Correlator.MinCorrelation > 1 {
		return nil, fmt.Errorf("%w: min correlation %v outside [0,1]", model.ErrInvalidConfig, s.Correlator.MinCorrelation)
	}
	if s.HistorySize <= 0 {
		s.HistorySize = DefaultHistorySize
	}

	d := &Diagnostics{
		registry:   reg,
		correlator: s.Correlator.withDefaults(),
		reporter:   report.New(s.Weights),
		history:    NewHistory(s.HistorySize),
		log:        zap.NewNop(),
		shortcuts:  DefaultShortcuts(),
	}
	d.thresholds.Store(ts)
	d.baselines.Store(bs)
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Thresholds returns the current threshold snapshot.
func (d *Diagnostics) Thresholds() *model.ThresholdSet { return d.thresholds.Load() }

// Baselines returns the current baseline snapshot.
func (d *Diagnostics) Baselines() *model.BaselineSet { return d.baselines.Load() }

// History returns the report history.
func (d *Diagnostics) History() *History { return d.history }

// UpdateThresholds replaces the threshold table. On error the previous
// table stays in effect.
func (d *Diagnostics) UpdateThresholds(in map[string]model.Threshold) error {
	ts, err := model.NewThresholdSet(in)
	if err != nil {
		return fmt.Errorf("update thresholds: %w", err)
	}
	d.thresholds.Store(ts)
	d.log.Info("thresholds updated", zap.Strings("metrics", ts.Metrics()))
	return nil
}

// UpdateBaselines replaces the baseline table. On error the previous
// table stays in effect.
func (d *Diagnostics) UpdateBaselines(in map[string]model.Baseline) error {
	bs, err := model.NewBaselineSet(in)
	if err != nil {
		return fmt.Errorf("update baselines: %w", err)
	}
	d.baselines.Store(bs)
	d.log.Info("baselines updated", zap.Strings("metrics", bs.Metrics()))
	return nil
}

// Run collects a session for opts.Duration and analyses it. Cancelling
// ctx ends collection early; the shorter session is still analysed and
// its report marked canceled.
func (d *Diagnostics) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.DetailLevel == "" {
		opts.DetailLevel = model.DetailComprehensive
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	sopts := append([]collector.SamplerOption{
		collector.WithLogger(d.log),
		collector.WithSampleHook(func(s model.Sample) {
			d.metrics.observeSample()
			if opts.OnSample != nil {
				opts.OnSample(s)
			}
		}),
		collector.WithFailureHook(func(metric string, _ error) {
			d.metrics.observeFailure(metric)
		}),
	}, d.samplerOpts...)
	sampler := collector.NewSampler(d.registry, sopts...)

	cfg := model.SessionConfig{Interval: opts.Interval, MaxDuration: opts.Duration}
	if err := sampler.Start(ctx, cfg); err != nil {
		return nil, fmt.Errorf("start collection: %w", err)
	}
	session := sampler.Wait(ctx)

	res := d.Analyze(session, opts)

	// persist even when the run was canceled
	saveCtx := context.WithoutCancel(ctx)
	if d.store != nil {
		if err := d.store.SaveReport(saveCtx, session, res.Report); err != nil {
			d.log.Error("save report failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	if d.recorder != nil {
		if err := d.recorder.Record(session, res.Report); err != nil {
			d.log.Error("record session failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return res, nil
}

// Analyze runs the pipeline over an existing session. It never panics;
// failures surface in Report.Error.
func (d *Diagnostics) Analyze(session *model.Session, opts Options) *Result {
	start := time.Now()
	if session == nil {
		now := time.Now()
		session = &model.Session{StartTime: now, EndTime: now}
	}
	if opts.DetailLevel == "" {
		opts.DetailLevel = model.DetailComprehensive
	}
	log := logging.WithSession(d.log, session.ID)

	res := &Result{Session: session}
	if err := session.Validate(); err != nil {
		log.Warn("session rejected", zap.Error(err))
		res.Report = report.Degraded(session, err, time.Now())
		res.Report.DetailLevel = opts.DetailLevel
		return res
	}

	in := &stageInput{
		session:    session,
		thresholds: d.thresholds.Load(),
		baselines:  d.baselines.Load(),
		correlator: d.correlator,
		focus:      opts.FocusMetric,
	}
	f, err := runStages(in, opts)
	res.Findings = f
	res.Report = d.reporter.Generate(session, f)
	res.Report.DetailLevel = opts.DetailLevel
	if err != nil {
		log.Error("analysis stage failed", zap.Error(err))
		if res.Report.Error == "" {
			res.Report.Error = err.Error()
		}
	}

	if prev := d.history.Latest(); prev != nil {
		c := Compare(prev, res.Report)
		res.Comparison = &c
	}
	d.history.Push(res.Report)
	d.metrics.observeRun(session, res.Report)

	log.Info("diagnosis complete",
		zap.Int("samples", session.Len()),
		zap.Int("health_score", res.Report.Summary.HealthScore),
		zap.String("level", string(res.Report.Summary.PerformanceLevel)),
		zap.Int("bottlenecks", len(f.Bottlenecks)),
		zap.Int("anomalies", len(f.Anomalies)),
		zap.Int("root_causes", len(f.RootCauses)),
		zap.Duration("took", time.Since(start)))
	return res
}

// Durations used by the shortcut diagnoses.
const (
	QuickDuration      = 5 * time.Second
	BottleneckDuration = 10 * time.Second
	AnomalyDuration    = 15 * time.Second
	AdviceDuration     = 10 * time.Second
)

// Shortcuts sets the collection lengths of the shortcut diagnoses.
// Zero fields keep their defaults.
type Shortcuts struct {
	Quick      time.Duration
	Bottleneck time.Duration
	Anomaly    time.Duration
	Advice     time.Duration
	Interval   time.Duration
}

// DefaultShortcuts returns the stock shortcut durations.
func DefaultShortcuts() Shortcuts {
	return Shortcuts{
		Quick:      QuickDuration,
		Bottleneck: BottleneckDuration,
		Anomaly:    AnomalyDuration,
		Advice:     AdviceDuration,
		Interval:   DefaultInterval,
	}
}

// WithShortcuts overrides the shortcut durations.
func WithShortcuts(sc Shortcuts) Option {
	return func(d *Diagnostics) {
		def := DefaultShortcuts()
		d.shortcuts = Shortcuts{
			Quick:      orDefault(sc.Quick, def.Quick),
			Bottleneck: orDefault(sc.Bottleneck, def.Bottleneck),
			Anomaly:    orDefault(sc.Anomaly, def.Anomaly),
			Advice:     orDefault(sc.Advice, def.Advice),
			Interval:   orDefault(sc.Interval, def.Interval),
		}
	}
}

func (d *Diagnostics) shortcutOptions(dur time.Duration) Options {
	opts := DefaultOptions()
	opts.Duration = dur
	opts.Interval = min(d.shortcuts.Interval, dur)
	return opts
}

// QuickDiagnosis runs a short basic-detail diagnosis without root cause
// analysis, optionally narrowed to one metric.
func (d *Diagnostics) QuickDiagnosis(ctx context.Context, focusMetric string) (*Result, error) {
	opts := d.shortcutOptions(d.shortcuts.Quick)
	opts.IncludeRootCause = false
	opts.DetailLevel = model.DetailBasic
	opts.FocusMetric = focusMetric
	return d.Run(ctx, opts)
}

// IdentifyBottlenecks collects for dur (the bottleneck shortcut length when
// zero) and returns only threshold violations.
func (d *Diagnostics) IdentifyBottlenecks(ctx context.Context, dur time.Duration) ([]model.Bottleneck, error) {
	opts := d.shortcutOptions(orDefault(dur, d.shortcuts.Bottleneck))
	opts.IncludeAnomalies = false
	opts.IncludeRootCause = false
	opts.DetailLevel = model.DetailStandard
	res, err := d.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	return res.Report.TechnicalDetails.Bottlenecks, nil
}

// DetectAnomalies collects for dur (the anomaly shortcut length when zero)
// and returns only baseline deviations.
func (d *Diagnostics) DetectAnomalies(ctx context.Context, dur time.Duration) ([]model.Anomaly, error) {
	opts := d.shortcutOptions(orDefault(dur, d.shortcuts.Anomaly))
	opts.IncludeBottlenecks = false
	opts.IncludeRootCause = false
	opts.DetailLevel = model.DetailStandard
	res, err := d.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	return res.Report.TechnicalDetails.Anomalies, nil
}

// Health returns the summary of a quick diagnosis.
func (d *Diagnostics) Health(ctx context.Context) (model.Summary, error) {
	res, err := d.QuickDiagnosis(ctx, "")
	if err != nil {
		return model.Summary{}, err
	}
	return res.Report.Summary, nil
}

// Recommendations runs a full diagnosis and returns its advice.
func (d *Diagnostics) Recommendations(ctx context.Context) ([]model.Recommendation, error) {
	res, err := d.Run(ctx, d.shortcutOptions(d.shortcuts.Advice))
	if err != nil {
		return nil, err
	}
	return res.Report.Recommendations, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
