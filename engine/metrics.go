package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ftahirops/perfdiag/model"
)

const metricsNamespace = "perfdiag"

var allSeverities = []model.Severity{
	model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical,
}

var allLevels = []model.PerformanceLevel{
	model.LevelExcellent, model.LevelGood, model.LevelFair, model.LevelPoor, model.LevelCritical,
}

// Metrics exports diagnostic results as Prometheus series.
type Metrics struct {
	healthScore      prometheus.Gauge
	level            *prometheus.GaugeVec
	bottlenecks      *prometheus.GaugeVec
	anomalies        *prometheus.GaugeVec
	samples          prometheus.Counter
	providerFailures *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
	runs             prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		healthScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "health_score",
			Help:      "Health score of the most recent diagnostic run (0-100)",
		}),
		level: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "performance_level",
			Help:      "1 for the performance level of the most recent run, 0 otherwise",
		}, []string{"level"}),
		bottlenecks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "bottlenecks",
			Help:      "Bottlenecks found by the most recent run",
		}, []string{"severity"}),
		anomalies: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "anomalies",
			Help:      "Anomalies found by the most recent run",
		}, []string{"severity"}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "samples_total",
			Help:      "Samples collected across all sessions",
		}),
		providerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "provider_failures_total",
			Help:      "Metric provider failures by metric",
		}, []string{"metric"}),
		sessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock length of collection sessions",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to 64s
		}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Diagnostic analyses performed",
		}),
	}
}

// Handler serves the series gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) observeSample() {
	if m == nil {
		return
	}
	m.samples.Inc()
}

func (m *Metrics) observeFailure(metric string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(metric).Inc()
}

// observeRun records the outcome of one analysis.
func (m *Metrics) observeRun(session *model.Session, rep *model.Report) {
	if m == nil || rep == nil {
		return
	}
	m.runs.Inc()
	m.sessionDuration.Observe(session.Duration().Seconds())
	m.healthScore.Set(float64(rep.Summary.HealthScore))
	for _, lvl := range allLevels {
		v := 0.0
		if lvl == rep.Summary.PerformanceLevel {
			v = 1
		}
		m.level.WithLabelValues(string(lvl)).Set(v)
	}

	bCount := make(map[model.Severity]int)
	for _, b := range rep.TechnicalDetails.Bottlenecks {
		bCount[b.Severity]++
	}
	aCount := make(map[model.Severity]int)
	for _, a := range rep.TechnicalDetails.Anomalies {
		aCount[a.Severity]++
	}
	for _, sev := range allSeverities {
		m.bottlenecks.WithLabelValues(sev.String()).Set(float64(bCount[sev]))
		m.anomalies.WithLabelValues(sev.String()).Set(float64(aCount[sev]))
	}
}
