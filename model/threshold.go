package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidConfig marks malformed thresholds, baselines or session settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Direction says which side of a threshold tier is bad.
type Direction string

const (
	DirectionAbove Direction = "above" // higher is worse (render time, latency)
	DirectionBelow Direction = "below" // lower is worse (frame rate)
)

// Threshold holds static severity boundaries for one metric.
type Threshold struct {
	Metric    string    `json:"metric" yaml:"metric" mapstructure:"metric"`
	Critical  float64   `json:"critical" yaml:"critical" mapstructure:"critical"`
	High      float64   `json:"high" yaml:"high" mapstructure:"high"`
	Medium    float64   `json:"medium" yaml:"medium" mapstructure:"medium"`
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty" mapstructure:"direction"`
}

// EffectiveDirection returns the configured direction, inferring it from
// tier ordering when unset: a critical tier below the medium tier means
// lower values are worse.
func (t Threshold) EffectiveDirection() Direction {
	if t.Direction != "" {
		return t.Direction
	}
	if t.Critical < t.Medium {
		return DirectionBelow
	}
	return DirectionAbove
}

// crossed reports whether v is on the bad side of boundary, inclusive.
func (t Threshold) crossed(v, boundary float64) bool {
	if t.EffectiveDirection() == DirectionBelow {
		return v <= boundary
	}
	return v >= boundary
}

// Classify returns the highest tier v has crossed, or SeverityNone.
func (t Threshold) Classify(v float64) Severity {
	switch {
	case t.crossed(v, t.Critical):
		return SeverityCritical
	case t.crossed(v, t.High):
		return SeverityHigh
	case t.crossed(v, t.Medium):
		return SeverityMedium
	}
	return SeverityNone
}

// Boundary returns the tier value for sev.
func (t Threshold) Boundary(sev Severity) float64 {
	switch sev {
	case SeverityCritical:
		return t.Critical
	case SeverityHigh:
		return t.High
	case SeverityMedium:
		return t.Medium
	}
	return math.NaN()
}

// Validate rejects non-finite tiers, unknown directions and tiers out of order.
func (t Threshold) Validate() error {
	for _, v := range []float64{t.Critical, t.High, t.Medium} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: threshold %q has non-finite tier", ErrInvalidConfig, t.Metric)
		}
	}
	switch t.EffectiveDirection() {
	case DirectionAbove:
		if t.Critical < t.High || t.High < t.Medium {
			return fmt.Errorf("%w: threshold %q must satisfy critical >= high >= medium", ErrInvalidConfig, t.Metric)
		}
	case DirectionBelow:
		if t.Critical > t.High || t.High > t.Medium {
			return fmt.Errorf("%w: threshold %q must satisfy critical <= high <= medium", ErrInvalidConfig, t.Metric)
		}
	default:
		return fmt.Errorf("%w: threshold %q has unknown direction %q", ErrInvalidConfig, t.Metric, t.Direction)
	}
	return nil
}

// Baseline is the reference distribution of a metric.
type Baseline struct {
	Metric string  `json:"metric" yaml:"metric" mapstructure:"metric"`
	Mean   float64 `json:"mean" yaml:"mean" mapstructure:"mean"`
	StdDev float64 `json:"std_dev" yaml:"std_dev" mapstructure:"std_dev"`
}

// Validate rejects non-finite values and negative spread.
func (b Baseline) Validate() error {
	if math.IsNaN(b.Mean) || math.IsInf(b.Mean, 0) {
		return fmt.Errorf("%w: baseline %q mean is not finite", ErrInvalidConfig, b.Metric)
	}
	if math.IsNaN(b.StdDev) || math.IsInf(b.StdDev, 0) || b.StdDev < 0 {
		return fmt.Errorf("%w: baseline %q std dev must be finite and >= 0", ErrInvalidConfig, b.Metric)
	}
	return nil
}

// ThresholdSet is an immutable, validated snapshot of per-metric thresholds.
type ThresholdSet struct {
	m map[string]Threshold
}

// NewThresholdSet validates and copies in. An empty Metric field is filled
// from the map key; a Metric that disagrees with its key is an error.
func NewThresholdSet(in map[string]Threshold) (*ThresholdSet, error) {
	m := make(map[string]Threshold, len(in))
	for key, t := range in {
		if key == "" {
			return nil, fmt.Errorf("%w: threshold with empty metric name", ErrInvalidConfig)
		}
		if t.Metric == "" {
			t.Metric = key
		}
		if t.Metric != key {
			return nil, fmt.Errorf("%w: threshold key %q names metric %q", ErrInvalidConfig, key, t.Metric)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		m[key] = t
	}
	return &ThresholdSet{m: m}, nil
}

// Get returns the threshold for metric.
func (s *ThresholdSet) Get(metric string) (Threshold, bool) {
	if s == nil {
		return Threshold{}, false
	}
	t, ok := s.m[metric]
	return t, ok
}

// Len returns the number of configured metrics.
func (s *ThresholdSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Metrics returns the configured metric names, sorted.
func (s *ThresholdSet) Metrics() []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.m)
}

// Map returns a copy of the underlying map.
func (s *ThresholdSet) Map() map[string]Threshold {
	out := make(map[string]Threshold)
	if s == nil {
		return out
	}
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// BaselineSet is an immutable, validated snapshot of per-metric baselines.
type BaselineSet struct {
	m map[string]Baseline
}

// NewBaselineSet validates and copies in, with the same key rules as NewThresholdSet.
func NewBaselineSet(in map[string]Baseline) (*BaselineSet, error) {
	m := make(map[string]Baseline, len(in))
	for key, b := range in {
		if key == "" {
			return nil, fmt.Errorf("%w: baseline with empty metric name", ErrInvalidConfig)
		}
		if b.Metric == "" {
			b.Metric = key
		}
		if b.Metric != key {
			return nil, fmt.Errorf("%w: baseline key %q names metric %q", ErrInvalidConfig, key, b.Metric)
		}
		if err := b.Validate(); err != nil {
			return nil, err
		}
		m[key] = b
	}
	return &BaselineSet{m: m}, nil
}

// Get returns the baseline for metric.
func (s *BaselineSet) Get(metric string) (Baseline, bool) {
	if s == nil {
		return Baseline{}, false
	}
	b, ok := s.m[metric]
	return b, ok
}

// Len returns the number of configured metrics.
func (s *BaselineSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Metrics returns the configured metric names, sorted.
func (s *BaselineSet) Metrics() []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.m)
}

// Map returns a copy of the underlying map.
func (s *BaselineSet) Map() map[string]Baseline {
	out := make(map[string]Baseline)
	if s == nil {
		return out
	}
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
