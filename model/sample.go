package model

import (
	"fmt"
	"sort"
	"time"
)

// Sample is one timestamped snapshot of metric values.
// Metrics whose provider failed are absent from Metrics and listed in Missing.
type Sample struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
	Complete  bool               `json:"complete"`
	Missing   []string           `json:"missing,omitempty"`
}

// Value returns the metric value and whether it was collected.
func (s Sample) Value(metric string) (float64, bool) {
	v, ok := s.Metrics[metric]
	return v, ok
}

// SessionConfig controls one collection run.
type SessionConfig struct {
	Interval    time.Duration `json:"interval"`
	MaxDuration time.Duration `json:"max_duration"`
}

// Validate checks that the cadence and bound are usable.
func (c SessionConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("%w: max duration must not be negative, got %s", ErrInvalidConfig, c.MaxDuration)
	}
	return nil
}

// Session is the bounded sequence of samples gathered during one diagnostic run.
// A session handed out by the collector is sealed; callers must not mutate it.
type Session struct {
	ID        string        `json:"id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Samples   []Sample      `json:"samples"`
	Config    SessionConfig `json:"config"`
	Canceled  bool          `json:"canceled,omitempty"`
}

// Len returns the number of samples.
func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Samples)
}

// Duration is the wall-clock span of the run.
func (s *Session) Duration() time.Duration {
	if s == nil || s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Metrics lists every metric present in at least one sample, sorted.
func (s *Session) Metrics() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, smp := range s.Samples {
		for name := range smp.Metrics {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Series returns the timestamps and values of samples that carry metric.
func (s *Session) Series(metric string) ([]time.Time, []float64) {
	if s == nil {
		return nil, nil
	}
	var ts []time.Time
	var vals []float64
	for _, smp := range s.Samples {
		if v, ok := smp.Metrics[metric]; ok {
			ts = append(ts, smp.Timestamp)
			vals = append(vals, v)
		}
	}
	return ts, vals
}

// Validate checks the ordering invariant: timestamps never decrease.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("nil session")
	}
	for i := 1; i < len(s.Samples); i++ {
		if s.Samples[i].Timestamp.Before(s.Samples[i-1].Timestamp) {
			return fmt.Errorf("session %s: sample %d timestamp %s precedes sample %d",
				s.ID, i, s.Samples[i].Timestamp.Format(time.RFC3339Nano), i-1)
		}
	}
	return nil
}
