package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Bottleneck is a sustained threshold exceedance. Consecutive samples of the
// same metric at the same severity are merged into one record.
type Bottleneck struct {
	Type            string    `json:"type"`
	Component       string    `json:"component"`
	Severity        Severity  `json:"severity"`
	Metric          string    `json:"metric"`
	Value           float64   `json:"value"` // most severe value of the run
	Threshold       float64   `json:"threshold"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	OccurrenceCount int       `json:"occurrence_count"`
	MinValue        float64   `json:"min_value"`
	MaxValue        float64   `json:"max_value"`
	Description     string    `json:"description"`
}

// Sigma is a deviation expressed in standard deviations. It may be +Inf
// when the baseline has zero spread, so it has its own JSON form.
type Sigma float64

func (s Sigma) MarshalJSON() ([]byte, error) {
	f := float64(s)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (s *Sigma) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		switch str {
		case "+Inf", "Inf":
			*s = Sigma(math.Inf(1))
		case "-Inf":
			*s = Sigma(math.Inf(-1))
		case "NaN":
			*s = Sigma(math.NaN())
		default:
			return fmt.Errorf("invalid sigma %q", str)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = Sigma(f)
	return nil
}

// IsInf reports whether the deviation is unbounded.
func (s Sigma) IsInf() bool {
	return math.IsInf(float64(s), 0)
}

// AnomalyKind says which side of the baseline a value fell on.
type AnomalyKind string

const (
	AnomalySpike AnomalyKind = "spike"
	AnomalyDrop  AnomalyKind = "drop"
)

// Anomaly is a single statistically significant deviation from baseline.
type Anomaly struct {
	Metric    string      `json:"metric"`
	Severity  Severity    `json:"severity"`
	Value     float64     `json:"value"`
	Expected  float64     `json:"expected"`
	Deviation Sigma       `json:"deviation_sigma"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      AnomalyKind `json:"kind"`
}

// CandidateCause is a metric correlated with a bottleneck's metric.
type CandidateCause struct {
	Metric           string  `json:"metric"`
	CorrelationScore float64 `json:"correlation_score"`
	Overlap          int     `json:"overlap"`
	AnomalyCount     int     `json:"anomaly_count,omitempty"`
	Rule             string  `json:"rule,omitempty"`
}

// RootCause explains one bottleneck with ranked candidate causes.
type RootCause struct {
	RelatedIssue    string           `json:"related_issue"`
	Metric          string           `json:"metric"`
	Severity        Severity         `json:"severity"`
	CandidateCauses []CandidateCause `json:"candidate_causes"`
	Confidence      float64          `json:"confidence"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// Recommendation is an actionable follow-up derived from findings.
type Recommendation struct {
	Type                 string   `json:"type"`
	Priority             Severity `json:"priority"`
	Category             string   `json:"category"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Actions              []string `json:"actions,omitempty"`
	EstimatedImpact      string   `json:"estimated_impact,omitempty"`
	ImplementationEffort string   `json:"implementation_effort,omitempty"`
	TimeToImplement      string   `json:"time_to_implement,omitempty"`
}
