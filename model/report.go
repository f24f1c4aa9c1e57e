package model

import (
	"fmt"
	"time"
)

// MetricSummary is derived from a session's samples.
type MetricSummary struct {
	Metric string  `json:"metric"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// PerformanceLevel buckets a health score.
type PerformanceLevel string

const (
	LevelExcellent PerformanceLevel = "excellent"
	LevelGood      PerformanceLevel = "good"
	LevelFair      PerformanceLevel = "fair"
	LevelPoor      PerformanceLevel = "poor"
	LevelCritical  PerformanceLevel = "critical"
	// LevelUnknown marks a degraded report.
	LevelUnknown PerformanceLevel = "unknown"
)

// LevelForScore maps a 0..100 health score to a level.
func LevelForScore(score int) PerformanceLevel {
	switch {
	case score >= 90:
		return LevelExcellent
	case score >= 75:
		return LevelGood
	case score >= 60:
		return LevelFair
	case score >= 40:
		return LevelPoor
	}
	return LevelCritical
}

// QualityIssue describes a problem with the collected data itself.
type QualityIssue struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
}

// DataQuality scores how trustworthy a session is. Values are 0..1.
type DataQuality struct {
	Completeness float64        `json:"completeness"`
	Consistency  float64        `json:"consistency"`
	Overall      float64        `json:"overall"`
	TimeGaps     int            `json:"time_gaps"`
	Issues       []QualityIssue `json:"issues,omitempty"`
}

// Summary is the headline section of a report.
type Summary struct {
	HealthScore      int              `json:"health_score"`
	PerformanceLevel PerformanceLevel `json:"performance_level"`
	CriticalIssues   int              `json:"critical_issues"`
	HighIssues       int              `json:"high_issues"`
	BottleneckCount  int              `json:"bottleneck_count"`
	AnomalyCount     int              `json:"anomaly_count"`
	SampleCount      int              `json:"sample_count"`
	Text             string           `json:"text"`
}

// TechnicalDetails carries every stage's output.
type TechnicalDetails struct {
	Duration        time.Duration            `json:"duration"`
	Canceled        bool                     `json:"canceled,omitempty"`
	MetricSummaries map[string]MetricSummary `json:"metric_summaries"`
	DataQuality     DataQuality              `json:"data_quality"`
	Bottlenecks     []Bottleneck             `json:"bottlenecks"`
	Anomalies       []Anomaly                `json:"anomalies"`
	RootCauses      []RootCause              `json:"root_causes"`
}

// DetailLevel controls how much technical detail a rendered report carries.
type DetailLevel string

const (
	DetailBasic         DetailLevel = "basic"
	DetailStandard      DetailLevel = "standard"
	DetailComprehensive DetailLevel = "comprehensive"
)

// ParseDetailLevel accepts the names above; empty means comprehensive.
func ParseDetailLevel(v string) (DetailLevel, error) {
	switch DetailLevel(v) {
	case "":
		return DetailComprehensive, nil
	case DetailBasic, DetailStandard, DetailComprehensive:
		return DetailLevel(v), nil
	}
	return "", fmt.Errorf("unknown detail level %q", v)
}

// Report is the final, immutable output of one diagnostic run.
// Error is set when generation degraded instead of failing.
type Report struct {
	SessionID        string           `json:"session_id"`
	DetailLevel      DetailLevel      `json:"detail_level,omitempty"`
	GeneratedAt      time.Time        `json:"generated_at"`
	Summary          Summary          `json:"summary"`
	TechnicalDetails TechnicalDetails `json:"technical_details"`
	Recommendations  []Recommendation `json:"recommendations"`
	Error            string           `json:"error,omitempty"`
}
