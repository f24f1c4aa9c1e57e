package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/ftahirops/perfdiag/model"
)

// incompleteLimit is the share of incomplete samples tolerated before a
// missing_data issue is raised.
const incompleteLimit = 0.1

// AssessQuality scores how trustworthy a session's data is.
func AssessQuality(session *model.Session) model.DataQuality {
	n := session.Len()
	if n == 0 {
		return model.DataQuality{
			Issues: []model.QualityIssue{{
				Type:        "no_data",
				Severity:    model.SeverityMedium,
				Description: "no samples were collected",
				Impact:      "Analysis results are empty",
			}},
		}
	}

	incomplete := 0
	for _, smp := range session.Samples {
		if !smp.Complete {
			incomplete++
		}
	}
	q := model.DataQuality{
		Completeness: float64(n-incomplete) / float64(n),
		Consistency:  intervalConsistency(session),
		TimeGaps:     countTimeGaps(session),
	}
	q.Overall = (q.Completeness + q.Consistency) / 2

	if float64(incomplete) > float64(n)*incompleteLimit {
		q.Issues = append(q.Issues, model.QualityIssue{
			Type:        "missing_data",
			Severity:    model.SeverityMedium,
			Description: fmt.Sprintf("%d incomplete samples detected", incomplete),
			Impact:      "May affect analysis accuracy",
		})
	}
	if q.TimeGaps > 0 {
		q.Issues = append(q.Issues, model.QualityIssue{
			Type:        "time_gaps",
			Severity:    model.SeverityLow,
			Description: fmt.Sprintf("%d time gaps detected", q.TimeGaps),
			Impact:      "May indicate system overload during collection",
		})
	}
	return q
}

// expectedInterval is the configured cadence, falling back to the first
// observed gap for sessions recorded without one.
func expectedInterval(session *model.Session) time.Duration {
	if session.Config.Interval > 0 {
		return session.Config.Interval
	}
	if len(session.Samples) >= 2 {
		return session.Samples[1].Timestamp.Sub(session.Samples[0].Timestamp)
	}
	return 0
}

// intervalConsistency averages max(0, 1-|dt-expected|/expected) over gaps.
func intervalConsistency(session *model.Session) float64 {
	samples := session.Samples
	if len(samples) < 2 {
		return 1
	}
	expected := expectedInterval(session)
	if expected <= 0 {
		return 0
	}
	var score float64
	for i := 1; i < len(samples); i++ {
		dt := samples[i].Timestamp.Sub(samples[i-1].Timestamp)
		dev := math.Abs(float64(dt-expected)) / float64(expected)
		score += math.Max(0, 1-dev)
	}
	return score / float64(len(samples)-1)
}

// countTimeGaps counts gaps longer than twice the expected interval.
func countTimeGaps(session *model.Session) int {
	expected := expectedInterval(session)
	if expected <= 0 {
		return 0
	}
	gaps := 0
	for i := 1; i < len(session.Samples); i++ {
		if session.Samples[i].Timestamp.Sub(session.Samples[i-1].Timestamp) > 2*expected {
			gaps++
		}
	}
	return gaps
}
