package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ftahirops/perfdiag/model"
)

// ErrNotFound is returned when no report exists for a session id.
var ErrNotFound = errors.New("report not found")

// DefaultListLimit caps ListReports when limit is not positive.
const DefaultListLimit = 50

// ReportRecord is the indexed summary of one persisted report.
type ReportRecord struct {
	SessionID      string                 `json:"session_id"`
	GeneratedAt    time.Time              `json:"generated_at"`
	HealthScore    int                    `json:"health_score"`
	Level          model.PerformanceLevel `json:"performance_level"`
	CriticalIssues int                    `json:"critical_issues"`
	Bottlenecks    int                    `json:"bottlenecks"`
	Anomalies      int                    `json:"anomalies"`
	Samples        int                    `json:"samples"`
	Canceled       bool                   `json:"canceled"`
}

// Store abstracts a persistence back-end for diagnostic reports.
type Store interface {
	// SaveReport stores rep keyed by its session id, replacing any earlier
	// report for the same session.
	SaveReport(ctx context.Context, session *model.Session, rep *model.Report) error
	// ListReports returns the newest reports first.
	ListReports(ctx context.Context, limit int) ([]ReportRecord, error)
	// LoadReport returns the full report, or ErrNotFound.
	LoadReport(ctx context.Context, sessionID string) (*model.Report, error)
	Close() error
}

// Drivers lists the accepted Open drivers.
var Drivers = []string{"sqlite", "postgres"}

// Open connects to the named backend and applies its migration.
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch driver {
	case "sqlite":
		return NewSQLite(ctx, dsn, log)
	case "postgres":
		return NewPostgres(ctx, dsn, log)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}

// row is what both backends write for one report.
type row struct {
	ReportRecord
	body []byte
}

func newRow(session *model.Session, rep *model.Report) (row, error) {
	if rep == nil {
		return row{}, errors.New("nil report")
	}
	id := rep.SessionID
	if id == "" && session != nil {
		id = session.ID
	}
	if id == "" {
		return row{}, errors.New("report has no session id")
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return row{}, fmt.Errorf("encode report %s: %w", id, err)
	}
	return row{
		ReportRecord: ReportRecord{
			SessionID:      id,
			GeneratedAt:    rep.GeneratedAt.UTC(),
			HealthScore:    rep.Summary.HealthScore,
			Level:          rep.Summary.PerformanceLevel,
			CriticalIssues: rep.Summary.CriticalIssues,
			Bottlenecks:    len(rep.TechnicalDetails.Bottlenecks),
			Anomalies:      len(rep.TechnicalDetails.Anomalies),
			Samples:        rep.Summary.SampleCount,
			Canceled:       rep.TechnicalDetails.Canceled,
		},
		body: body,
	}, nil
}

func decodeReport(id string, body []byte) (*model.Report, error) {
	var rep model.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &rep, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
