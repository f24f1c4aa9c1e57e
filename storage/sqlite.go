package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ftahirops/perfdiag/model"
)

// sqliteTime sorts lexically; timestamps are stored in UTC.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLite stores reports in a local file through the pure-Go driver.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLite opens (or creates) the SQLite file at dbPath and creates the
// reports table if it does not exist. The caller must call Close.
func NewSQLite(ctx context.Context, dbPath string, log *zap.Logger) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLite{db: db, log: log}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS reports (
    session_id      TEXT PRIMARY KEY,
    generated_at    TEXT NOT NULL,
    health_score    INTEGER NOT NULL,
    level           TEXT NOT NULL,
    critical_issues INTEGER NOT NULL,
    bottlenecks     INTEGER NOT NULL,
    anomalies       INTEGER NOT NULL,
    samples         INTEGER NOT NULL,
    canceled        INTEGER NOT NULL,
    body            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON reports(generated_at);
`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	s.log.Info("SQLite migration applied")
	return nil
}

// SaveReport upserts rep.
func (s *SQLite) SaveReport(ctx context.Context, session *model.Session, rep *model.Report) error {
	r, err := newRow(session, rep)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO reports (session_id, generated_at, health_score, level, critical_issues,
                     bottlenecks, anomalies, samples, canceled, body)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    generated_at = excluded.generated_at,
    health_score = excluded.health_score,
    level = excluded.level,
    critical_issues = excluded.critical_issues,
    bottlenecks = excluded.bottlenecks,
    anomalies = excluded.anomalies,
    samples = excluded.samples,
    canceled = excluded.canceled,
    body = excluded.body`,
		r.SessionID, r.GeneratedAt.Format(sqliteTime), r.HealthScore, string(r.Level),
		r.CriticalIssues, r.Bottlenecks, r.Anomalies, r.Samples, r.Canceled, string(r.body))
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.SessionID, err)
	}
	s.log.Debug("report persisted", zap.String("session_id", r.SessionID), zap.Int("health_score", r.HealthScore))
	return nil
}

// ListReports returns up to limit records, newest first.
func (s *SQLite) ListReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, generated_at, health_score, level, critical_issues,
       bottlenecks, anomalies, samples, canceled
FROM reports ORDER BY generated_at DESC, session_id LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		var (
			rec   ReportRecord
			ts    string
			level string
		)
		if err := rows.Scan(&rec.SessionID, &ts, &rec.HealthScore, &level, &rec.CriticalIssues,
			&rec.Bottlenecks, &rec.Anomalies, &rec.Samples, &rec.Canceled); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if rec.GeneratedAt, err = time.Parse(sqliteTime, ts); err != nil {
			return nil, fmt.Errorf("parse generated_at %q: %w", ts, err)
		}
		rec.Level = model.PerformanceLevel(level)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadReport returns the stored report for sessionID.
func (s *SQLite) LoadReport(ctx context.Context, sessionID string) (*model.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE session_id = ?`, sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", sessionID, err)
	}
	return decodeReport(sessionID, []byte(body))
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
