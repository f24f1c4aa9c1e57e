package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ftahirops/perfdiag/model"
)

// Postgres stores reports in a shared database through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgres connects to dsn and creates the reports table if needed.
func NewPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{pool: pool, log: log}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS perfdiag_reports (
    session_id      TEXT PRIMARY KEY,
    generated_at    TIMESTAMPTZ NOT NULL,
    health_score    INTEGER NOT NULL,
    level           TEXT NOT NULL,
    critical_issues INTEGER NOT NULL,
    bottlenecks     INTEGER NOT NULL,
    anomalies       INTEGER NOT NULL,
    samples         INTEGER NOT NULL,
    canceled        BOOLEAN NOT NULL,
    body            JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_perfdiag_reports_generated_at ON perfdiag_reports(generated_at);
`
	if _, err := p.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	p.log.Info("Postgres migration applied")
	return nil
}

// SaveReport upserts rep.
func (p *Postgres) SaveReport(ctx context.Context, session *model.Session, rep *model.Report) error {
	r, err := newRow(session, rep)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO perfdiag_reports (session_id, generated_at, health_score, level, critical_issues,
                              bottlenecks, anomalies, samples, canceled, body)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (session_id) DO UPDATE SET
    generated_at = EXCLUDED.generated_at,
    health_score = EXCLUDED.health_score,
    level = EXCLUDED.level,
    critical_issues = EXCLUDED.critical_issues,
    bottlenecks = EXCLUDED.bottlenecks,
    anomalies = EXCLUDED.anomalies,
    samples = EXCLUDED.samples,
    canceled = EXCLUDED.canceled,
    body = EXCLUDED.body`,
		r.SessionID, r.GeneratedAt, r.HealthScore, string(r.Level), r.CriticalIssues,
		r.Bottlenecks, r.Anomalies, r.Samples, r.Canceled, string(r.body))
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.SessionID, err)
	}
	p.log.Debug("report persisted", zap.String("session_id", r.SessionID), zap.Int("health_score", r.HealthScore))
	return nil
}

// ListReports returns up to limit records, newest first.
func (p *Postgres) ListReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	rows, err := p.pool.Query(ctx, `
SELECT session_id, generated_at, health_score, level, critical_issues,
       bottlenecks, anomalies, samples, canceled
FROM perfdiag_reports ORDER BY generated_at DESC, session_id LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		var (
			rec   ReportRecord
			level string
		)
		if err := rows.Scan(&rec.SessionID, &rec.GeneratedAt, &rec.HealthScore, &level, &rec.CriticalIssues,
			&rec.Bottlenecks, &rec.Anomalies, &rec.Samples, &rec.Canceled); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		rec.GeneratedAt = rec.GeneratedAt.UTC()
		rec.Level = model.PerformanceLevel(level)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadReport returns the stored report for sessionID.
func (p *Postgres) LoadReport(ctx context.Context, sessionID string) (*model.Report, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `SELECT body FROM perfdiag_reports WHERE session_id = $1`, sessionID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", sessionID, err)
	}
	return decodeReport(sessionID, body)
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
