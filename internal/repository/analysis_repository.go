package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"coinsentry/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AnalysisRepository persists completed analysis cycles and the alerts they
// raised. Persistence is best-effort; a cycle is never failed over a write
// error here.
type AnalysisRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAnalysisRepository(pool PgxPool, tracer trace.Tracer) *AnalysisRepository {
	return &AnalysisRepository{pool: pool, tracer: tracer}
}

func (r *AnalysisRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "analysis-repo.run-migrations")
	defer span.End()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_cycles (
			id BIGSERIAL PRIMARY KEY,
			run_at TIMESTAMPTZ NOT NULL,
			coins JSONB NOT NULL,
			portfolio JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			cycle_id BIGINT REFERENCES analysis_cycles(id),
			type TEXT NOT NULL,
			coin TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			current_price DOUBLE PRECISION NOT NULL,
			target_price DOUBLE PRECISION,
			recommendation TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// InsertCycle stores one cycle record and returns its row id.
func (r *AnalysisRepository) InsertCycle(ctx context.Context, res domain.CycleResult) (int64, error) {
	_, span := r.tracer.Start(ctx, "analysis-repo.insert-cycle")
	defer span.End()

	coins, err := json.Marshal(res.Data)
	if err != nil {
		return 0, fmt.Errorf("marshal cycle data: %w", err)
	}
	var portfolio []byte
	if res.Portfolio != nil {
		if portfolio, err = json.Marshal(res.Portfolio); err != nil {
			return 0, fmt.Errorf("marshal portfolio: %w", err)
		}
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO analysis_cycles (run_at, coins, portfolio)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		res.Timestamp.UTC(), coins, portfolio,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *AnalysisRepository) InsertAlerts(ctx context.Context, cycleID int64, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "analysis-repo.insert-alerts")
	defer span.End()

	batch := &pgx.Batch{}
	for _, a := range alerts {
		batch.Queue(
			`INSERT INTO alerts (cycle_id, type, coin, message, severity, current_price, target_price, recommendation, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			cycleID,
			string(a.Type),
			a.Coin,
			a.Message,
			string(a.Severity),
			a.CurrentPrice,
			a.TargetPrice,
			a.Recommendation,
			a.Timestamp.UTC(),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range alerts {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *AnalysisRepository) ListRecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	_, span := r.tracer.Start(ctx, "analysis-repo.list-recent-alerts")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT type, coin, message, severity, current_price, target_price, COALESCE(recommendation, ''), created_at
		 FROM alerts
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			a        domain.Alert
			typ, sev string
		)
		if err := rows.Scan(&typ, &a.Coin, &a.Message, &sev, &a.CurrentPrice, &a.TargetPrice, &a.Recommendation, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Type = domain.AlertType(typ)
		a.Severity = domain.Severity(sev)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
