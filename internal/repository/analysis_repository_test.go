package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"coinsentry/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

func TestRunMigrationsExecutesSchema(t *testing.T) {
	pool := &stubPool{}
	repo := NewAnalysisRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	if err := repo.RunMigrations(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.execSQL) != 3 {
		t.Fatalf("expected 3 schema statements, got %d", len(pool.execSQL))
	}
}

func TestInsertCycleReturnsRowID(t *testing.T) {
	pool := &stubPool{rowID: 42}
	repo := NewAnalysisRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	res := domain.CycleResult{
		CycleID:   1,
		Timestamp: time.Unix(0, 0).UTC(),
		Data: []domain.CoinAnalysis{
			{Coin: "bitcoin", Snapshot: &domain.Snapshot{CoinID: "bitcoin", PriceUSD: 43000}},
		},
		Portfolio: &domain.Portfolio{WinRate: 50},
	}
	id, err := repo.InsertCycle(context.Background(), res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
}

func TestInsertAlertsBatchesStatements(t *testing.T) {
	batchResults := &stubBatchResults{}
	pool := &stubPool{batchResults: batchResults}
	repo := NewAnalysisRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	target := 45000.0
	alerts := []domain.Alert{
		{Type: domain.AlertPriceChange, Coin: "bitcoin", Severity: domain.SeverityMedium, CurrentPrice: 43000},
		{Type: domain.AlertTakeProfit, Coin: "ethereum", Severity: domain.SeverityHigh, CurrentPrice: 2450, TargetPrice: &target},
	}
	if err := repo.InsertAlerts(context.Background(), 7, alerts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.queuedBatch == nil || pool.queuedBatch.Len() != len(alerts) {
		t.Fatalf("expected batch of size %d", len(alerts))
	}
	if batchResults.execCalls != len(alerts) {
		t.Fatalf("expected %d Exec calls, got %d", len(alerts), batchResults.execCalls)
	}
}

func TestInsertAlertsEmptyIsNoop(t *testing.T) {
	pool := &stubPool{}
	repo := NewAnalysisRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	if err := repo.InsertAlerts(context.Background(), 7, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.queuedBatch != nil {
		t.Fatal("expected no batch for empty alert slice")
	}
}

func TestListRecentAlertsReturnsRows(t *testing.T) {
	target := 45000.0
	rows := [][]any{{
		"STOP_LOSS_ALERT", "bitcoin", "price approaching stop loss", "CRITICAL",
		43000.0, &target, "Consider closing the position", time.Unix(0, 0).UTC(),
	}}
	pool := &stubPool{rowsData: rows}
	repo := NewAnalysisRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	alerts, err := repo.ListRecentAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Type != domain.AlertStopLoss || alerts[0].Severity != domain.SeverityCritical {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
	if alerts[0].TargetPrice == nil || *alerts[0].TargetPrice != 45000 {
		t.Fatalf("expected target 45000, got %v", alerts[0].TargetPrice)
	}
}

type stubPool struct {
	batchResults pgx.BatchResults
	queuedBatch  *pgx.Batch
	rowsData     [][]any
	rowID        int64
	execSQL      []string
}

func (s *stubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (s *stubPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	s.queuedBatch = b
	if s.batchResults != nil {
		return s.batchResults
	}
	return &stubBatchResults{}
}

func (s *stubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	dataCopy := make([][]any, len(s.rowsData))
	for i := range s.rowsData {
		row := make([]any, len(s.rowsData[i]))
		copy(row, s.rowsData[i])
		dataCopy[i] = row
	}
	return &stubRows{data: dataCopy}, nil
}

func (s *stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &stubRow{id: s.rowID}
}

type stubBatchResults struct {
	execCalls int
}

func (s *stubBatchResults) Exec() (pgconn.CommandTag, error) {
	s.execCalls++
	return pgconn.CommandTag{}, nil
}

func (s *stubBatchResults) Query() (pgx.Rows, error) { return &stubRows{}, nil }

func (s *stubBatchResults) QueryRow() pgx.Row { return &stubRow{} }

func (s *stubBatchResults) Close() error { return nil }

type stubRows struct {
	data [][]any
	idx  int
}

func (r *stubRows) Close() {}

func (r *stubRows) Err() error { return nil }

func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *stubRows) Next() bool {
	if len(r.data) == 0 || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("invalid scan index")
	}
	row := r.data[r.idx-1]
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *time.Time:
			*ptr = row[i].(time.Time)
		case *float64:
			*ptr = row[i].(float64)
		case **float64:
			if row[i] == nil {
				*ptr = nil
			} else {
				*ptr = row[i].(*float64)
			}
		default:
			return fmt.Errorf("unsupported dest type %T", d)
		}
	}
	return nil
}

func (r *stubRows) Values() ([]any, error) { return nil, nil }

func (r *stubRows) RawValues() [][]byte { return nil }

func (r *stubRows) Conn() *pgx.Conn { return nil }

type stubRow struct {
	id int64
}

func (r *stubRow) Scan(dest ...any) error {
	for _, d := range dest {
		if ptr, ok := d.(*int64); ok {
			*ptr = r.id
		}
	}
	return nil
}
