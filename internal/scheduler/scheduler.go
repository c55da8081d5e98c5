package scheduler

import (
	"context"
	"log"
	"time"

	"coinsentry/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, coinID string) (*domain.Snapshot, error)
}

type IndicatorSource interface {
	FetchIndicators(ctx context.Context, pair string) (domain.IndicatorSet, error)
}

// Scheduler serializes all upstream fetches through a single in-flight slot
// with a fixed delay between consecutive requests. The upstream rate limit is
// global across assets, so the batch is strictly sequential on purpose.
type Scheduler struct {
	tracer     trace.Tracer
	snapshots  SnapshotSource
	indicators IndicatorSource
	delay      time.Duration
	slot       chan struct{}
}

// New builds a Scheduler. indicators may be nil when no indicator credential
// is configured; affected assets then carry an empty IndicatorSet.
func New(tracer trace.Tracer, snapshots SnapshotSource, indicators IndicatorSource, delay time.Duration) *Scheduler {
	return &Scheduler{
		tracer:     tracer,
		snapshots:  snapshots,
		indicators: indicators,
		delay:      delay,
		slot:       make(chan struct{}, 1),
	}
}

// FetchBatch produces one CoinAnalysis per requested asset, in order. A
// failed asset is marked and skipped for this cycle; the batch never aborts.
func (s *Scheduler) FetchBatch(ctx context.Context, coinIDs []string) []domain.CoinAnalysis {
	ctx, span := s.tracer.Start(ctx, "scheduler.fetch-batch")
	defer span.End()

	out := make([]domain.CoinAnalysis, 0, len(coinIDs))
	for i, coinID := range coinIDs {
		if i > 0 && !s.wait(ctx) {
			out = append(out, domain.CoinAnalysis{Coin: coinID, Failed: true})
			continue
		}
		out = append(out, s.FetchOne(ctx, coinID))
	}
	return out
}

// FetchOne fetches the snapshot and indicator readout for a single asset,
// holding the in-flight slot for the whole exchange.
func (s *Scheduler) FetchOne(ctx context.Context, coinID string) domain.CoinAnalysis {
	if !s.acquire(ctx) {
		return domain.CoinAnalysis{Coin: coinID, Failed: true}
	}
	defer s.release()

	analysis := domain.CoinAnalysis{Coin: coinID}

	snap, err := s.snapshots.FetchSnapshot(ctx, coinID)
	if err != nil {
		log.Printf("snapshot fetch failed for %s, skipping this cycle: %v", coinID, err)
		analysis.Failed = true
		return analysis
	}
	analysis.Snapshot = snap

	if s.indicators == nil {
		return analysis
	}
	if !s.wait(ctx) {
		return analysis
	}

	set, err := s.indicators.FetchIndicators(ctx, domain.CoinPair[coinID])
	if err != nil {
		log.Printf("indicator fetch for %s degraded: %v", coinID, err)
	}
	analysis.Indicators = set
	return analysis
}

func (s *Scheduler) acquire(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.slot <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) release() { <-s.slot }

func (s *Scheduler) wait(ctx context.Context) bool {
	if s.delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
