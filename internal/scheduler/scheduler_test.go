package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coinsentry/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubSnapshotSource struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    []string
	fail     map[string]bool
	block    time.Duration
}

func (s *stubSnapshotSource) FetchSnapshot(ctx context.Context, coinID string) (*domain.Snapshot, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.calls = append(s.calls, coinID)
	s.mu.Unlock()

	if s.block > 0 {
		time.Sleep(s.block)
	}

	s.mu.Lock()
	s.inFlight--
	fail := s.fail[coinID]
	s.mu.Unlock()

	if fail {
		return nil, errors.New("upstream timeout")
	}
	return &domain.Snapshot{CoinID: coinID, PriceUSD: 100}, nil
}

type stubIndicatorSource struct {
	mu    sync.Mutex
	pairs []string
	err   error
	set   domain.IndicatorSet
}

func (s *stubIndicatorSource) FetchIndicators(ctx context.Context, pair string) (domain.IndicatorSet, error) {
	s.mu.Lock()
	s.pairs = append(s.pairs, pair)
	s.mu.Unlock()
	return s.set, s.err
}

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

func TestFetchBatchSequentialOrder(t *testing.T) {
	rsi := 55.0
	snapshots := &stubSnapshotSource{}
	indicators := &stubIndicatorSource{set: domain.IndicatorSet{RSI: &rsi}}
	s := New(testTracer(), snapshots, indicators, 0)

	got := s.FetchBatch(context.Background(), []string{"bitcoin", "ethereum"})

	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Coin != "bitcoin" || got[1].Coin != "ethereum" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Indicators.RSI == nil {
		t.Fatal("expected indicators attached")
	}
	if indicators.pairs[0] != "BTC/USDT" || indicators.pairs[1] != "ETH/USDT" {
		t.Fatalf("unexpected pairs: %v", indicators.pairs)
	}
}

func TestFetchBatchSkipsFailedAssetOnly(t *testing.T) {
	snapshots := &stubSnapshotSource{fail: map[string]bool{"bitcoin": true}}
	s := New(testTracer(), snapshots, &stubIndicatorSource{}, 0)

	got := s.FetchBatch(context.Background(), []string{"bitcoin", "ethereum"})

	if !got[0].Failed {
		t.Fatal("expected bitcoin marked failed")
	}
	if got[1].Failed || got[1].Snapshot == nil {
		t.Fatalf("ethereum must survive a bitcoin failure: %+v", got[1])
	}
}

func TestFetchOneDegradesOnIndicatorError(t *testing.T) {
	snapshots := &stubSnapshotSource{}
	indicators := &stubIndicatorSource{err: errors.New("rate limited")}
	s := New(testTracer(), snapshots, indicators, 0)

	got := s.FetchOne(context.Background(), "bitcoin")

	if got.Failed {
		t.Fatal("indicator failure must not fail the asset")
	}
	if got.Snapshot == nil || !got.Indicators.Empty() {
		t.Fatalf("expected snapshot with empty indicators: %+v", got)
	}
}

func TestFetchOneKeepsPartialIndicators(t *testing.T) {
	rsi := 31.0
	snapshots := &stubSnapshotSource{}
	indicators := &stubIndicatorSource{
		set: domain.IndicatorSet{RSI: &rsi},
		err: errors.New("macd endpoint down"),
	}
	s := New(testTracer(), snapshots, indicators, 0)

	got := s.FetchOne(context.Background(), "bitcoin")

	if got.Failed {
		t.Fatal("partial indicator failure must not fail the asset")
	}
	if got.Indicators.RSI == nil || *got.Indicators.RSI != 31 {
		t.Fatalf("the indicator that succeeded must be kept: %+v", got.Indicators)
	}
	if got.Indicators.MACD != nil {
		t.Fatalf("the failed indicator must stay unset: %+v", got.Indicators.MACD)
	}
}

func TestFetchOneWithoutIndicatorSource(t *testing.T) {
	s := New(testTracer(), &stubSnapshotSource{}, nil, time.Hour)

	done := make(chan domain.CoinAnalysis, 1)
	go func() { done <- s.FetchOne(context.Background(), "bitcoin") }()

	select {
	case got := <-done:
		if got.Snapshot == nil || !got.Indicators.Empty() {
			t.Fatalf("expected degraded result, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch must not wait the indicator delay when no source is configured")
	}
}

func TestSingleSlotGate(t *testing.T) {
	snapshots := &stubSnapshotSource{block: 30 * time.Millisecond}
	s := New(testTracer(), snapshots, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.FetchOne(context.Background(), "bitcoin")
		}()
	}
	wg.Wait()

	if snapshots.maxSeen != 1 {
		t.Fatalf("expected at most 1 in-flight request, saw %d", snapshots.maxSeen)
	}
}

func TestFetchBatchRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(testTracer(), &stubSnapshotSource{}, nil, time.Minute)
	got := s.FetchBatch(ctx, []string{"bitcoin", "ethereum"})

	for _, a := range got {
		if !a.Failed {
			t.Fatalf("expected all assets failed under cancelled context: %+v", got)
		}
	}
}

func TestFetchBatchAppliesInterRequestDelay(t *testing.T) {
	snapshots := &stubSnapshotSource{}
	s := New(testTracer(), snapshots, nil, 40*time.Millisecond)

	start := time.Now()
	s.FetchBatch(context.Background(), []string{"bitcoin", "ethereum"})

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected at least one inter-request delay, took %v", elapsed)
	}
}
