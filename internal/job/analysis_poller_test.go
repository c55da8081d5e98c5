package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"coinsentry/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubRunner struct {
	calls int32
}

func (s *stubRunner) RunCycle(ctx context.Context) *domain.CycleResult {
	atomic.AddInt32(&s.calls, 1)
	return &domain.CycleResult{CycleID: int64(atomic.LoadInt32(&s.calls))}
}

func TestPollerRunsImmediately(t *testing.T) {
	runner := &stubRunner{}
	poller := NewAnalysisPoller(trace.NewNoopTracerProvider().Tracer("test"), runner, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&runner.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected an immediate cycle on start")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerTicksOnInterval(t *testing.T) {
	runner := &stubRunner{}
	poller := NewAnalysisPoller(trace.NewNoopTracerProvider().Tracer("test"), runner, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Start(ctx)

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&runner.calls) < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 cycles, got %d", atomic.LoadInt32(&runner.calls))
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPollerWithoutRunnerWaitsForCancel(t *testing.T) {
	poller := NewAnalysisPoller(trace.NewNoopTracerProvider().Tracer("test"), nil, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled poller did not stop on cancel")
	}
}

func TestPollerDefaultInterval(t *testing.T) {
	poller := NewAnalysisPoller(trace.NewNoopTracerProvider().Tracer("test"), &stubRunner{}, nil, 0)
	if poller.interval != defaultAnalysisInterval {
		t.Fatalf("expected default interval, got %s", poller.interval)
	}
}
