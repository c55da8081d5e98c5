package job

import (
	"context"
	"log"
	"time"

	"coinsentry/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultAnalysisInterval = 30 * time.Minute
	dailyResetInterval      = 24 * time.Hour
)

type CycleRunner interface {
	RunCycle(ctx context.Context) *domain.CycleResult
}

type DailyResetter interface {
	ResetDaily()
}

// AnalysisPoller drives the recurring analysis cycle. The first cycle runs
// immediately on start, then every interval until ctx is cancelled.
type AnalysisPoller struct {
	tracer   trace.Tracer
	runner   CycleRunner
	resetter DailyResetter
	interval time.Duration
}

func NewAnalysisPoller(tracer trace.Tracer, runner CycleRunner, resetter DailyResetter, interval time.Duration) *AnalysisPoller {
	if interval <= 0 {
		interval = defaultAnalysisInterval
	}
	return &AnalysisPoller{
		tracer:   tracer,
		runner:   runner,
		resetter: resetter,
		interval: interval,
	}
}

// Start blocks until ctx is cancelled.
func (p *AnalysisPoller) Start(ctx context.Context) {
	if p.runner == nil {
		log.Println("Analysis poller disabled: no cycle runner")
		<-ctx.Done()
		return
	}

	log.Printf("Analysis poller starting with %s interval...", p.interval)
	ticker := time.NewTicker(p.interval)
	resetTicker := time.NewTicker(dailyResetInterval)
	defer ticker.Stop()
	defer resetTicker.Stop()

	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Analysis poller stopped")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		case <-resetTicker.C:
			if p.resetter != nil {
				p.resetter.ResetDaily()
				log.Println("Daily portfolio stats reset")
			}
		}
	}
}

func (p *AnalysisPoller) runCycle(ctx context.Context) {
	if p.tracer != nil {
		_, span := p.tracer.Start(ctx, "analysis-poller.cycle")
		defer span.End()
	}
	if res := p.runner.RunCycle(ctx); res != nil {
		log.Printf("analysis cycle %d completed with %d alert(s)", res.CycleID, len(res.Alerts))
	}
}
