package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"coinsentry/internal/domain"
	"coinsentry/internal/ledger"
	"coinsentry/internal/registry"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultManualCooldown = 30 * time.Second
	historyDays           = 30
)

type Fetcher interface {
	FetchBatch(ctx context.Context, coinIDs []string) []domain.CoinAnalysis
	FetchOne(ctx context.Context, coinID string) domain.CoinAnalysis
}

type HistorySource interface {
	FetchHistory(ctx context.Context, coinID string, days int) ([]domain.PricePoint, error)
}

type SnapshotCache interface {
	SetLatest(ctx context.Context, snap domain.Snapshot) error
	Latest(ctx context.Context, coinID string) (*domain.Snapshot, error)
	Rotate(ctx context.Context, snap domain.Snapshot) (*domain.Snapshot, error)
}

type Advisor interface {
	Enabled() bool
	Propose(ctx context.Context, coinID, marketContext string) ([]domain.ProposedSignal, string, error)
}

type CycleStore interface {
	InsertCycle(ctx context.Context, res domain.CycleResult) (int64, error)
	InsertAlerts(ctx context.Context, cycleID int64, alerts []domain.Alert) error
	ListRecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error)
}

// ErrPersistenceDisabled is returned by reads that need the cycle store when
// the engine runs without one.
var ErrPersistenceDisabled = errors.New("cycle persistence is not configured")

type CycleBroadcaster interface {
	BroadcastCycle(res domain.CycleResult)
}

type AlertNotifier interface {
	NotifyAlerts(alerts []domain.Alert)
}

// AnalysisService runs the full analysis cycle: fetch market data for every
// tracked asset, evaluate alert rules, consult the advisor, and simulate the
// resulting trades. At most one cycle runs at a time.
type AnalysisService struct {
	tracer   trace.Tracer
	fetcher  Fetcher
	history  HistorySource
	cache    SnapshotCache
	advisor  Advisor
	registry *registry.Registry
	ledger   *ledger.Ledger
	store    CycleStore
	hub      CycleBroadcaster
	notifier AlertNotifier
	coins    []string
	now      func() time.Time

	mu             sync.Mutex
	cycleSeq       int64
	cycleRunning   bool
	lastCycleAt    time.Time
	tradingEnabled bool
	lastManual     map[string]time.Time
	manualCooldown time.Duration
}

func NewAnalysisService(
	tracer trace.Tracer,
	fetcher Fetcher,
	history HistorySource,
	cache SnapshotCache,
	advisor Advisor,
	reg *registry.Registry,
	led *ledger.Ledger,
	coins []string,
	now func() time.Time,
) *AnalysisService {
	return &AnalysisService{
		tracer:         tracer,
		fetcher:        fetcher,
		history:        history,
		cache:          cache,
		advisor:        advisor,
		registry:       reg,
		ledger:         led,
		coins:          coins,
		now:            now,
		lastManual:     make(map[string]time.Time),
		manualCooldown: defaultManualCooldown,
	}
}

// WithPersistence attaches the best-effort cycle store.
func (s *AnalysisService) WithPersistence(store CycleStore) *AnalysisService {
	s.store = store
	return s
}

// WithBroadcast attaches the live-update fan-out.
func (s *AnalysisService) WithBroadcast(hub CycleBroadcaster) *AnalysisService {
	s.hub = hub
	return s
}

// WithNotifier attaches the alert notification channel.
func (s *AnalysisService) WithNotifier(notifier AlertNotifier) *AnalysisService {
	s.notifier = notifier
	return s
}

func (s *AnalysisService) SetManualCooldown(d time.Duration) { s.manualCooldown = d }

// RunCycle executes one full analysis pass. When a cycle is already in
// flight the call is a no-op and returns nil.
func (s *AnalysisService) RunCycle(ctx context.Context) *domain.CycleResult {
	ctx, span := s.tracer.Start(ctx, "analysis-service.run-cycle")
	defer span.End()

	s.mu.Lock()
	if s.cycleRunning {
		s.mu.Unlock()
		log.Println("analysis cycle already running, skipping")
		return nil
	}
	s.cycleRunning = true
	s.cycleSeq++
	cycleID := s.cycleSeq
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cycleRunning = false
		s.lastCycleAt = s.now().UTC()
		s.mu.Unlock()
	}()

	batch := s.fetcher.FetchBatch(ctx, s.coins)

	res := domain.CycleResult{
		CycleID:   cycleID,
		Timestamp: s.now().UTC(),
		Data:      batch,
	}

	prices := make(map[string]float64, len(batch))
	for _, analysis := range batch {
		if analysis.Failed || analysis.Snapshot == nil {
			continue
		}
		snap := *analysis.Snapshot

		prev, err := s.cache.Rotate(ctx, snap)
		if err != nil {
			log.Printf("failed to rotate snapshot for %s: %v", analysis.Coin, err)
		}
		if err := s.cache.SetLatest(ctx, snap); err != nil {
			log.Printf("failed to cache snapshot for %s: %v", analysis.Coin, err)
		}

		alerts := s.registry.Evaluate(analysis.Coin, &snap, prev, analysis.Indicators, cycleID)
		res.Alerts = append(res.Alerts, alerts...)

		if pair, ok := domain.CoinPair[analysis.Coin]; ok {
			prices[pair] = snap.PriceUSD
		}

		s.consultAdvisor(ctx, analysis)
	}

	s.ledger.Valuate(prices)
	s.executeSignals(prices)
	s.registry.Sweep()

	portfolio := s.ledger.Snapshot()
	res.Portfolio = &portfolio

	s.persist(ctx, &res)
	if s.hub != nil {
		s.hub.BroadcastCycle(res)
	}
	if s.notifier != nil && len(res.Alerts) > 0 {
		// Fire-and-forget: a slow notification channel never delays the
		// next cycle.
		go s.notifier.NotifyAlerts(res.Alerts)
	}
	return &res
}

// TriggerCycle starts a cycle in the background. Returns false when a cycle
// is already in flight.
func (s *AnalysisService) TriggerCycle() bool {
	s.mu.Lock()
	running := s.cycleRunning
	s.mu.Unlock()
	if running {
		return false
	}
	go s.RunCycle(context.Background())
	return true
}

// AnalyzeCoin runs a single-asset analysis on demand. Repeated requests for
// the same coin within the cooldown window are rejected.
func (s *AnalysisService) AnalyzeCoin(ctx context.Context, coinID string) (*domain.CoinAnalysis, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.analyze-coin")
	defer span.End()

	coinID = strings.ToLower(strings.TrimSpace(coinID))
	if !domain.IsSupportedCoin(coinID) {
		return nil, fmt.Errorf("unsupported coin: %s", coinID)
	}

	s.mu.Lock()
	if last, ok := s.lastManual[coinID]; ok {
		elapsed := s.now().Sub(last)
		if elapsed < s.manualCooldown {
			remaining := int((s.manualCooldown - elapsed).Round(time.Second).Seconds())
			s.mu.Unlock()
			return nil, fmt.Errorf("analysis for %s is rate limited, retry after %d seconds", coinID, remaining)
		}
	}
	s.lastManual[coinID] = s.now()
	cycleID := s.cycleSeq
	s.mu.Unlock()

	analysis := s.fetcher.FetchOne(ctx, coinID)
	if analysis.Failed || analysis.Snapshot == nil {
		return &analysis, nil
	}

	snap := *analysis.Snapshot
	prev, err := s.cache.Rotate(ctx, snap)
	if err != nil {
		log.Printf("failed to rotate snapshot for %s: %v", coinID, err)
	}
	if err := s.cache.SetLatest(ctx, snap); err != nil {
		log.Printf("failed to cache snapshot for %s: %v", coinID, err)
	}

	s.registry.Evaluate(coinID, &snap, prev, analysis.Indicators, cycleID)
	s.consultAdvisor(ctx, analysis)
	return &analysis, nil
}

func (s *AnalysisService) consultAdvisor(ctx context.Context, analysis domain.CoinAnalysis) {
	if s.advisor == nil || !s.advisor.Enabled() {
		return
	}

	marketContext := s.buildContext(ctx, analysis)
	proposals, _, err := s.advisor.Propose(ctx, analysis.Coin, marketContext)
	if err != nil {
		log.Printf("advisor failed for %s: %v", analysis.Coin, err)
		return
	}
	s.registry.SetSignals(analysis.Coin, proposals)
}

func (s *AnalysisService) buildContext(ctx context.Context, analysis domain.CoinAnalysis) string {
	var sb strings.Builder
	snap := analysis.Snapshot
	fmt.Fprintf(&sb, "Current price: $%.2f\n", snap.PriceUSD)
	fmt.Fprintf(&sb, "24h change: %.2f%%\n", snap.Change24h)
	fmt.Fprintf(&sb, "24h volume: $%.0f\n", snap.Volume24h)
	fmt.Fprintf(&sb, "Market cap: $%.0f\n", snap.MarketCap)

	if !analysis.Indicators.Empty() {
		if analysis.Indicators.RSI != nil {
			fmt.Fprintf(&sb, "RSI (1h): %.2f\n", *analysis.Indicators.RSI)
		}
		if analysis.Indicators.MACD != nil {
			fmt.Fprintf(&sb, "MACD: %.4f signal %.4f histogram %.4f\n",
				analysis.Indicators.MACD.Value, analysis.Indicators.MACD.Signal, analysis.Indicators.MACD.Histogram)
		}
	}

	if s.history != nil {
		points, err := s.history.FetchHistory(ctx, analysis.Coin, historyDays)
		if err != nil {
			log.Printf("failed to fetch history for %s: %v", analysis.Coin, err)
		} else if len(points) > 0 {
			first, last := points[0].Price, points[len(points)-1].Price
			if first > 0 {
				fmt.Fprintf(&sb, "%d-day trend: %.2f%%\n", historyDays, (last-first)/first*100)
			}
		}
	}
	return sb.String()
}

// executeSignals turns active signals into simulated trades when trading is
// enabled. A BUY opens at most one position per symbol; a SELL closes the
// open position and completes the signal.
func (s *AnalysisService) executeSignals(prices map[string]float64) {
	s.mu.Lock()
	enabled := s.tradingEnabled
	s.mu.Unlock()
	if !enabled {
		return
	}

	for _, sig := range s.registry.ActiveSignals() {
		pair, ok := domain.CoinPair[sig.Coin]
		if !ok {
			continue
		}
		price, ok := prices[pair]
		if !ok || price <= 0 {
			continue
		}

		switch sig.Action {
		case domain.ActionBuy:
			if s.ledger.HasPosition(pair) {
				continue
			}
			qty := s.ledger.PositionSize(sig.EntryPoint, sig.StopLoss)
			if qty <= 0 {
				continue
			}
			if _, err := s.ledger.Open(pair, qty, price); err != nil {
				log.Printf("paper trade rejected for %s: %v", pair, err)
			}
		case domain.ActionSell:
			if !s.ledger.HasPosition(pair) {
				continue
			}
			pnl, err := s.ledger.Close(pair, price)
			if err != nil {
				log.Printf("failed to close paper position %s: %v", pair, err)
				continue
			}
			log.Printf("closed paper position %s with pnl %.2f", pair, pnl)
			s.registry.MarkCompleted(sig.Coin)
		}
	}
}

func (s *AnalysisService) persist(ctx context.Context, res *domain.CycleResult) {
	if s.store == nil {
		return
	}
	id, err := s.store.InsertCycle(ctx, *res)
	if err != nil {
		log.Printf("failed to persist cycle: %v", err)
		return
	}
	if err := s.store.InsertAlerts(ctx, id, res.Alerts); err != nil {
		log.Printf("failed to persist alerts: %v", err)
	}
}

// StartTrading enables paper-trade execution.
func (s *AnalysisService) StartTrading() {
	s.mu.Lock()
	s.tradingEnabled = true
	s.mu.Unlock()
}

// StopTrading disables paper-trade execution; open positions stay open.
func (s *AnalysisService) StopTrading() {
	s.mu.Lock()
	s.tradingEnabled = false
	s.mu.Unlock()
}

func (s *AnalysisService) TradingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradingEnabled
}

// Status summarizes the engine for the API and the bot.
type Status struct {
	TradingEnabled bool      `json:"trading_enabled"`
	AdvisorEnabled bool      `json:"advisor_enabled"`
	CycleCount     int64     `json:"cycle_count"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	ActiveSignals  int       `json:"active_signals"`
	OpenPositions  int       `json:"open_positions"`
	TrackedCoins   []string  `json:"tracked_coins"`
}

func (s *AnalysisService) Status() Status {
	s.mu.Lock()
	st := Status{
		TradingEnabled: s.tradingEnabled,
		CycleCount:     s.cycleSeq,
		LastCycleAt:    s.lastCycleAt,
		TrackedCoins:   s.coins,
	}
	s.mu.Unlock()

	st.AdvisorEnabled = s.advisor != nil && s.advisor.Enabled()
	st.ActiveSignals = len(s.registry.ActiveSignals())
	st.OpenPositions = len(s.ledger.Snapshot().Positions)
	return st
}

// Portfolio exposes the ledger state for the API and the bot.
func (s *AnalysisService) Portfolio() domain.Portfolio { return s.ledger.Snapshot() }

// ActiveSignals exposes tracked signals for the API and the bot.
func (s *AnalysisService) ActiveSignals() []domain.TradingSignal { return s.registry.ActiveSignals() }

// RecentAlerts exposes the in-memory alert log.
func (s *AnalysisService) RecentAlerts(n int) []domain.Alert { return s.registry.RecentAlerts(n) }

// PersistedAlerts reads the alert history from the cycle store, which
// survives restarts unlike the in-memory log.
func (s *AnalysisService) PersistedAlerts(ctx context.Context, n int) ([]domain.Alert, error) {
	if s.store == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.store.ListRecentAlerts(ctx, n)
}

// LatestSnapshot serves the cached snapshot for one coin, if fresh.
func (s *AnalysisService) LatestSnapshot(ctx context.Context, coinID string) (*domain.Snapshot, error) {
	return s.cache.Latest(ctx, coinID)
}
