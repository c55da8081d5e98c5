package registry

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"coinsentry/internal/domain"
)

const (
	signalStaleAfter = 24 * time.Hour
	signalMaxAge     = 72 * time.Hour

	// A price that has already breached the stop by more than this is not
	// re-alerted every cycle.
	stopBreachGuardPct = 2.0

	defaultLogSize = 100
)

// Thresholds are the alert trigger bounds, all in percent except the RSI pair.
type Thresholds struct {
	PriceChange      float64
	RSIOverbought    float64
	RSIOversold      float64
	EntryOpportunity float64
	StopLossBuffer   float64
	TakeProfit       float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceChange:      5,
		RSIOverbought:    70,
		RSIOversold:      30,
		EntryOpportunity: 1,
		StopLossBuffer:   0.5,
		TakeProfit:       2,
	}
}

// Registry is the single owner of the active trading signals and the bounded
// alert log. Every signal transition funnels through it.
type Registry struct {
	mu         sync.Mutex
	now        func() time.Time
	thresholds Thresholds
	logSize    int

	signals map[string]*domain.TradingSignal
	log     []domain.Alert

	lastCycleID int64
	emitted     map[string]struct{}
}

func New(thresholds Thresholds, logSize int, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	if logSize <= 0 {
		logSize = defaultLogSize
	}
	return &Registry{
		now:        now,
		thresholds: thresholds,
		logSize:    logSize,
		signals:    make(map[string]*domain.TradingSignal),
		emitted:    make(map[string]struct{}),
	}
}

// SetSignals registers BUY/SELL proposals for coinID as the coin's active
// signal, last write wins. HOLD proposals and proposals with unusable numeric
// fields are dropped; unusable optional stop/target fields degrade to absent
// rather than rejecting the whole proposal.
func (r *Registry) SetSignals(coinID string, proposals []domain.ProposedSignal) []domain.TradingSignal {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepted := make([]domain.TradingSignal, 0, len(proposals))
	for _, p := range proposals {
		if p.Action != domain.ActionBuy && p.Action != domain.ActionSell {
			continue
		}
		if !isUsablePrice(p.EntryPoint) {
			continue
		}
		if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
			continue
		}

		now := r.now().UTC()
		sig := domain.TradingSignal{
			Coin:       coinID,
			Action:     p.Action,
			Confidence: p.Confidence,
			EntryPoint: p.EntryPoint,
			StopLoss:   sanitizePrice(p.StopLoss),
			TakeProfit: sanitizePrice(p.TakeProfit),
			Reasoning:  p.Reasoning,
			Status:     domain.SignalActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		r.signals[coinID] = &sig
		accepted = append(accepted, sig)
	}
	return accepted
}

// MarkCompleted transitions the coin's active signal to COMPLETED after the
// ledger executed it. The next sweep evicts it.
func (r *Registry) MarkCompleted(coinID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sig, ok := r.signals[coinID]
	if !ok || sig.Status != domain.SignalActive {
		return false
	}
	sig.Status = domain.SignalCompleted
	sig.UpdatedAt = r.now().UTC()
	return true
}

// Sweep expires signals older than 72h and evicts expired and completed ones.
// Returns the evicted coin ids.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	evicted := make([]string, 0)
	for coinID, sig := range r.signals {
		if now.Sub(sig.CreatedAt) > signalMaxAge {
			sig.Status = domain.SignalExpired
		}
		if sig.Status == domain.SignalExpired || sig.Status == domain.SignalCompleted {
			delete(r.signals, coinID)
			evicted = append(evicted, coinID)
		}
	}
	return evicted
}

// ActiveSignals returns copies of all currently active signals.
func (r *Registry) ActiveSignals() []domain.TradingSignal {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.TradingSignal, 0, len(r.signals))
	for _, sig := range r.signals {
		if sig.Status == domain.SignalActive {
			out = append(out, *sig)
		}
	}
	return out
}

// Signal returns a copy of the coin's tracked signal, if any.
func (r *Registry) Signal(coinID string) (domain.TradingSignal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sig, ok := r.signals[coinID]
	if !ok {
		return domain.TradingSignal{}, false
	}
	return *sig, true
}

// Evaluate runs the market-wide and signal-proximity rules for one asset and
// appends the fired alerts to the bounded log. Re-evaluating the same asset
// within the same cycle never duplicates an alert: each coin+type pair is
// emitted at most once per cycleID.
func (r *Registry) Evaluate(coinID string, current *domain.Snapshot, previous *domain.Snapshot, indicators domain.IndicatorSet, cycleID int64) []domain.Alert {
	if current == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cycleID != r.lastCycleID {
		r.lastCycleID = cycleID
		r.emitted = make(map[string]struct{})
	}

	candidates := r.marketAlerts(coinID, current, previous, indicators)
	candidates = append(candidates, r.signalAlerts(coinID, current)...)

	fired := make([]domain.Alert, 0, len(candidates))
	for _, alert := range candidates {
		key := coinID + "|" + string(alert.Type)
		if _, dup := r.emitted[key]; dup {
			continue
		}
		r.emitted[key] = struct{}{}
		r.log = append(r.log, alert)
		fired = append(fired, alert)
	}
	if len(r.log) > r.logSize {
		r.log = r.log[len(r.log)-r.logSize:]
	}
	return fired
}

// RecentAlerts returns up to n alerts from the log, newest last.
func (r *Registry) RecentAlerts(n int) []domain.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.log) {
		n = len(r.log)
	}
	out := make([]domain.Alert, n)
	copy(out, r.log[len(r.log)-n:])
	return out
}

func (r *Registry) marketAlerts(coinID string, current, previous *domain.Snapshot, indicators domain.IndicatorSet) []domain.Alert {
	alerts := make([]domain.Alert, 0, 2)
	now := r.now().UTC()

	change := current.Change24h
	if previous != nil && previous.PriceUSD > 0 {
		change = (current.PriceUSD - previous.PriceUSD) / previous.PriceUSD * 100
	}
	if math.Abs(change) >= r.thresholds.PriceChange {
		severity := domain.SeverityMedium
		if math.Abs(change) >= 10 {
			severity = domain.SeverityHigh
		}
		alerts = append(alerts, domain.Alert{
			Type:         domain.AlertPriceChange,
			Coin:         coinID,
			Message:      fmt.Sprintf("%s moved %.2f%% since the last reading", strings.ToUpper(coinID), change),
			Severity:     severity,
			Timestamp:    now,
			CurrentPrice: current.PriceUSD,
		})
	}

	if indicators.RSI != nil {
		rsi := *indicators.RSI
		switch {
		case rsi >= r.thresholds.RSIOverbought:
			alerts = append(alerts, domain.Alert{
				Type:           domain.AlertRSIOverbought,
				Coin:           coinID,
				Message:        fmt.Sprintf("%s RSI = %.1f - overbought zone, a pullback is likely", strings.ToUpper(coinID), rsi),
				Severity:       domain.SeverityMedium,
				Timestamp:      now,
				CurrentPrice:   current.PriceUSD,
				Recommendation: "Consider selling or reducing the position",
			})
		case rsi <= r.thresholds.RSIOversold:
			alerts = append(alerts, domain.Alert{
				Type:           domain.AlertRSIOversold,
				Coin:           coinID,
				Message:        fmt.Sprintf("%s RSI = %.1f - oversold zone, a bounce is likely", strings.ToUpper(coinID), rsi),
				Severity:       domain.SeverityMedium,
				Timestamp:      now,
				CurrentPrice:   current.PriceUSD,
				Recommendation: "Consider buying or adding to the position",
			})
		}
	}
	return alerts
}

func (r *Registry) signalAlerts(coinID string, current *domain.Snapshot) []domain.Alert {
	sig, ok := r.signals[coinID]
	if !ok || sig.Status != domain.SignalActive {
		return nil
	}

	alerts := make([]domain.Alert, 0, 4)
	now := r.now().UTC()
	price := current.PriceUSD

	entryDist := math.Abs(price-sig.EntryPoint) / sig.EntryPoint * 100
	if entryDist <= r.thresholds.EntryOpportunity {
		entry := sig.EntryPoint
		alerts = append(alerts, domain.Alert{
			Type:           domain.AlertEntryOpportunity,
			Coin:           coinID,
			Message:        fmt.Sprintf("%s near entry point $%.2f (current $%.2f)", strings.ToUpper(coinID), entry, price),
			Severity:       domain.SeverityHigh,
			Timestamp:      now,
			CurrentPrice:   price,
			TargetPrice:    &entry,
			Recommendation: fmt.Sprintf("Consider %s at the current price", sig.Action),
		})
	}

	if sig.StopLoss != nil {
		stop := *sig.StopLoss
		// Signed distance toward the stop: negative once price has moved
		// through it. The guard suppresses alerts after a >2% breach.
		dist := (price - stop) / stop * 100
		if sig.Action == domain.ActionSell {
			dist = (stop - price) / stop * 100
		}
		if dist <= r.thresholds.StopLossBuffer && dist >= -stopBreachGuardPct {
			alerts = append(alerts, domain.Alert{
				Type:           domain.AlertStopLoss,
				Coin:           coinID,
				Message:        fmt.Sprintf("%s approaching stop loss $%.2f (current $%.2f)", strings.ToUpper(coinID), stop, price),
				Severity:       domain.SeverityCritical,
				Timestamp:      now,
				CurrentPrice:   price,
				TargetPrice:    &stop,
				Recommendation: "Consider cutting the loss to protect capital",
			})
		}
	}

	if sig.TakeProfit != nil {
		target := *sig.TakeProfit
		dist := (target - price) / target * 100
		if sig.Action == domain.ActionSell {
			dist = (price - target) / target * 100
		}
		if dist >= 0 && dist <= r.thresholds.TakeProfit {
			alerts = append(alerts, domain.Alert{
				Type:           domain.AlertTakeProfit,
				Coin:           coinID,
				Message:        fmt.Sprintf("%s approaching take profit $%.2f (current $%.2f)", strings.ToUpper(coinID), target, price),
				Severity:       domain.SeverityHigh,
				Timestamp:      now,
				CurrentPrice:   price,
				TargetPrice:    &target,
				Recommendation: "Consider taking partial or full profit",
			})
		}
	}

	if age := r.now().Sub(sig.CreatedAt); age > signalStaleAfter {
		alerts = append(alerts, domain.Alert{
			Type:           domain.AlertSignalExpiry,
			Coin:           coinID,
			Message:        fmt.Sprintf("%s signal is stale (%.1fh old), fresh analysis needed", strings.ToUpper(coinID), age.Hours()),
			Severity:       domain.SeverityLow,
			Timestamp:      now,
			CurrentPrice:   price,
			Recommendation: "Re-run the market analysis",
		})
	}
	return alerts
}

func isUsablePrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func sanitizePrice(v *float64) *float64 {
	if v == nil || !isUsablePrice(*v) {
		return nil
	}
	out := *v
	return &out
}
