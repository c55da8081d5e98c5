package ledger

import (
	"errors"
	"math"
	"sync"
	"time"

	"coinsentry/internal/domain"
)

const (
	riskFraction     = 0.02
	fallbackFraction = 0.01
	minOrderQuantity = 0.001
)

var (
	ErrInsufficientBalance = errors.New("insufficient free balance")
	ErrPositionExists      = errors.New("position already open for symbol")
	ErrNoPosition          = errors.New("no open position for symbol")
	ErrInvalidOrder        = errors.New("order quantity and price must be positive")
)

// Ledger owns the simulated balance and the open-position map. All mutation
// goes through Open, Close, Valuate and ResetDaily; readers get copies.
type Ledger struct {
	mu        sync.Mutex
	now       func() time.Time
	balance   domain.Balance
	positions map[string]*domain.Position
	stats     domain.PortfolioStats
}

func New(initialBalance float64, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		now:       now,
		balance:   domain.Balance{Free: initialBalance},
		positions: make(map[string]*domain.Position),
	}
}

// Open creates a LONG position for symbol. The order is rejected before any
// state changes when the cost exceeds the free balance or a position for the
// symbol is already open.
func (l *Ledger) Open(symbol string, quantity, price float64) (domain.Position, error) {
	if quantity <= 0 || price <= 0 {
		return domain.Position{}, ErrInvalidOrder
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, open := l.positions[symbol]; open {
		return domain.Position{}, ErrPositionExists
	}
	cost := quantity * price
	if cost > l.balance.Free {
		return domain.Position{}, ErrInsufficientBalance
	}

	l.balance.Free -= cost
	l.balance.Used += cost
	pos := &domain.Position{
		Symbol:     symbol,
		Side:       domain.SideLong,
		EntryPrice: price,
		Quantity:   quantity,
		EntryTime:  l.now().UTC(),
	}
	l.positions[symbol] = pos
	return *pos, nil
}

// Close realizes the P&L of the open position for symbol at price and removes
// it. A close at exactly the entry price counts as neither win nor loss.
func (l *Ledger) Close(symbol string, price float64) (float64, error) {
	if price <= 0 {
		return 0, ErrInvalidOrder
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, open := l.positions[symbol]
	if !open {
		return 0, ErrNoPosition
	}

	pnl := (price - pos.EntryPrice) * pos.Quantity
	l.balance.Free += pos.Quantity * price
	l.balance.Used -= pos.Quantity * pos.EntryPrice
	delete(l.positions, symbol)

	l.stats.TotalTrades++
	if pnl > 0 {
		l.stats.WinTrades++
	} else if pnl < 0 {
		l.stats.LossTrades++
	}
	l.stats.TotalPnL += pnl
	l.stats.DailyPnL += pnl
	return pnl, nil
}

// Valuate recomputes unrealized P&L for every open position against the
// latest known prices. The balance is untouched.
func (l *Ledger) Valuate(prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for symbol, pos := range l.positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		abs := (price - pos.EntryPrice) * pos.Quantity
		pct := 0.0
		if pos.EntryPrice > 0 {
			pct = (price - pos.EntryPrice) / pos.EntryPrice * 100
		}
		pos.Unrealized = domain.PnL{Absolute: abs, Percent: pct}
	}
}

// PositionSize allocates 2% of the free balance as risk capital divided by
// the entry-stop distance. Without a usable stop it falls back to 1% of the
// balance at the entry price. The result never rounds down to zero.
func (l *Ledger) PositionSize(entry float64, stop *float64) float64 {
	if entry <= 0 {
		return 0
	}

	l.mu.Lock()
	free := l.balance.Free
	l.mu.Unlock()

	if stop != nil && *stop > 0 && *stop != entry {
		qty := free * riskFraction / math.Abs(entry-*stop)
		return math.Max(minOrderQuantity, qty)
	}
	return math.Max(minOrderQuantity, free*fallbackFraction/entry)
}

// HasPosition reports whether symbol currently has an open position.
func (l *Ledger) HasPosition(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, open := l.positions[symbol]
	return open
}

// ResetDaily zeroes the daily P&L counter. Driven by an external time
// boundary trigger.
func (l *Ledger) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.DailyPnL = 0
}

// WinRate is the closed-trade win percentage, 0 before any trade closes.
func (l *Ledger) WinRate() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return winRate(l.stats)
}

func winRate(stats domain.PortfolioStats) int {
	decided := stats.WinTrades + stats.LossTrades
	if decided == 0 {
		return 0
	}
	return int(math.Round(float64(stats.WinTrades) / float64(decided) * 100))
}

// Snapshot copies the full portfolio state for reporting and publication.
func (l *Ledger) Snapshot() domain.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[string]domain.Position, len(l.positions))
	for symbol, pos := range l.positions {
		positions[symbol] = *pos
	}
	return domain.Portfolio{
		Balance:   l.balance,
		Positions: positions,
		Stats:     l.stats,
		WinRate:   winRate(l.stats),
	}
}
