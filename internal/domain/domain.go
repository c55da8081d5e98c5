package domain

import "time"

// SupportedCoins lists the CoinGecko ids the engine analyzes each cycle.
var SupportedCoins = []string{"bitcoin", "ethereum"}

// CoinPair maps a CoinGecko id to its exchange trading pair.
var CoinPair = map[string]string{
	"bitcoin":  "BTC/USDT",
	"ethereum": "ETH/USDT",
}

// IsSupportedCoin reports whether coinID is one of the configured assets.
func IsSupportedCoin(coinID string) bool {
	_, ok := CoinPair[coinID]
	return ok
}

// Snapshot is the per-asset market state for one cycle. It is replaced every
// cycle; the previous snapshot survives only long enough to compute deltas.
type Snapshot struct {
	CoinID    string    `json:"coin_id"`
	PriceUSD  float64   `json:"price_usd"`
	Change24h float64   `json:"change_24h"`
	Volume24h float64   `json:"volume_24h"`
	MarketCap float64   `json:"market_cap"`
	FetchedAt time.Time `json:"fetched_at"`
}

type MACD struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type Bollinger struct {
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
	Middle float64 `json:"middle"`
}

type Stochastic struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

type IndicatorSummary struct {
	OverallSignal string  `json:"overall_signal"`
	Confidence    float64 `json:"confidence"`
}

// IndicatorSet is the technical readout for one asset. All fields are
// optional: a cycle run without indicator credentials carries an empty set.
type IndicatorSet struct {
	RSI          *float64          `json:"rsi,omitempty"`
	MACD         *MACD             `json:"macd,omitempty"`
	EMA          *float64          `json:"ema,omitempty"`
	SMA          *float64          `json:"sma,omitempty"`
	Bollinger    *Bollinger        `json:"bollinger,omitempty"`
	Stochastic   *Stochastic       `json:"stochastic,omitempty"`
	VolumeSignal string            `json:"volume_signal,omitempty"`
	Summary      *IndicatorSummary `json:"summary,omitempty"`
}

func (s IndicatorSet) Empty() bool {
	return s.RSI == nil && s.MACD == nil && s.EMA == nil && s.SMA == nil &&
		s.Bollinger == nil && s.Stochastic == nil && s.Summary == nil
}

type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

type SignalStatus string

const (
	SignalActive    SignalStatus = "ACTIVE"
	SignalCompleted SignalStatus = "COMPLETED"
	SignalExpired   SignalStatus = "EXPIRED"
)

// ProposedSignal is the parsed numeric core of an external analysis response.
// StopLoss and TakeProfit stay nil when the response omitted them.
type ProposedSignal struct {
	Action     SignalAction `json:"action"`
	Confidence float64      `json:"confidence"`
	EntryPoint float64      `json:"entry_point"`
	StopLoss   *float64     `json:"stop_loss,omitempty"`
	TakeProfit *float64     `json:"take_profit,omitempty"`
	Reasoning  string       `json:"reasoning,omitempty"`
}

// TradingSignal is an accepted proposal tracked by the registry. At most one
// signal is active per coin; a newer proposal overwrites the older one.
type TradingSignal struct {
	Coin       string       `json:"coin"`
	Action     SignalAction `json:"action"`
	Confidence float64      `json:"confidence"`
	EntryPoint float64      `json:"entry_point"`
	StopLoss   *float64     `json:"stop_loss,omitempty"`
	TakeProfit *float64     `json:"take_profit,omitempty"`
	Reasoning  string       `json:"reasoning,omitempty"`
	Status     SignalStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

type AlertType string

const (
	AlertPriceChange      AlertType = "PRICE_CHANGE"
	AlertRSIOverbought    AlertType = "RSI_OVERBOUGHT"
	AlertRSIOversold      AlertType = "RSI_OVERSOLD"
	AlertEntryOpportunity AlertType = "ENTRY_OPPORTUNITY"
	AlertStopLoss         AlertType = "STOP_LOSS_ALERT"
	AlertTakeProfit       AlertType = "TAKE_PROFIT_ALERT"
	AlertSignalExpiry     AlertType = "SIGNAL_EXPIRY"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is immutable once created. It is appended to the bounded alert log
// and independently forwarded to notification channels.
type Alert struct {
	Type           AlertType `json:"type"`
	Coin           string    `json:"coin"`
	Message        string    `json:"message"`
	Severity       Severity  `json:"severity"`
	Timestamp      time.Time `json:"timestamp"`
	CurrentPrice   float64   `json:"current_price"`
	TargetPrice    *float64  `json:"target_price,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
}

type PositionSide string

const SideLong PositionSide = "LONG"

type PnL struct {
	Absolute float64 `json:"absolute"`
	Percent  float64 `json:"percent"`
}

// Position is one simulated holding. A symbol has at most one open Position.
type Position struct {
	Symbol     string       `json:"symbol"`
	Side       PositionSide `json:"side"`
	EntryPrice float64      `json:"entry_price"`
	Quantity   float64      `json:"quantity"`
	EntryTime  time.Time    `json:"entry_time"`
	Unrealized PnL          `json:"unrealized_pnl"`
}

type Balance struct {
	Free float64 `json:"free"`
	Used float64 `json:"used"`
}

type PortfolioStats struct {
	TotalTrades int     `json:"total_trades"`
	WinTrades   int     `json:"win_trades"`
	LossTrades  int     `json:"loss_trades"`
	TotalPnL    float64 `json:"total_pnl"`
	DailyPnL    float64 `json:"daily_pnl"`
}

// Portfolio is a point-in-time copy of the ledger state, safe to publish.
type Portfolio struct {
	Balance   Balance             `json:"balance"`
	Positions map[string]Position `json:"positions"`
	Stats     PortfolioStats      `json:"stats"`
	WinRate   int                 `json:"win_rate"`
}

// CoinAnalysis is the per-asset output of one cycle. Failed marks assets
// skipped for this cycle only; the rest of the batch still completes.
type CoinAnalysis struct {
	Coin       string       `json:"coin"`
	Snapshot   *Snapshot    `json:"snapshot,omitempty"`
	Indicators IndicatorSet `json:"indicators"`
	Failed     bool         `json:"failed,omitempty"`
}

// CycleResult is published to live subscribers after every cycle, even a
// partial one.
type CycleResult struct {
	CycleID   int64          `json:"cycle_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      []CoinAnalysis `json:"data"`
	Alerts    []Alert        `json:"alerts"`
	Portfolio *Portfolio     `json:"portfolio,omitempty"`
}

// PricePoint is one sample of historical price data fed to the advisor.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}
