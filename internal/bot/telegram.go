package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"coinsentry/internal/domain"
	"coinsentry/internal/service"

	tele "gopkg.in/telebot.v3"
)

// Engine is the slice of the analysis service the bot commands need.
type Engine interface {
	Status() service.Status
	ActiveSignals() []domain.TradingSignal
	Portfolio() domain.Portfolio
	RecentAlerts(n int) []domain.Alert
	AnalyzeCoin(ctx context.Context, coinID string) (*domain.CoinAnalysis, error)
	StartTrading()
	StopTrading()
}

func StartTelegramBot(token string, engine Engine) *AlertDispatcher {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	alerts := NewAlertDispatcher(b)

	b.Handle("/start", func(c tele.Context) error {
		return c.Send("Paper-trading analysis bot ready.\nUse /help for the command list.")
	})

	b.Handle("/help", func(c tele.Context) error {
		return c.Send(helpText())
	})

	b.Handle("/status", func(c tele.Context) error {
		return c.Send(formatStatus(engine.Status()))
	})

	b.Handle("/signals", func(c tele.Context) error {
		signals := engine.ActiveSignals()
		if len(signals) == 0 {
			return c.Send("No active signals right now.")
		}
		lines := make([]string, 0, len(signals)+1)
		lines = append(lines, "Active signals:")
		for _, s := range signals {
			lines = append(lines, formatSignal(s))
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.Handle("/positions", func(c tele.Context) error {
		portfolio := engine.Portfolio()
		if len(portfolio.Positions) == 0 {
			return c.Send("No open positions.")
		}
		lines := make([]string, 0, len(portfolio.Positions)+1)
		lines = append(lines, "Open positions:")
		for _, p := range portfolio.Positions {
			lines = append(lines, formatPosition(p))
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.Handle("/portfolio", func(c tele.Context) error {
		return c.Send(formatPortfolio(engine.Portfolio()))
	})

	b.Handle("/analyze", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send(fmt.Sprintf("Usage: /analyze bitcoin\nSupported: %s", strings.Join(domain.SupportedCoins, ", ")))
		}
		coinID := strings.ToLower(args[0])
		analysis, err := engine.AnalyzeCoin(context.Background(), coinID)
		if err != nil {
			return c.Send(fmt.Sprintf("Analysis failed: %v", err))
		}
		if analysis.Failed || analysis.Snapshot == nil {
			return c.Send(fmt.Sprintf("Could not fetch market data for %s, try again later.", coinID))
		}
		return c.Send(formatAnalysis(*analysis))
	})

	b.Handle("/trading", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			if engine.Status().TradingEnabled {
				return c.Send("Paper trading: ON")
			}
			return c.Send("Paper trading: OFF")
		}
		switch strings.ToLower(args[0]) {
		case "on":
			engine.StartTrading()
			return c.Send("Paper trading enabled.")
		case "off":
			engine.StopTrading()
			return c.Send("Paper trading disabled. Open positions stay open.")
		default:
			return c.Send("Usage: /trading on | /trading off")
		}
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		mode, err := parseAlertMode(c.Args())
		if err != nil {
			return c.Send("Usage: /alerts on | /alerts off | /alerts status")
		}

		switch mode {
		case "on":
			if alerts.Subscribe(chat.ID) {
				return c.Send("Proactive alerts enabled for this chat.")
			}
			return c.Send("Proactive alerts are already enabled for this chat.")
		case "off":
			if alerts.Unsubscribe(chat.ID) {
				return c.Send("Proactive alerts disabled for this chat.")
			}
			return c.Send("Proactive alerts are already disabled for this chat.")
		default:
			if alerts.IsSubscribed(chat.ID) {
				return c.Send("Alerts status: ON")
			}
			return c.Send("Alerts status: OFF")
		}
	})

	log.Println("Telegram bot started")
	go b.Start()
	return alerts
}

func helpText() string {
	return strings.Join([]string{
		"/status - engine status",
		"/signals - active trading signals",
		"/positions - open paper positions",
		"/portfolio - balance and trade stats",
		"/analyze <coin> - on-demand analysis",
		"/trading on|off - toggle paper trading",
		"/alerts on|off|status - proactive alerts for this chat",
	}, "\n")
}

func formatStatus(st service.Status) string {
	trading := "OFF"
	if st.TradingEnabled {
		trading = "ON"
	}
	advisor := "OFF"
	if st.AdvisorEnabled {
		advisor = "ON"
	}
	last := "never"
	if !st.LastCycleAt.IsZero() {
		last = st.LastCycleAt.UTC().Format(time.RFC822)
	}
	return fmt.Sprintf(
		"Trading: %s\nAdvisor: %s\nCycles run: %d\nLast cycle: %s\nActive signals: %d\nOpen positions: %d\nTracked: %s",
		trading, advisor, st.CycleCount, last, st.ActiveSignals, st.OpenPositions, strings.Join(st.TrackedCoins, ", "),
	)
}

func formatSignal(s domain.TradingSignal) string {
	parts := []string{fmt.Sprintf("%s %s entry $%.2f conf %.0f%%", s.Coin, s.Action, s.EntryPoint, s.Confidence*100)}
	if s.StopLoss != nil {
		parts = append(parts, fmt.Sprintf("stop $%.2f", *s.StopLoss))
	}
	if s.TakeProfit != nil {
		parts = append(parts, fmt.Sprintf("target $%.2f", *s.TakeProfit))
	}
	return strings.Join(parts, " ")
}

func formatPosition(p domain.Position) string {
	return fmt.Sprintf("%s %s %.4f @ $%.2f (pnl $%.2f / %.2f%%)",
		p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.Unrealized.Absolute, p.Unrealized.Percent)
}

func formatPortfolio(p domain.Portfolio) string {
	return fmt.Sprintf(
		"Balance: $%.2f free / $%.2f used\nTrades: %d (W%d / L%d)\nWin rate: %d%%\nTotal PnL: $%.2f\nDaily PnL: $%.2f",
		p.Balance.Free, p.Balance.Used,
		p.Stats.TotalTrades, p.Stats.WinTrades, p.Stats.LossTrades,
		p.WinRate, p.Stats.TotalPnL, p.Stats.DailyPnL,
	)
}

func formatAnalysis(a domain.CoinAnalysis) string {
	snap := a.Snapshot
	lines := []string{
		fmt.Sprintf("%s\nPrice: $%.2f\n24h Change: %.2f%%\n24h Volume: $%.0f", strings.ToUpper(a.Coin), snap.PriceUSD, snap.Change24h, snap.Volume24h),
	}
	if a.Indicators.RSI != nil {
		lines = append(lines, fmt.Sprintf("RSI: %.2f", *a.Indicators.RSI))
	}
	if a.Indicators.MACD != nil {
		lines = append(lines, fmt.Sprintf("MACD: %.4f (signal %.4f)", a.Indicators.MACD.Value, a.Indicators.MACD.Signal))
	}
	return strings.Join(lines, "\n")
}
