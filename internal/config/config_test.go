package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("ANALYSIS_INTERVAL_SECS", "")
	t.Setenv("PRICE_CHANGE_THRESHOLD", "")
	t.Setenv("TRADING_ENABLED", "")

	cfg := Load()

	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected redis default, got %q", cfg.RedisURL)
	}
	if cfg.AnalysisIntervalSecs != 1800 {
		t.Fatalf("expected 1800s analysis interval, got %d", cfg.AnalysisIntervalSecs)
	}
	if cfg.FetchDelaySecs != 15 {
		t.Fatalf("expected 15s fetch delay, got %d", cfg.FetchDelaySecs)
	}
	if cfg.PriceChangeThreshold != 5 {
		t.Fatalf("expected 5%% price change threshold, got %g", cfg.PriceChangeThreshold)
	}
	if cfg.PaperBalanceUSDT != 10000 {
		t.Fatalf("expected 10000 paper balance, got %g", cfg.PaperBalanceUSDT)
	}
	if cfg.TradingEnabled {
		t.Fatal("expected trading disabled by default")
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("unexpected default model %q", cfg.OpenAIModel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "12345")
	t.Setenv("FETCH_DELAY_SECS", "2")
	t.Setenv("STOP_LOSS_BUFFER_PCT", "0.75")
	t.Setenv("TRADING_ENABLED", "TRUE")

	cfg := Load()

	if cfg.TelegramChatID != 12345 {
		t.Fatalf("expected chat id 12345, got %d", cfg.TelegramChatID)
	}
	if cfg.FetchDelaySecs != 2 {
		t.Fatalf("expected 2s fetch delay, got %d", cfg.FetchDelaySecs)
	}
	if cfg.StopLossBufferPct != 0.75 {
		t.Fatalf("expected 0.75 stop buffer, got %g", cfg.StopLossBufferPct)
	}
	if !cfg.TradingEnabled {
		t.Fatal("expected trading enabled")
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("ANALYSIS_INTERVAL_SECS", "not-a-number")
	t.Setenv("RSI_OVERBOUGHT", "-4")

	cfg := Load()

	if cfg.AnalysisIntervalSecs != 1800 {
		t.Fatalf("expected fallback interval, got %d", cfg.AnalysisIntervalSecs)
	}
	if cfg.RSIOverbought != 70 {
		t.Fatalf("expected fallback RSI bound, got %g", cfg.RSIOverbought)
	}
}
