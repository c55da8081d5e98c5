package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	DatabaseURL      string
	RedisURL         string

	CoinGeckoAPIKey string
	TaapiAPIKey     string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnalysisIntervalSecs int
	FetchDelaySecs       int
	ManualCooldownSecs   int
	AlertLogSize         int

	PriceChangeThreshold float64
	RSIOverbought        float64
	RSIOversold          float64
	EntryOpportunityPct  float64
	StopLossBufferPct    float64
	TakeProfitPct        float64

	PaperBalanceUSDT float64
	TradingEnabled   bool
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		CoinGeckoAPIKey:  os.Getenv("COINGECKO_API_KEY"),
		TaapiAPIKey:      os.Getenv("TAAPI_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.TaapiAPIKey == "" {
		log.Println("Warning: TAAPI_API_KEY not set, indicator fetches will be skipped")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, advisor will be disabled")
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		} else {
			log.Printf("Warning: invalid TELEGRAM_CHAT_ID=%q, ignoring", v)
		}
	}

	cfg.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.AnalysisIntervalSecs = envInt("ANALYSIS_INTERVAL_SECS", 1800)
	cfg.FetchDelaySecs = envInt("FETCH_DELAY_SECS", 15)
	cfg.ManualCooldownSecs = envInt("MANUAL_ANALYSIS_COOLDOWN_SECS", 30)
	cfg.AlertLogSize = envInt("ALERT_LOG_SIZE", 100)

	cfg.PriceChangeThreshold = envFloat("PRICE_CHANGE_THRESHOLD", 5)
	cfg.RSIOverbought = envFloat("RSI_OVERBOUGHT", 70)
	cfg.RSIOversold = envFloat("RSI_OVERSOLD", 30)
	cfg.EntryOpportunityPct = envFloat("ENTRY_OPPORTUNITY_PCT", 1)
	cfg.StopLossBufferPct = envFloat("STOP_LOSS_BUFFER_PCT", 0.5)
	cfg.TakeProfitPct = envFloat("TAKE_PROFIT_APPROACH_PCT", 2)

	cfg.PaperBalanceUSDT = envFloat("PAPER_BALANCE_USDT", 10000)
	cfg.TradingEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("TRADING_ENABLED")), "true")

	return cfg
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("Warning: invalid %s=%q, using %d", key, v, fallback)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			return n
		}
		log.Printf("Warning: invalid %s=%q, using %g", key, v, fallback)
	}
	return fallback
}
