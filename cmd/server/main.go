package main

import (
	"context"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"coinsentry/internal/advisor"
	"coinsentry/internal/bot"
	"coinsentry/internal/cache"
	"coinsentry/internal/config"
	"coinsentry/internal/db"
	"coinsentry/internal/domain"
	"coinsentry/internal/handler"
	"coinsentry/internal/job"
	"coinsentry/internal/ledger"
	"coinsentry/internal/provider"
	"coinsentry/internal/realtime"
	"coinsentry/internal/registry"
	"coinsentry/internal/repository"
	"coinsentry/internal/scheduler"
	"coinsentry/internal/service"
	"coinsentry/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "coinsentry/docs"
)

var (
	loadEnvFunc         = godotenv.Load
	loadConfigFunc      = config.Load
	initPostgresFunc    = db.InitPostgres
	initRedisFunc       = cache.InitRedis
	initTracerFunc      = tracing.InitTracer
	newAnalysisRepoFunc = repository.NewAnalysisRepository
	newSchedulerFunc    = scheduler.New
	newAdvisorFunc      = func(tracer trace.Tracer, cfg *config.Config) service.Advisor {
		return advisor.New(tracer, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	newAnalysisServiceFunc = service.NewAnalysisService
	newPollerFunc          = job.NewAnalysisPoller
	startPollerFunc        = func(p *job.AnalysisPoller, ctx context.Context) { go p.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

func httpAddrFromEnv() string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return ":8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// @title           CoinSentry API
// @version         1.0
// @description     Signal and paper-trading execution engine with OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	initPostgresFunc(ctx, cfg.DatabaseURL)
	initRedisFunc(ctx, cfg.RedisURL)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repository and run migrations
	analysisRepo := newAnalysisRepoFunc(db.Pool, tracer)
	if db.Pool != nil {
		if err := analysisRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	// Market data providers behind the rate-limited scheduler
	cgProvider := provider.NewCoinGeckoProvider(tracer, cfg.CoinGeckoAPIKey)
	var indicators scheduler.IndicatorSource
	if cfg.TaapiAPIKey != "" {
		indicators = provider.NewTaapiProvider(tracer, cfg.TaapiAPIKey)
	}
	sched := newSchedulerFunc(tracer, cgProvider, indicators, time.Duration(cfg.FetchDelaySecs)*time.Second)

	// Core engine state
	reg := registry.New(registry.Thresholds{
		PriceChange:      cfg.PriceChangeThreshold,
		RSIOverbought:    cfg.RSIOverbought,
		RSIOversold:      cfg.RSIOversold,
		EntryOpportunity: cfg.EntryOpportunityPct,
		StopLossBuffer:   cfg.StopLossBufferPct,
		TakeProfit:       cfg.TakeProfitPct,
	}, cfg.AlertLogSize, time.Now)
	led := ledger.New(cfg.PaperBalanceUSDT, time.Now)
	snapshots := cache.NewSnapshotStore(tracer, cache.Client)
	adv := newAdvisorFunc(tracer, cfg)
	hub := realtime.NewHub()

	svc := newAnalysisServiceFunc(tracer, sched, cgProvider, snapshots, adv, reg, led, domain.SupportedCoins, time.Now)
	svc.SetManualCooldown(time.Duration(cfg.ManualCooldownSecs) * time.Second)
	svc.WithBroadcast(hub)
	if db.Pool != nil {
		svc.WithPersistence(analysisRepo)
	}
	if cfg.TradingEnabled {
		svc.StartTrading()
	}

	// Start Telegram bot and wire proactive alerts
	alerts := startTelegramBotFunc(cfg.TelegramBotToken, svc)
	if alerts != nil {
		if cfg.TelegramChatID != 0 {
			alerts.Subscribe(cfg.TelegramChatID)
		}
		svc.WithNotifier(alerts)
	}

	// Start the recurring analysis cycle (stopped by ctx cancel)
	poller := newPollerFunc(tracer, svc, led, time.Duration(cfg.AnalysisIntervalSecs)*time.Second)
	startPollerFunc(poller, ctx)

	// Create handlers and routes
	h := handler.New(tracer, svc, hub)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("coinsentry"))
	r.Use(cors.Default())

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    httpAddrFromEnv(),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
