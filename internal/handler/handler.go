package handler

import (
	"context"

	"coinsentry/internal/domain"
	"coinsentry/internal/realtime"
	"coinsentry/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the slice of the analysis service the HTTP API needs.
type Engine interface {
	Status() service.Status
	ActiveSignals() []domain.TradingSignal
	Portfolio() domain.Portfolio
	RecentAlerts(n int) []domain.Alert
	PersistedAlerts(ctx context.Context, n int) ([]domain.Alert, error)
	AnalyzeCoin(ctx context.Context, coinID string) (*domain.CoinAnalysis, error)
	LatestSnapshot(ctx context.Context, coinID string) (*domain.Snapshot, error)
	TriggerCycle() bool
	StartTrading()
	StopTrading()
}

type Handler struct {
	tracer trace.Tracer
	engine Engine
	hub    *realtime.Hub
}

func New(tracer trace.Tracer, engine Engine, hub *realtime.Hub) *Handler {
	return &Handler{
		tracer: tracer,
		engine: engine,
		hub:    hub,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/status", h.GetStatus)
	r.GET("/api/alerts", h.GetAlerts)
	r.GET("/api/signals", h.GetSignals)
	r.GET("/api/positions", h.GetPositions)
	r.GET("/api/portfolio", h.GetPortfolio)
	r.GET("/api/prices/:coin", h.GetPrice)
	r.POST("/api/analyze/:coin", h.AnalyzeCoin)
	r.POST("/api/cycle", h.TriggerCycle)
	r.POST("/api/trading/start", h.StartTrading)
	r.POST("/api/trading/stop", h.StopTrading)
	r.GET("/ws", h.ServeWS)
}
