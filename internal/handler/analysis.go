package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"coinsentry/internal/domain"
	"coinsentry/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Health godoc
// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus godoc
// @Summary      Engine status
// @Description  Returns trading/advisor flags, cycle counters and tracked assets
// @Tags         system
// @Produce      json
// @Success      200  {object}  service.Status
// @Router       /api/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-status")
	defer span.End()

	st := h.engine.Status()
	if h.hub != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":     st,
			"ws_clients": h.hub.ClientCount(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

// GetAlerts godoc
// @Summary      Recent alerts
// @Description  Returns the most recent alerts, newest last. source=db reads the persisted history instead of the in-memory log
// @Tags         alerts
// @Produce      json
// @Param        limit   query  int     false  "Number of alerts (default 50, max 200)"  default(50)
// @Param        source  query  string  false  "memory (default) or db"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/alerts [get]
func (h *Handler) GetAlerts(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-alerts")
	defer span.End()

	limit := 50
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	switch source := strings.TrimSpace(c.Query("source")); source {
	case "", "memory":
		c.JSON(http.StatusOK, gin.H{"alerts": h.engine.RecentAlerts(limit)})
	case "db":
		alerts, err := h.engine.PersistedAlerts(ctx, limit)
		if err != nil {
			if errors.Is(err, service.ErrPersistenceDisabled) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be memory or db"})
	}
}

// GetSignals godoc
// @Summary      Active trading signals
// @Tags         signals
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/signals [get]
func (h *Handler) GetSignals(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-signals")
	defer span.End()

	c.JSON(http.StatusOK, gin.H{"signals": h.engine.ActiveSignals()})
}

// GetPositions godoc
// @Summary      Open paper positions
// @Tags         trading
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/positions [get]
func (h *Handler) GetPositions(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-positions")
	defer span.End()

	c.JSON(http.StatusOK, gin.H{"positions": h.engine.Portfolio().Positions})
}

// GetPortfolio godoc
// @Summary      Paper portfolio state
// @Description  Balance, open positions, trade statistics and win rate
// @Tags         trading
// @Produce      json
// @Success      200  {object}  domain.Portfolio
// @Router       /api/portfolio [get]
func (h *Handler) GetPortfolio(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-portfolio")
	defer span.End()

	c.JSON(http.StatusOK, h.engine.Portfolio())
}

// GetPrice godoc
// @Summary      Latest cached snapshot for one asset
// @Tags         prices
// @Produce      json
// @Param        coin  path  string  true  "CoinGecko id (bitcoin, ethereum)"
// @Success      200  {object}  domain.Snapshot
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/prices/{coin} [get]
func (h *Handler) GetPrice(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-price")
	defer span.End()

	coinID := strings.ToLower(strings.TrimSpace(c.Param("coin")))
	span.SetAttributes(attribute.String("coin", coinID))
	if !domain.IsSupportedCoin(coinID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "unsupported coin: " + coinID,
			"supported_coins": domain.SupportedCoins,
		})
		return
	}

	snap, err := h.engine.LatestSnapshot(ctx, coinID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no fresh snapshot, wait for the next cycle"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// AnalyzeCoin godoc
// @Summary      On-demand analysis for one asset
// @Description  Fetches fresh market data and evaluates alert rules; rate limited per coin
// @Tags         analysis
// @Produce      json
// @Param        coin  path  string  true  "CoinGecko id (bitcoin, ethereum)"
// @Success      200  {object}  domain.CoinAnalysis
// @Failure      400  {object}  map[string]string
// @Failure      429  {object}  map[string]string
// @Router       /api/analyze/{coin} [post]
func (h *Handler) AnalyzeCoin(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.analyze-coin")
	defer span.End()

	coinID := strings.ToLower(strings.TrimSpace(c.Param("coin")))
	span.SetAttributes(attribute.String("coin", coinID))

	analysis, err := h.engine.AnalyzeCoin(ctx, coinID)
	if err != nil {
		if strings.Contains(err.Error(), "rate limited") {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// TriggerCycle godoc
// @Summary      Start a full analysis cycle now
// @Description  Kicks off one cycle over all tracked assets; rejects when one is already running
// @Tags         analysis
// @Produce      json
// @Success      202  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/cycle [post]
func (h *Handler) TriggerCycle(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.trigger-cycle")
	defer span.End()

	if !h.engine.TriggerCycle() {
		c.JSON(http.StatusConflict, gin.H{"error": "cycle already running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cycle": "started"})
}

// StartTrading godoc
// @Summary      Enable paper trading
// @Tags         trading
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/trading/start [post]
func (h *Handler) StartTrading(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.start-trading")
	defer span.End()

	h.engine.StartTrading()
	c.JSON(http.StatusOK, gin.H{"trading": "enabled"})
}

// StopTrading godoc
// @Summary      Disable paper trading
// @Description  Open positions stay open; only new executions stop
// @Tags         trading
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/trading/stop [post]
func (h *Handler) StopTrading(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.stop-trading")
	defer span.End()

	h.engine.StopTrading()
	c.JSON(http.StatusOK, gin.H{"trading": "disabled"})
}
