package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"coinsentry/internal/domain"
	"coinsentry/internal/realtime"
	"coinsentry/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEngine struct {
	status      service.Status
	signals     []domain.TradingSignal
	portfolio   domain.Portfolio
	alerts      []domain.Alert
	dbAlerts    []domain.Alert
	dbAlertsErr error
	analysis    *domain.CoinAnalysis
	analysisErr error
	snapshot    *domain.Snapshot
	snapshotErr error
	trading     bool
	cycleBusy   bool
	triggered   int
}

func (e *stubEngine) Status() service.Status                { return e.status }
func (e *stubEngine) ActiveSignals() []domain.TradingSignal { return e.signals }
func (e *stubEngine) Portfolio() domain.Portfolio           { return e.portfolio }
func (e *stubEngine) RecentAlerts(n int) []domain.Alert     { return e.alerts }
func (e *stubEngine) StartTrading()                         { e.trading = true }
func (e *stubEngine) StopTrading()                          { e.trading = false }

func (e *stubEngine) PersistedAlerts(ctx context.Context, n int) ([]domain.Alert, error) {
	return e.dbAlerts, e.dbAlertsErr
}

func (e *stubEngine) TriggerCycle() bool {
	if e.cycleBusy {
		return false
	}
	e.triggered++
	return true
}

func (e *stubEngine) AnalyzeCoin(ctx context.Context, coinID string) (*domain.CoinAnalysis, error) {
	if e.analysisErr != nil {
		return nil, e.analysisErr
	}
	return e.analysis, nil
}

func (e *stubEngine) LatestSnapshot(ctx context.Context, coinID string) (*domain.Snapshot, error) {
	return e.snapshot, e.snapshotErr
}

func newTestRouter(engine Engine) *gin.Engine {
	h := New(trace.NewNoopTracerProvider().Tracer("test"), engine, realtime.NewHub())
	router := gin.New()
	h.RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(newTestRouter(&stubEngine{}), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetStatusIncludesClientCount(t *testing.T) {
	engine := &stubEngine{status: service.Status{CycleCount: 3, TradingEnabled: true}}
	w := doRequest(newTestRouter(engine), http.MethodGet, "/api/status")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Status    service.Status `json:"status"`
		WSClients *int           `json:"ws_clients"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status.CycleCount != 3 || !body.Status.TradingEnabled {
		t.Fatalf("unexpected status: %+v", body.Status)
	}
	if body.WSClients == nil {
		t.Fatal("expected ws_clients in status payload")
	}
}

func TestGetAlertsLimitValidation(t *testing.T) {
	router := newTestRouter(&stubEngine{})
	for _, path := range []string{"/api/alerts?limit=0", "/api/alerts?limit=500", "/api/alerts?limit=abc"} {
		if w := doRequest(router, http.MethodGet, path); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
	if w := doRequest(router, http.MethodGet, "/api/alerts?limit=10"); w.Code != http.StatusOK {
		t.Errorf("expected 200 for valid limit, got %d", w.Code)
	}
}

func TestGetAlertsSource(t *testing.T) {
	engine := &stubEngine{
		alerts:   []domain.Alert{{Coin: "bitcoin"}},
		dbAlerts: []domain.Alert{{Coin: "ethereum"}, {Coin: "bitcoin"}},
	}
	router := newTestRouter(engine)

	readAlerts := func(path string) []domain.Alert {
		t.Helper()
		w := doRequest(router, http.MethodGet, path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		var body struct {
			Alerts []domain.Alert `json:"alerts"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		return body.Alerts
	}

	if got := readAlerts("/api/alerts"); len(got) != 1 {
		t.Fatalf("expected the in-memory log by default, got %+v", got)
	}
	if got := readAlerts("/api/alerts?source=db"); len(got) != 2 {
		t.Fatalf("expected persisted alerts for source=db, got %+v", got)
	}

	if w := doRequest(router, http.MethodGet, "/api/alerts?source=file"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown source, got %d", w.Code)
	}

	engine.dbAlertsErr = service.ErrPersistenceDisabled
	if w := doRequest(router, http.MethodGet, "/api/alerts?source=db"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without persistence, got %d", w.Code)
	}
}

func TestGetPrice(t *testing.T) {
	engine := &stubEngine{snapshot: &domain.Snapshot{CoinID: "bitcoin", PriceUSD: 43000}}
	router := newTestRouter(engine)

	w := doRequest(router, http.MethodGet, "/api/prices/bitcoin")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if snap.PriceUSD != 43000 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGetPriceUnsupportedCoin(t *testing.T) {
	w := doRequest(newTestRouter(&stubEngine{}), http.MethodGet, "/api/prices/dogecoin")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetPriceExpiredSnapshot(t *testing.T) {
	w := doRequest(newTestRouter(&stubEngine{}), http.MethodGet, "/api/prices/bitcoin")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAnalyzeCoinRateLimited(t *testing.T) {
	engine := &stubEngine{analysisErr: fmt.Errorf("analysis for bitcoin is rate limited, retry after 12 seconds")}
	w := doRequest(newTestRouter(engine), http.MethodPost, "/api/analyze/bitcoin")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestAnalyzeCoinUnsupported(t *testing.T) {
	engine := &stubEngine{analysisErr: errors.New("unsupported coin: dogecoin")}
	w := doRequest(newTestRouter(engine), http.MethodPost, "/api/analyze/dogecoin")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAnalyzeCoinSuccess(t *testing.T) {
	engine := &stubEngine{analysis: &domain.CoinAnalysis{
		Coin:     "bitcoin",
		Snapshot: &domain.Snapshot{CoinID: "bitcoin", PriceUSD: 43000},
	}}
	w := doRequest(newTestRouter(engine), http.MethodPost, "/api/analyze/bitcoin")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestTriggerCycle(t *testing.T) {
	engine := &stubEngine{}
	router := newTestRouter(engine)

	if w := doRequest(router, http.MethodPost, "/api/cycle"); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if engine.triggered != 1 {
		t.Fatalf("expected 1 triggered cycle, got %d", engine.triggered)
	}

	engine.cycleBusy = true
	if w := doRequest(router, http.MethodPost, "/api/cycle"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while busy, got %d", w.Code)
	}
}

func TestTradingToggle(t *testing.T) {
	engine := &stubEngine{}
	router := newTestRouter(engine)

	if w := doRequest(router, http.MethodPost, "/api/trading/start"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !engine.trading {
		t.Fatal("expected trading enabled")
	}
	if w := doRequest(router, http.MethodPost, "/api/trading/stop"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if engine.trading {
		t.Fatal("expected trading disabled")
	}
}

func TestGetSignalsAndPortfolio(t *testing.T) {
	engine := &stubEngine{
		signals:   []domain.TradingSignal{{Coin: "bitcoin", Action: domain.ActionBuy, EntryPoint: 43000}},
		portfolio: domain.Portfolio{Balance: domain.Balance{Free: 10000}, WinRate: 50},
	}
	router := newTestRouter(engine)

	w := doRequest(router, http.MethodGet, "/api/signals")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Signals []domain.TradingSignal `json:"signals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Signals) != 1 || body.Signals[0].Coin != "bitcoin" {
		t.Fatalf("unexpected signals: %+v", body.Signals)
	}

	w = doRequest(router, http.MethodGet, "/api/portfolio")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var portfolio domain.Portfolio
	if err := json.Unmarshal(w.Body.Bytes(), &portfolio); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if portfolio.Balance.Free != 10000 {
		t.Fatalf("unexpected portfolio: %+v", portfolio)
	}
}
