package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"coinsentry/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const coinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoProvider fetches per-asset price snapshots and daily price history.
type CoinGeckoProvider struct {
	tracer  trace.Tracer
	client  *http.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func NewCoinGeckoProvider(tracer trace.Tracer, apiKey string) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		tracer:  tracer,
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: coinGeckoBaseURL,
		apiKey:  apiKey,
		now:     time.Now,
	}
}

type simplePriceEntry struct {
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
	USD24hVol    float64 `json:"usd_24h_vol"`
	USDMarketCap float64 `json:"usd_market_cap"`
}

// FetchSnapshot returns the current market state for one CoinGecko id.
func (p *CoinGeckoProvider) FetchSnapshot(ctx context.Context, coinID string) (*domain.Snapshot, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-snapshot")
	defer span.End()

	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")
	q.Set("include_market_cap", "true")

	var payload map[string]simplePriceEntry
	if err := p.getJSON(ctx, p.baseURL+"/simple/price?"+q.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("coingecko simple price for %s: %w", coinID, err)
	}

	entry, ok := payload[coinID]
	if !ok {
		return nil, fmt.Errorf("coingecko response missing coin %s", coinID)
	}
	return &domain.Snapshot{
		CoinID:    coinID,
		PriceUSD:  entry.USD,
		Change24h: entry.USD24hChange,
		Volume24h: entry.USD24hVol,
		MarketCap: entry.USDMarketCap,
		FetchedAt: p.now().UTC(),
	}, nil
}

type marketChartResponse struct {
	Prices [][]float64 `json:"prices"`
}

// FetchHistory returns daily price points for the last `days` days, oldest
// first. Used as context for the advisor prompt, not for alerting.
func (p *CoinGeckoProvider) FetchHistory(ctx context.Context, coinID string, days int) ([]domain.PricePoint, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-history")
	defer span.End()

	if days <= 0 {
		days = 30
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", fmt.Sprintf("%d", days))
	q.Set("interval", "daily")

	var payload marketChartResponse
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?%s", p.baseURL, coinID, q.Encode())
	if err := p.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("coingecko market chart for %s: %w", coinID, err)
	}

	points := make([]domain.PricePoint, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		if len(pair) < 2 {
			continue
		}
		points = append(points, domain.PricePoint{
			Time:  time.UnixMilli(int64(pair[0])).UTC(),
			Price: pair[1],
		})
	}
	return points, nil
}

func (p *CoinGeckoProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
