package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"coinsentry/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const taapiBaseURL = "https://api.taapi.io"

// TaapiProvider fetches technical indicators for an exchange pair. Without an
// API key it is constructed unavailable and every fetch returns an empty set,
// so a cycle degrades instead of halting.
type TaapiProvider struct {
	tracer   trace.Tracer
	client   *http.Client
	baseURL  string
	apiKey   string
	exchange string
	interval string
}

func NewTaapiProvider(tracer trace.Tracer, apiKey string) *TaapiProvider {
	return &TaapiProvider{
		tracer:   tracer,
		client:   &http.Client{Timeout: 15 * time.Second},
		baseURL:  taapiBaseURL,
		apiKey:   apiKey,
		exchange: "binance",
		interval: "1h",
	}
}

// Available reports whether an indicator credential is configured.
func (p *TaapiProvider) Available() bool { return p.apiKey != "" }

type taapiRSIResponse struct {
	Value float64 `json:"value"`
}

type taapiMACDResponse struct {
	ValueMACD       float64 `json:"valueMACD"`
	ValueMACDSignal float64 `json:"valueMACDSignal"`
	ValueMACDHist   float64 `json:"valueMACDHist"`
}

// FetchIndicators returns the technical readout for pair (e.g. "BTC/USDT").
// A failed indicator leaves its field unset in the returned set; the error
// joins whatever failed so callers can keep the partial readout.
func (p *TaapiProvider) FetchIndicators(ctx context.Context, pair string) (domain.IndicatorSet, error) {
	ctx, span := p.tracer.Start(ctx, "taapi.fetch-indicators")
	defer span.End()

	if !p.Available() {
		return domain.IndicatorSet{}, nil
	}

	var set domain.IndicatorSet
	var errs []error

	var rsi taapiRSIResponse
	if err := p.getJSON(ctx, "rsi", pair, &rsi); err != nil {
		errs = append(errs, fmt.Errorf("taapi rsi for %s: %w", pair, err))
	} else {
		set.RSI = &rsi.Value
	}

	var macd taapiMACDResponse
	if err := p.getJSON(ctx, "macd", pair, &macd); err != nil {
		errs = append(errs, fmt.Errorf("taapi macd for %s: %w", pair, err))
	} else {
		set.MACD = &domain.MACD{
			Value:     macd.ValueMACD,
			Signal:    macd.ValueMACDSignal,
			Histogram: macd.ValueMACDHist,
		}
	}
	return set, errors.Join(errs...)
}

func (p *TaapiProvider) getJSON(ctx context.Context, indicator, pair string, out any) error {
	q := url.Values{}
	q.Set("secret", p.apiKey)
	q.Set("exchange", p.exchange)
	q.Set("symbol", pair)
	q.Set("interval", p.interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+indicator+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

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
