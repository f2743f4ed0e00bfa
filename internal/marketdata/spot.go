package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const tickerPricePath = "/api/v3/ticker/price"

// SpotOptions parameterise the exchange spot-price fetcher.
type SpotOptions struct {
	BaseURL    string
	QuoteAsset string
	Timeout    time.Duration
	UserAgent  string
}

// Spot fetches last-trade prices from an exchange REST API, one symbol per
// request. A failure for one asset leaves the others unaffected.
type Spot struct {
	opts    SpotOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSpot constructs a spot fetcher.
func NewSpot(opts SpotOptions, logger zerolog.Logger) *Spot {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = "USDT"
	}

	return &Spot{
		opts:    opts,
		logger:  logger.With().Str("component", "spot_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPrices resolves one price per asset against the configured quote
// asset. Assets the venue does not list are skipped.
func (s *Spot) FetchPrices(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(assets))

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		price, err := s.fetchOne(ctx, asset)
		if err != nil {
			s.logger.Warn().Err(err).Str("asset", asset).Msg("spot price unavailable")
			continue
		}
		prices[asset] = price
	}
	return prices, nil
}

func (s *Spot) fetchOne(ctx context.Context, asset string) (decimal.Decimal, error) {
	symbol := strings.ToUpper(asset) + strings.ToUpper(s.opts.QuoteAsset)
	endpoint := s.baseURL + tickerPricePath + "?symbol=" + url.QueryEscape(symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "signalradar/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError(resp.StatusCode, payload)
	}

	var ticker tickerResponse
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return decimal.Decimal{}, err
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse ticker price: %w", err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("venue returned non-positive price %q for %s", ticker.Price, symbol)
	}
	return price, nil
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("exchange api error (%d): %s", status, apiErr.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("exchange api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("exchange api error (%d)", status)
}

var _ ReferencePriceFetcher = (*Spot)(nil)
