package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSpotFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/v3/ticker/price") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		symbol := r.URL.Query().Get("symbol")
		if symbol != "BTCUSDT" {
			t.Fatalf("unexpected symbol %q", symbol)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"symbol": symbol,
			"price":  "65000.50",
		})
	}))
	defer srv.Close()

	s := NewSpot(SpotOptions{BaseURL: srv.URL, QuoteAsset: "USDT", Timeout: time.Second}, noopLogger())

	prices, err := s.FetchPrices(context.Background(), []string{"BTC"})
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if got := prices["BTC"]; got.Cmp(decimal.RequireFromString("65000.50")) != 0 {
		t.Fatalf("expected 65000.50, got %s", got.String())
	}
}

func TestSpotFetchSkipsUnlistedAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BTCUSDT" {
			_ = json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": "65000"})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": -1121, "msg": "Invalid symbol."})
	}))
	defer srv.Close()

	s := NewSpot(SpotOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	prices, err := s.FetchPrices(context.Background(), []string{"BTC", "NOPE"})
	if err != nil {
		t.Fatalf("one unlisted asset should not fail the batch: %v", err)
	}
	if len(prices) != 1 {
		t.Fatalf("expected 1 price, got %d", len(prices))
	}
	if _, ok := prices["NOPE"]; ok {
		t.Fatal("unlisted asset should be absent from the result")
	}
}

func TestSpotFetchRejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": "0"})
	}))
	defer srv.Close()

	s := NewSpot(SpotOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	prices, err := s.FetchPrices(context.Background(), []string{"BTC"})
	if err != nil {
		t.Fatalf("fetch should not fail outright: %v", err)
	}
	if len(prices) != 0 {
		t.Fatalf("non-positive price should be dropped, got %v", prices)
	}
}

func TestSpotFetchCancelledContext(t *testing.T) {
	s := NewSpot(SpotOptions{BaseURL: "http://127.0.0.1:0", Timeout: time.Second}, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.FetchPrices(ctx, []string{"BTC"}); err == nil {
		t.Fatal("cancelled context should return an error")
	}
}

type stubFetcher struct {
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (s *stubFetcher) FetchPrices(_ context.Context, assets []string) (map[string]decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]decimal.Decimal)
	for _, a := range assets {
		if p, ok := s.prices[a]; ok {
			out[a] = p
		}
	}
	return out, nil
}

func TestCompositePriorityMerge(t *testing.T) {
	primary := &stubFetcher{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(65000),
	}}
	secondary := &stubFetcher{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(1),
		"ETH": decimal.NewFromInt(3200),
	}}

	c := NewComposite(noopLogger(), primary, secondary)

	prices, err := c.FetchPrices(context.Background(), []string{"BTC", "ETH"})
	if err != nil {
		t.Fatalf("composite fetch should succeed: %v", err)
	}
	if prices["BTC"].Cmp(decimal.NewFromInt(65000)) != 0 {
		t.Fatalf("primary price should win, got %s", prices["BTC"].String())
	}
	if prices["ETH"].Cmp(decimal.NewFromInt(3200)) != 0 {
		t.Fatalf("secondary should fill the gap, got %s", prices["ETH"].String())
	}
}

func TestCompositeSkipsExhaustedFetchers(t *testing.T) {
	primary := &stubFetcher{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(65000),
	}}
	secondary := &stubFetcher{}

	c := NewComposite(noopLogger(), primary, secondary)

	if _, err := c.FetchPrices(context.Background(), []string{"BTC"}); err != nil {
		t.Fatalf("composite fetch should succeed: %v", err)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary should not be queried once all assets are priced")
	}
}

func TestCompositeAllFetchersFailed(t *testing.T) {
	failing := &stubFetcher{err: errors.New("venue down")}

	c := NewComposite(noopLogger(), failing)

	if _, err := c.FetchPrices(context.Background(), []string{"BTC"}); err == nil {
		t.Fatal("all fetchers failing should surface an error")
	}
}

func TestCompositeOneFailureTolerated(t *testing.T) {
	failing := &stubFetcher{err: errors.New("venue down")}
	working := &stubFetcher{prices: map[string]decimal.Decimal{"BTC": decimal.NewFromInt(65000)}}

	c := NewComposite(noopLogger(), failing, working)

	prices, err := c.FetchPrices(context.Background(), []string{"BTC"})
	if err != nil {
		t.Fatalf("one failing fetcher should be tolerated: %v", err)
	}
	if prices["BTC"].Cmp(decimal.NewFromInt(65000)) != 0 {
		t.Fatalf("expected fallback price, got %s", prices["BTC"].String())
	}
}
