package marketdata

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReferencePriceFetcher resolves live reference prices for a set of assets.
// Implementations return only the assets they could price; missing entries
// are not an error.
type ReferencePriceFetcher interface {
	FetchPrices(ctx context.Context, assets []string) (map[string]decimal.Decimal, error)
}

// Composite merges several fetchers. Earlier fetchers take precedence; later
// ones only fill assets still unpriced. One failing fetcher does not fail
// the others.
type Composite struct {
	fetchers []ReferencePriceFetcher
	logger   zerolog.Logger
}

// NewComposite builds a composite over the given fetchers in priority order.
func NewComposite(logger zerolog.Logger, fetchers ...ReferencePriceFetcher) *Composite {
	return &Composite{
		fetchers: fetchers,
		logger:   logger.With().Str("component", "marketdata").Logger(),
	}
}

// FetchPrices queries each fetcher for the assets still missing. An error is
// returned only when every fetcher failed outright.
func (c *Composite) FetchPrices(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(assets))
	failures := 0

	remaining := assets
	for _, f := range c.fetchers {
		if len(remaining) == 0 {
			break
		}
		got, err := f.FetchPrices(ctx, remaining)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			c.logger.Warn().Err(err).Msg("reference price fetcher failed")
			continue
		}
		for asset, price := range got {
			if _, ok := prices[asset]; !ok {
				prices[asset] = price
			}
		}
		remaining = missingFrom(assets, prices)
	}

	if len(prices) == 0 && failures == len(c.fetchers) && failures > 0 {
		return nil, errors.New("marketdata: all reference price fetchers failed")
	}
	return prices, nil
}

func missingFrom(assets []string, prices map[string]decimal.Decimal) []string {
	var missing []string
	for _, a := range assets {
		if _, ok := prices[a]; !ok {
			missing = append(missing, a)
		}
	}
	return missing
}

var _ ReferencePriceFetcher = (*Composite)(nil)
