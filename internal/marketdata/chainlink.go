package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const aggregatorABIJSON = `[
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],
   "stateMutability":"view","type":"function"}
]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain feed fetcher.
type ChainlinkOptions struct {
	RPCURL string
	// Feeds maps asset symbols to AggregatorV3 contract addresses. Assets
	// without a feed are simply not priced by this fetcher.
	Feeds   map[string]string
	Timeout time.Duration
}

// Chainlink reads reference prices from on-chain AggregatorV3 feeds.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
	decimals  map[string]int32
	decMux    sync.Mutex
}

// NewChainlink builds an on-chain fetcher. The RPC connection is dialed
// lazily on first use.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{
		opts:     opts,
		logger:   logger.With().Str("component", "chainlink_fetcher").Logger(),
		decimals: make(map[string]int32),
	}
}

// FetchPrices reads the latest round of every configured feed among the
// requested assets. Feed errors are isolated per asset.
func (c *Chainlink) FetchPrices(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	prices := make(map[string]decimal.Decimal)
	for _, asset := range assets {
		feed, ok := c.opts.Feeds[asset]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		price, err := c.readFeed(callCtx, asset, feed)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Str("asset", asset).Str("feed", feed).Msg("feed read failed")
			continue
		}
		prices[asset] = price
	}
	return prices, nil
}

func (c *Chainlink) readFeed(ctx context.Context, asset, feed string) (decimal.Decimal, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}

	addr := common.HexToAddress(feed)

	dec, err := c.feedDecimals(ctx, client, asset, addr)
	if err != nil {
		return decimal.Decimal{}, err
	}

	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return decimal.Decimal{}, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(outputs) != 5 {
		return decimal.Decimal{}, errors.New("unexpected latestRoundData response")
	}
	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return decimal.Decimal{}, errors.New("failed to decode latestRoundData answer")
	}
	if answer.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("feed %s returned non-positive answer", feed)
	}

	return decimal.NewFromBigInt(answer, -dec), nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, asset string, addr common.Address) (int32, error) {
	c.decMux.Lock()
	if dec, ok := c.decimals[asset]; ok {
		c.decMux.Unlock()
		return dec, nil
	}
	c.decMux.Unlock()

	payload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return 0, err
	}
	outputs, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	raw, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	dec := int32(raw)
	c.decMux.Lock()
	c.decimals[asset] = dec
	c.decMux.Unlock()
	return dec, nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ ReferencePriceFetcher = (*Chainlink)(nil)
