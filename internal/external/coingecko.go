package external

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/httputil"
	"github.com/kjannette/trahn-treasury/internal/units"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

type CoinGeckoClient struct {
	httpClient *http.Client
	retry      httputil.RetryConfig
	baseURL    string
}

func NewCoinGeckoClient(log zerolog.Logger) *CoinGeckoClient {
	return &CoinGeckoClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
			Log:         log,
		},
		baseURL: coingeckoBaseURL,
	}
}

// WithBaseURL points the client at another API root.
func (c *CoinGeckoClient) WithBaseURL(u string) *CoinGeckoClient {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// GetUSDPrices returns the USD price of every CoinGecko id. Prices are decoded
// as exact decimals.
func (c *CoinGeckoClient) GetUSDPrices(ctx context.Context, ids ...string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/simple/price?" + q.Encode()

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var data map[string]struct {
		USD decimal.Decimal `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		p, ok := data[id]
		if !ok {
			return nil, fmt.Errorf("no price for %q", id)
		}
		if !p.USD.IsPositive() {
			return nil, fmt.Errorf("invalid price for %q: %s", id, p.USD)
		}
		out[id] = p.USD
	}
	return out, nil
}

// PricedAsset maps an on-chain asset to its CoinGecko id.
type PricedAsset struct {
	ID       string
	Decimals uint8
}

// USDQuoter prices a trade by crossing both assets through their USD price.
// It is a reference quote, not an executable one.
type USDQuoter struct {
	client *CoinGeckoClient
	assets map[common.Address]PricedAsset
}

func NewUSDQuoter(client *CoinGeckoClient, assets map[common.Address]PricedAsset) *USDQuoter {
	return &USDQuoter{client: client, assets: assets}
}

func (q *USDQuoter) Quote(ctx context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error) {
	in, ok := q.assets[assetIn]
	if !ok {
		return nil, fmt.Errorf("no price id for %s", assetIn.Hex())
	}
	out, ok := q.assets[assetOut]
	if !ok {
		return nil, fmt.Errorf("no price id for %s", assetOut.Hex())
	}
	prices, err := q.client.GetUSDPrices(ctx, in.ID, out.ID)
	if err != nil {
		return nil, err
	}
	rate, err := crossRate(prices[in.ID], prices[out.ID])
	if err != nil {
		return nil, err
	}
	return units.Convert(amountIn, in.Decimals, out.Decimals, rate)
}

// crossRate is priceIn/priceOut as an exact fraction.
func crossRate(priceIn, priceOut decimal.Decimal) (units.Rate, error) {
	rin, err := units.RateFromDecimal(priceIn)
	if err != nil {
		return units.Rate{}, err
	}
	rout, err := units.RateFromDecimal(priceOut)
	if err != nil {
		return units.Rate{}, err
	}
	return units.Rate{
		Num: new(big.Int).Mul(rin.Num, rout.Den),
		Den: new(big.Int).Mul(rin.Den, rout.Num),
	}, nil
}
