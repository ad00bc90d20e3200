package risk

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/params"
)

// Quoter supplies the live expected output for an exact (in, out, amountIn)
// triple. Implementations must be read-only.
type Quoter interface {
	Quote(ctx context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// Proposal is the trade under evaluation, as the rules see it.
type Proposal struct {
	Trader       common.Address `json:"trader"`
	AssetIn      common.Address `json:"assetIn"`
	AssetOut     common.Address `json:"assetOut"`
	AmountIn     *big.Int       `json:"amountIn"`
	MinAmountOut *big.Int       `json:"minAmountOut"`
}

// Context is the snapshot every rule evaluates against. It is rebuilt for
// each request and never stored.
type Context struct {
	Params             params.RiskParameters `json:"params"`
	TreasuryBalance    *big.Int              `json:"treasuryBalance"`
	MaxAllowed         *big.Int              `json:"maxAllowed"`
	ExpectedOut        *big.Int              `json:"expectedOut"`
	ImpliedSlippageBps *big.Int              `json:"impliedSlippageBps"`
	CooldownRemaining  time.Duration         `json:"cooldownRemaining"`
	PairWhitelisted    bool                  `json:"pairWhitelisted"`
	EvaluatedAt        time.Time             `json:"evaluatedAt"`
}

var bpsDenominator = big.NewInt(params.BpsDenominator)

// MaxTradeAmount is balance * maxTradeBps / 10000, truncated.
func MaxTradeAmount(balance *big.Int, maxTradeBps uint32) *big.Int {
	out := new(big.Int).Mul(orZero(balance), new(big.Int).SetUint64(uint64(maxTradeBps)))
	return out.Quo(out, bpsDenominator)
}

// ImpliedSlippageBps is zero when minOut covers the quote, otherwise
// (expectedOut - minOut) * 10000 / expectedOut, truncated.
func ImpliedSlippageBps(expectedOut, minOut *big.Int) *big.Int {
	expected, floor := orZero(expectedOut), orZero(minOut)
	if floor.Cmp(expected) >= 0 {
		return new(big.Int)
	}
	gap := new(big.Int).Sub(expected, floor)
	gap.Mul(gap, bpsDenominator)
	return gap.Quo(gap, expected)
}

// CooldownRemaining returns how long until another trade may be approved.
// It is zero before any trade has happened.
func CooldownRemaining(lastTrade time.Time, traded bool, cooldown time.Duration, now time.Time) time.Duration {
	if !traded || cooldown <= 0 {
		return 0
	}
	elapsed := now.Sub(lastTrade)
	if elapsed >= cooldown {
		return 0
	}
	return cooldown - elapsed
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
