package risk

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Code identifies why a rule rejected a trade.
type Code string

const (
	CodePairNotWhitelisted          Code = "PAIR_NOT_WHITELISTED"
	CodeTradeSizeExceeded           Code = "TRADE_SIZE_EXCEEDED"
	CodeSlippageExceeded            Code = "SLIPPAGE_EXCEEDED"
	CodeInsufficientTreasuryBalance Code = "INSUFFICIENT_TREASURY_BALANCE"
	CodeInvalidTradeParams          Code = "INVALID_TRADE_PARAMS"
	CodeCooldownActive              Code = "COOLDOWN_ACTIVE"
)

// Rule is one independent, stateless policy predicate. Evaluate must not
// mutate the context or call out to anything with side effects.
type Rule interface {
	Name() string
	Evaluate(p Proposal, c *Context) (pass bool, code Code)
}

// DefaultRules returns fresh instances of the canonical rule set.
func DefaultRules() []Rule {
	return []Rule{
		&WhitelistRule{},
		&MaxTradeSizeRule{},
		&SlippageRule{},
		&TreasuryBalanceRule{},
		&BasicParamsRule{},
		&CooldownRule{},
	}
}

type WhitelistRule struct{}

func (*WhitelistRule) Name() string { return "whitelist" }

func (*WhitelistRule) Evaluate(_ Proposal, c *Context) (bool, Code) {
	if !c.PairWhitelisted {
		return false, CodePairNotWhitelisted
	}
	return true, ""
}

type MaxTradeSizeRule struct{}

func (*MaxTradeSizeRule) Name() string { return "max-trade-size" }

func (*MaxTradeSizeRule) Evaluate(p Proposal, c *Context) (bool, Code) {
	limit := c.MaxAllowed
	if limit == nil {
		limit = MaxTradeAmount(c.TreasuryBalance, c.Params.MaxTradeBps)
	}
	if orZero(p.AmountIn).Cmp(limit) > 0 {
		return false, CodeTradeSizeExceeded
	}
	return true, ""
}

type SlippageRule struct{}

func (*SlippageRule) Name() string { return "slippage" }

func (*SlippageRule) Evaluate(p Proposal, c *Context) (bool, Code) {
	implied := c.ImpliedSlippageBps
	if implied == nil {
		implied = ImpliedSlippageBps(c.ExpectedOut, p.MinAmountOut)
	}
	if implied.Cmp(new(big.Int).SetUint64(uint64(c.Params.MaxSlippageBps))) > 0 {
		return false, CodeSlippageExceeded
	}
	return true, ""
}

type TreasuryBalanceRule struct{}

func (*TreasuryBalanceRule) Name() string { return "treasury-balance" }

func (*TreasuryBalanceRule) Evaluate(p Proposal, c *Context) (bool, Code) {
	if orZero(c.TreasuryBalance).Cmp(orZero(p.AmountIn)) < 0 {
		return false, CodeInsufficientTreasuryBalance
	}
	return true, ""
}

type BasicParamsRule struct{}

func (*BasicParamsRule) Name() string { return "basic-params" }

func (*BasicParamsRule) Evaluate(p Proposal, _ *Context) (bool, Code) {
	if p.AssetIn == (common.Address{}) || p.AssetOut == (common.Address{}) ||
		orZero(p.AmountIn).Sign() == 0 || orZero(p.MinAmountOut).Sign() == 0 {
		return false, CodeInvalidTradeParams
	}
	return true, ""
}

type CooldownRule struct{}

func (*CooldownRule) Name() string { return "cooldown" }

func (*CooldownRule) Evaluate(_ Proposal, c *Context) (bool, Code) {
	if c.CooldownRemaining > 0 {
		return false, CodeCooldownActive
	}
	return true, ""
}
