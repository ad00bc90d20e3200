package relay

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/risk"
	"github.com/kjannette/trahn-treasury/internal/treasury"
)

// TradeRequest is a trader's swap proposal. Exact-input kinds fill AmountIn
// and MinAmountOut; ExactOutput fills AmountOut and AmountInMaximum. A zero
// Kind means ExactInput.
type TradeRequest struct {
	Kind            treasury.SwapKind `json:"kind"`
	AssetIn         common.Address    `json:"assetIn"`
	AssetOut        common.Address    `json:"assetOut"`
	Route           []common.Address  `json:"route,omitempty"`
	AmountIn        *big.Int          `json:"amountIn,omitempty"`
	MinAmountOut    *big.Int          `json:"minAmountOut,omitempty"`
	AmountOut       *big.Int          `json:"amountOut,omitempty"`
	AmountInMaximum *big.Int          `json:"amountInMaximum,omitempty"`
	Deadline        time.Time         `json:"deadline"`
}

func (r TradeRequest) normalized() TradeRequest {
	if r.Kind == 0 {
		r.Kind = treasury.ExactInput
	}
	return r
}

// proposal maps the request onto what the rules check. Exact-output requests
// are judged on their worst case: the maximum input and the exact output.
func (r TradeRequest) proposal(trader common.Address) risk.Proposal {
	p := risk.Proposal{
		Trader:       trader,
		AssetIn:      r.AssetIn,
		AssetOut:     r.AssetOut,
		AmountIn:     r.AmountIn,
		MinAmountOut: r.MinAmountOut,
	}
	if !r.Kind.ExactIn() {
		p.AmountIn = r.AmountInMaximum
		p.MinAmountOut = r.AmountOut
	}
	return p
}

func (r TradeRequest) order() treasury.SwapOrder {
	return treasury.SwapOrder{
		Kind:             r.Kind,
		AssetIn:          r.AssetIn,
		AssetOut:         r.AssetOut,
		Route:            r.Route,
		AmountIn:         r.AmountIn,
		AmountOutMinimum: r.MinAmountOut,
		AmountOut:        r.AmountOut,
		AmountInMaximum:  r.AmountInMaximum,
		Deadline:         r.Deadline,
	}
}

// BuybackRequest asks the treasury to buy the governance asset with AmountIn
// of AssetIn and burn everything it receives.
type BuybackRequest struct {
	AssetIn          common.Address `json:"assetIn"`
	AmountIn         *big.Int       `json:"amountIn"`
	MinGovernanceOut *big.Int       `json:"minGovernanceOut"`
	Deadline         time.Time      `json:"deadline"`
}

// Outcome is the result of a proposal. A rejected proposal has a zero
// AmountOut and one Rejection per failing rule; it is not an error.
type Outcome struct {
	AmountIn   *big.Int         `json:"amountIn"`
	AmountOut  *big.Int         `json:"amountOut"`
	Burned     *big.Int         `json:"burned,omitempty"`
	Rejections []risk.Rejection `json:"rejections"`
	Validation risk.Result      `json:"validation"`
}

func (o Outcome) Approved() bool { return len(o.Rejections) == 0 }

func rejected(res risk.Result) Outcome {
	return Outcome{
		AmountIn:   new(big.Int),
		AmountOut:  new(big.Int),
		Rejections: res.Rejections,
		Validation: res,
	}
}
