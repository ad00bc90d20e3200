package api

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/relay"
	"github.com/kjannette/trahn-treasury/internal/risk"
	"github.com/kjannette/trahn-treasury/internal/treasury"
)

// defaultDeadline applies when a proposal omits its deadline.
const defaultDeadline = 5 * time.Minute

// Amounts cross the wire as base-unit decimal strings so 256-bit values
// survive JSON clients that parse numbers as float64.

type swapBody struct {
	Kind            string   `json:"kind"`
	AssetIn         string   `json:"assetIn"`
	AssetOut        string   `json:"assetOut"`
	Route           []string `json:"route"`
	AmountIn        string   `json:"amountIn"`
	MinAmountOut    string   `json:"minAmountOut"`
	AmountOut       string   `json:"amountOut"`
	AmountInMaximum string   `json:"amountInMaximum"`
	Deadline        string   `json:"deadline"`
}

func (b swapBody) request(now time.Time) (relay.TradeRequest, error) {
	var (
		req relay.TradeRequest
		err error
	)
	if b.Kind != "" {
		if req.Kind, err = treasury.ParseSwapKind(b.Kind); err != nil {
			return req, err
		}
	}
	if req.AssetIn, err = parseAddress("assetIn", b.AssetIn); err != nil {
		return req, err
	}
	if req.AssetOut, err = parseAddress("assetOut", b.AssetOut); err != nil {
		return req, err
	}
	for i, hop := range b.Route {
		a, err := parseAddress(fmt.Sprintf("route[%d]", i), hop)
		if err != nil {
			return req, err
		}
		req.Route = append(req.Route, a)
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"amountIn", b.AmountIn, &req.AmountIn},
		{"minAmountOut", b.MinAmountOut, &req.MinAmountOut},
		{"amountOut", b.AmountOut, &req.AmountOut},
		{"amountInMaximum", b.AmountInMaximum, &req.AmountInMaximum},
	} {
		if *f.dst, err = parseOptionalAmount(f.name, f.raw); err != nil {
			return req, err
		}
	}
	req.Deadline, err = parseDeadline(b.Deadline, now)
	return req, err
}

type buybackBody struct {
	AssetIn          string `json:"assetIn"`
	AmountIn         string `json:"amountIn"`
	MinGovernanceOut string `json:"minGovernanceOut"`
	Deadline         string `json:"deadline"`
}

func (b buybackBody) request(now time.Time) (relay.BuybackRequest, error) {
	var (
		req relay.BuybackRequest
		err error
	)
	if req.AssetIn, err = parseAddress("assetIn", b.AssetIn); err != nil {
		return req, err
	}
	if req.AmountIn, err = parseAmount("amountIn", b.AmountIn); err != nil {
		return req, err
	}
	if req.MinGovernanceOut, err = parseOptionalAmount("minGovernanceOut", b.MinGovernanceOut); err != nil {
		return req, err
	}
	req.Deadline, err = parseDeadline(b.Deadline, now)
	return req, err
}

type transferBody struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
}

type pairBody struct {
	AssetIn  string `json:"assetIn"`
	AssetOut string `json:"assetOut"`
}

type addressBody struct {
	Address string `json:"address"`
}

type relayBody struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type nameBody struct {
	Name string `json:"name"`
}

type contextJSON struct {
	TreasuryBalance    string `json:"treasuryBalance"`
	MaxAllowed         string `json:"maxAllowed"`
	ExpectedOut        string `json:"expectedOut"`
	ImpliedSlippageBps string `json:"impliedSlippageBps"`
	CooldownRemaining  int64  `json:"cooldownRemainingSeconds"`
	PairWhitelisted    bool   `json:"pairWhitelisted"`
	EvaluatedAt        string `json:"evaluatedAt"`
}

type validationJSON struct {
	Valid      bool             `json:"valid"`
	Rejections []risk.Rejection `json:"rejections"`
	Context    contextJSON      `json:"context"`
}

type outcomeJSON struct {
	Approved   bool             `json:"approved"`
	AmountIn   string           `json:"amountIn"`
	AmountOut  string           `json:"amountOut"`
	Burned     *string          `json:"burned,omitempty"`
	Rejections []risk.Rejection `json:"rejections"`
	Validation validationJSON   `json:"validation"`
}

func toValidationJSON(res risk.Result) validationJSON {
	rejections := res.Rejections
	if rejections == nil {
		rejections = []risk.Rejection{}
	}
	c := res.Context
	return validationJSON{
		Valid:      res.Valid,
		Rejections: rejections,
		Context: contextJSON{
			TreasuryBalance:    amountString(c.TreasuryBalance),
			MaxAllowed:         amountString(c.MaxAllowed),
			ExpectedOut:        amountString(c.ExpectedOut),
			ImpliedSlippageBps: amountString(c.ImpliedSlippageBps),
			CooldownRemaining:  int64(c.CooldownRemaining / time.Second),
			PairWhitelisted:    c.PairWhitelisted,
			EvaluatedAt:        c.EvaluatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func toOutcomeJSON(o relay.Outcome) outcomeJSON {
	v := toValidationJSON(o.Validation)
	out := outcomeJSON{
		Approved:   o.Approved(),
		AmountIn:   amountString(o.AmountIn),
		AmountOut:  amountString(o.AmountOut),
		Rejections: v.Rejections,
		Validation: v,
	}
	if o.Burned != nil {
		b := o.Burned.String()
		out.Burned = &b
	}
	return out
}

func balancesJSON(m map[common.Address]*big.Int) map[string]string {
	out := make(map[string]string, len(m))
	for asset, v := range m {
		out[asset.Hex()] = amountString(v)
	}
	return out
}

// --- parsing ---

func parseAddress(field, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s %q is not an address", field, v)
	}
	return common.HexToAddress(v), nil
}

func parseAmount(field, v string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s %q must be a non-negative base-unit integer", field, v)
	}
	return n, nil
}

func parseOptionalAmount(field, v string) (*big.Int, error) {
	if v == "" {
		return nil, nil
	}
	return parseAmount(field, v)
}

func parseDeadline(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return now.Add(defaultDeadline), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q must be RFC3339", v)
	}
	return t, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
