package venue

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/params"
	"github.com/kjannette/trahn-treasury/internal/treasury"
	"github.com/kjannette/trahn-treasury/internal/units"
	"github.com/rs/zerolog"
)

type pairKey struct{ in, out common.Address }

// RateTable quotes swaps from fixed whole-unit prices. Setting a rate for
// in->out also sets the inverse for out->in.
type RateTable struct {
	assets *Registry

	mu    sync.RWMutex
	rates map[pairKey]units.Rate
}

func NewRateTable(assets *Registry) *RateTable {
	return &RateTable{assets: assets, rates: make(map[pairKey]units.Rate)}
}

func (t *RateTable) SetRate(in, out common.Address, rate units.Rate) error {
	if !rate.Valid() {
		return fmt.Errorf("rate %s for %s->%s is not positive", rate, in.Hex(), out.Hex())
	}
	if in == out {
		return fmt.Errorf("rate needs two distinct assets")
	}
	t.mu.Lock()
	t.rates[pairKey{in, out}] = rate
	t.rates[pairKey{out, in}] = rate.Invert()
	t.mu.Unlock()
	return nil
}

func (t *RateTable) Rate(in, out common.Address) (units.Rate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rates[pairKey{in, out}]
	return r, ok
}

// Quote implements risk.Quoter for a direct hop.
func (t *RateTable) Quote(_ context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error) {
	return t.hop(assetIn, assetOut, amountIn)
}

// QuotePath chains hops along path, converting amountIn at each step.
func (t *RateTable) QuotePath(path []common.Address, amountIn *big.Int) (*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("path needs at least two assets")
	}
	amount := amountIn
	for i := 0; i+1 < len(path); i++ {
		next, err := t.hop(path[i], path[i+1], amount)
		if err != nil {
			return nil, err
		}
		amount = next
	}
	return amount, nil
}

// QuotePathIn walks path backwards to find the input that yields amountOut.
func (t *RateTable) QuotePathIn(path []common.Address, amountOut *big.Int) (*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("path needs at least two assets")
	}
	amount := amountOut
	for i := len(path) - 1; i > 0; i-- {
		prev, err := t.hop(path[i], path[i-1], amount)
		if err != nil {
			return nil, err
		}
		amount = prev
	}
	return amount, nil
}

func (t *RateTable) hop(in, out common.Address, amount *big.Int) (*big.Int, error) {
	rate, ok := t.Rate(in, out)
	if !ok {
		return nil, fmt.Errorf("no rate for %s->%s", in.Hex(), out.Hex())
	}
	ai, ok := t.assets.Lookup(in)
	if !ok {
		return nil, fmt.Errorf("unknown asset %s", in.Hex())
	}
	ao, ok := t.assets.Lookup(out)
	if !ok {
		return nil, fmt.Errorf("unknown asset %s", out.Hex())
	}
	return units.Convert(amount, ai.Decimals, ao.Decimals, rate)
}

// Exchange is a paper SwapAdapter. It pulls the input from the payer into its
// pool account and pays the output from the pool, minting any shortfall so
// the venue never runs dry.
type Exchange struct {
	ledger *Ledger
	rates  *RateTable
	pool   common.Address
	feeBps uint32
	log    zerolog.Logger
}

func NewExchange(ledger *Ledger, rates *RateTable, pool common.Address, feeBps uint32, log zerolog.Logger) (*Exchange, error) {
	if ledger == nil || rates == nil {
		return nil, fmt.Errorf("ledger and rate table are required")
	}
	if pool == (common.Address{}) {
		return nil, fmt.Errorf("pool address is required")
	}
	if feeBps >= params.BpsDenominator {
		return nil, fmt.Errorf("fee %d bps must be below %d", feeBps, params.BpsDenominator)
	}
	return &Exchange{ledger: ledger, rates: rates, pool: pool, feeBps: feeBps, log: log}, nil
}

func (e *Exchange) Pool() common.Address { return e.pool }

func (e *Exchange) Swap(ctx context.Context, call treasury.SwapCall) (treasury.SwapFill, error) {
	path := call.Path
	if len(path) < 2 {
		return treasury.SwapFill{}, fmt.Errorf("swap path needs at least two assets")
	}
	in, out := path[0], path[len(path)-1]

	var amountIn, amountOut *big.Int
	if call.Kind.ExactIn() {
		gross, err := e.rates.QuotePath(path, call.AmountIn)
		if err != nil {
			return treasury.SwapFill{}, fmt.Errorf("quote: %w", err)
		}
		amountIn = new(big.Int).Set(call.AmountIn)
		amountOut = e.lessFee(gross)
		if call.AmountOutMinimum != nil && amountOut.Cmp(call.AmountOutMinimum) < 0 {
			return treasury.SwapFill{}, fmt.Errorf("insufficient output: %s < %s", amountOut, call.AmountOutMinimum)
		}
	} else {
		need, err := e.rates.QuotePathIn(path, call.AmountOut)
		if err != nil {
			return treasury.SwapFill{}, fmt.Errorf("quote: %w", err)
		}
		amountIn = e.plusFee(need)
		amountOut = new(big.Int).Set(call.AmountOut)
		if call.AmountInMaximum != nil && amountIn.Cmp(call.AmountInMaximum) > 0 {
			return treasury.SwapFill{}, fmt.Errorf("excessive input: %s > %s", amountIn, call.AmountInMaximum)
		}
	}

	if err := e.ledger.Transfer(ctx, in, call.Payer, e.pool, amountIn); err != nil {
		return treasury.SwapFill{}, fmt.Errorf("pull input: %w", err)
	}
	if have, _ := e.ledger.BalanceOf(ctx, out, e.pool); have.Cmp(amountOut) < 0 {
		if err := e.ledger.Mint(out, e.pool, new(big.Int).Sub(amountOut, have)); err != nil {
			return treasury.SwapFill{}, fmt.Errorf("top up pool: %w", err)
		}
	}
	if err := e.ledger.Transfer(ctx, out, e.pool, call.Recipient, amountOut); err != nil {
		return treasury.SwapFill{}, fmt.Errorf("pay output: %w", err)
	}

	e.log.Debug().
		Str("kind", call.Kind.String()).
		Str("in", in.Hex()).
		Str("out", out.Hex()).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Msg("paper swap filled")
	return treasury.SwapFill{AmountIn: amountIn, AmountOut: amountOut}, nil
}

func (e *Exchange) lessFee(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(int64(params.BpsDenominator-e.feeBps)))
	return out.Quo(out, big.NewInt(params.BpsDenominator))
}

// plusFee rounds up so the pool never undercharges.
func (e *Exchange) plusFee(v *big.Int) *big.Int {
	num := new(big.Int).Mul(v, big.NewInt(params.BpsDenominator))
	den := big.NewInt(int64(params.BpsDenominator - e.feeBps))
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
