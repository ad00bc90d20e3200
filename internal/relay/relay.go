// Package relay is the sole entry point for trade proposals. It builds a
// fresh risk context per request, runs the validator chain, tracks the
// cooldown clock and forwards approved trades to the treasury.
package relay

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/access"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/errs"
	"github.com/kjannette/trahn-treasury/internal/params"
	"github.com/kjannette/trahn-treasury/internal/risk"
	"github.com/kjannette/trahn-treasury/internal/treasury"
)

// Vault is the part of the treasury the relay drives.
type Vault interface {
	Balance(asset common.Address) *big.Int
	GovernanceAsset() common.Address
	ExecuteSwap(ctx context.Context, caller common.Address, order treasury.SwapOrder) (treasury.SwapFill, error)
	ExecuteBuybackAndBurn(ctx context.Context, caller, assetIn common.Address, amountIn, minGovernanceOut *big.Int, deadline time.Time) (treasury.BurnReceipt, error)
}

// PairChecker reports whether a directional pair may be traded.
type PairChecker interface {
	IsWhitelisted(in, out common.Address) bool
}

type Relay struct {
	self   common.Address
	auth   access.Authority
	params *params.Store
	pairs  PairChecker
	chain  *risk.Chain
	quoter risk.Quoter
	vault  Vault
	sink   audit.Sink
	now    func() time.Time
	guard  access.Guard

	mu        sync.RWMutex
	traders   map[common.Address]bool
	lastTrade time.Time
	traded    bool
}

func New(self common.Address, auth access.Authority, store *params.Store, pairs PairChecker,
	chain *risk.Chain, quoter risk.Quoter, vault Vault, sink audit.Sink) (*Relay, error) {
	if self == (common.Address{}) {
		return nil, fmt.Errorf("relay address is required")
	}
	if auth == nil || store == nil || pairs == nil || chain == nil || quoter == nil || vault == nil {
		return nil, fmt.Errorf("relay dependencies are required")
	}
	return &Relay{
		self:    self,
		auth:    auth,
		params:  store,
		pairs:   pairs,
		chain:   chain,
		quoter:  quoter,
		vault:   vault,
		sink:    audit.OrDiscard(sink),
		now:     time.Now,
		traders: make(map[common.Address]bool),
	}, nil
}

// WithClock overrides the time source for cooldowns and audit timestamps.
func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now
	return r
}

func (r *Relay) Address() common.Address { return r.self }

func (r *Relay) IsTrader(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.traders[addr]
}

// Traders returns the authorized traders in address order.
func (r *Relay) Traders() []common.Address {
	r.mu.RLock()
	out := make([]common.Address, 0, len(r.traders))
	for a := range r.traders {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// LastTradeAt returns when the last trade was approved, and false if none has
// been.
func (r *Relay) LastTradeAt() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastTrade, r.traded
}

// Validators returns the names of the registered rules in evaluation order.
func (r *Relay) Validators() []string {
	rules := r.chain.Rules()
	names := make([]string, len(rules))
	for i, rule := range rules {
		names[i] = rule.Name()
	}
	return names
}

// ProposeSwap validates req on behalf of caller and, if every rule passes,
// executes it through the treasury. Rejections come back in the Outcome;
// only authorization and custody failures are errors.
func (r *Relay) ProposeSwap(ctx context.Context, caller common.Address, req TradeRequest) (Outcome, error) {
	const op = "relay.propose_swap"
	if err := r.requireTrader(op, caller); err != nil {
		return Outcome{}, err
	}
	release, err := r.guard.Enter(op)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	req = req.normalized()
	p := req.proposal(caller)
	res, err := r.evaluate(ctx, op, p)
	if err != nil {
		return Outcome{}, err
	}
	if !res.Valid {
		r.emitRejected(ctx, caller, p, res)
		return rejected(res), nil
	}

	restore := r.markTraded(res.Context.EvaluatedAt)
	r.emitDecision(ctx, audit.TradeApproved, caller, p).Emit()

	fill, err := r.vault.ExecuteSwap(ctx, r.self, req.order())
	if err != nil {
		restore()
		r.emitDecision(ctx, audit.TradeFailed, caller, p).with("error", err.Error()).Emit()
		return Outcome{}, err
	}

	r.emitDecision(ctx, audit.TradeForwarded, caller, p).
		with("kind", req.Kind.String()).
		with("filledIn", fill.AmountIn.String()).
		with("filledOut", fill.AmountOut.String()).
		Emit()
	return Outcome{AmountIn: fill.AmountIn, AmountOut: fill.AmountOut, Rejections: []risk.Rejection{}, Validation: res}, nil
}

// ProposeBuybackAndBurn runs the same pipeline with the governance asset as
// the output and burns the proceeds. The Outcome's Burned is the amount sent
// to the burn sink.
func (r *Relay) ProposeBuybackAndBurn(ctx context.Context, caller common.Address, req BuybackRequest) (Outcome, error) {
	const op = "relay.propose_buyback"
	if err := r.requireTrader(op, caller); err != nil {
		return Outcome{}, err
	}
	release, err := r.guard.Enter(op)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	p := risk.Proposal{
		Trader:       caller,
		AssetIn:      req.AssetIn,
		AssetOut:     r.vault.GovernanceAsset(),
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinGovernanceOut,
	}
	res, err := r.evaluate(ctx, op, p)
	if err != nil {
		return Outcome{}, err
	}
	if !res.Valid {
		r.emitRejected(ctx, caller, p, res)
		return rejected(res), nil
	}

	restore := r.markTraded(res.Context.EvaluatedAt)
	r.emitDecision(ctx, audit.TradeApproved, caller, p).with("purpose", "buyback").Emit()

	receipt, err := r.vault.ExecuteBuybackAndBurn(ctx, r.self, req.AssetIn, req.AmountIn, req.MinGovernanceOut, req.Deadline)
	if err != nil {
		restore()
		r.emitDecision(ctx, audit.TradeFailed, caller, p).with("purpose", "buyback").with("error", err.Error()).Emit()
		return Outcome{}, err
	}

	r.emitDecision(ctx, audit.TradeForwarded, caller, p).
		with("purpose", "buyback").
		with("burned", receipt.Burned.String()).
		Emit()
	return Outcome{
		AmountIn:   receipt.Swap.AmountIn,
		AmountOut:  receipt.Swap.AmountOut,
		Burned:     receipt.Burned,
		Rejections: []risk.Rejection{},
		Validation: res,
	}, nil
}

// Preview evaluates req as ProposeSwap would for caller, without touching the
// cooldown clock or the treasury.
func (r *Relay) Preview(ctx context.Context, caller common.Address, req TradeRequest) (risk.Result, error) {
	const op = "relay.preview"
	return r.evaluate(ctx, op, req.normalized().proposal(caller))
}

// evaluate builds a fresh context and runs the chain. The quote is skipped
// for malformed proposals, which BasicParamsRule reports. For a pair off the
// whitelist a failed quote leaves expectedOut at zero: WhitelistRule already
// rejects it, and a venue with no market for the pair must not turn that
// rejection into a hard failure.
func (r *Relay) evaluate(ctx context.Context, op string, p risk.Proposal) (risk.Result, error) {
	now := r.now()
	rp := r.params.Get()
	balance := r.vault.Balance(p.AssetIn)
	whitelisted := r.pairs.IsWhitelisted(p.AssetIn, p.AssetOut)

	expected := new(big.Int)
	if wellFormed(p) {
		q, err := r.quoter.Quote(ctx, p.AssetIn, p.AssetOut, p.AmountIn)
		switch {
		case err != nil && whitelisted:
			return risk.Result{}, errs.Wrap(op, errs.KindQuote, err, "quote %s->%s", p.AssetIn.Hex(), p.AssetOut.Hex())
		case err == nil && q != nil:
			expected = q
		}
	}

	c := risk.Context{
		Params:             rp,
		TreasuryBalance:    balance,
		MaxAllowed:         risk.MaxTradeAmount(balance, rp.MaxTradeBps),
		ExpectedOut:        expected,
		ImpliedSlippageBps: risk.ImpliedSlippageBps(expected, p.MinAmountOut),
		CooldownRemaining:  r.cooldownRemaining(rp, now),
		PairWhitelisted:    whitelisted,
		EvaluatedAt:        now,
	}
	return r.chain.Evaluate(p, c), nil
}

// CooldownRemaining is how long until the relay will approve another trade,
// measured on the relay's clock.
func (r *Relay) CooldownRemaining() time.Duration {
	return r.cooldownRemaining(r.params.Get(), r.now())
}

func (r *Relay) cooldownRemaining(rp params.RiskParameters, now time.Time) time.Duration {
	last, traded := r.LastTradeAt()
	return risk.CooldownRemaining(last, traded, rp.Cooldown(), now)
}

func wellFormed(p risk.Proposal) bool {
	return p.AssetIn != (common.Address{}) && p.AssetOut != (common.Address{}) &&
		p.AssetIn != p.AssetOut && p.AmountIn != nil && p.AmountIn.Sign() > 0
}

// markTraded starts the cooldown window and returns a func that undoes it.
func (r *Relay) markTraded(at time.Time) (restore func()) {
	r.mu.Lock()
	prevAt, prevTraded := r.lastTrade, r.traded
	r.lastTrade, r.traded = at, true
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.lastTrade, r.traded = prevAt, prevTraded
		r.mu.Unlock()
	}
}

func (r *Relay) requireTrader(op string, caller common.Address) error {
	if !r.IsTrader(caller) {
		return errs.E(op, errs.KindUnauthorized, "caller %s is not an authorized trader", caller.Hex())
	}
	return nil
}

func (r *Relay) requireGovernance(op string, caller common.Address) error {
	if !r.auth.IsGovernance(caller) {
		return errs.E(op, errs.KindUnauthorized, "caller %s is not governance", caller.Hex())
	}
	return nil
}

type pendingRecord struct {
	ctx  context.Context
	sink audit.Sink
	rec  audit.Record
}

func (p pendingRecord) with(k, v string) pendingRecord {
	p.rec = p.rec.With(k, v)
	return p
}

func (p pendingRecord) Emit() { p.sink.Emit(p.ctx, p.rec) }

func (r *Relay) emitDecision(ctx context.Context, kind audit.Kind, trader common.Address, p risk.Proposal) pendingRecord {
	rec := audit.NewRecord(kind, trader, r.now()).
		With("assetIn", p.AssetIn.Hex()).
		With("assetOut", p.AssetOut.Hex()).
		With("amountIn", amountString(p.AmountIn)).
		With("minAmountOut", amountString(p.MinAmountOut))
	return pendingRecord{ctx: ctx, sink: r.sink, rec: rec}
}

func (r *Relay) emitRejected(ctx context.Context, trader common.Address, p risk.Proposal, res risk.Result) {
	codes := make([]string, len(res.Rejections))
	for i, rej := range res.Rejections {
		codes[i] = string(rej.Code)
	}
	r.emitDecision(ctx, audit.TradeRejected, trader, p).
		with("codes", strings.Join(codes, ",")).
		with("cooldownRemaining", res.Context.CooldownRemaining.String()).
		Emit()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
