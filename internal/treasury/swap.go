package treasury

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/errs"
)

// SwapOrder is a relay-approved swap. Exact-input kinds use AmountIn and
// AmountOutMinimum; ExactOutput uses AmountOut and AmountInMaximum. Route is
// the full hop list from AssetIn to AssetOut; empty means a direct hop.
type SwapOrder struct {
	Kind             SwapKind
	AssetIn          common.Address
	AssetOut         common.Address
	Route            []common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
	AmountOut        *big.Int
	AmountInMaximum  *big.Int
	Deadline         time.Time
}

// SpendCap is the most of AssetIn the order may consume.
func (o SwapOrder) SpendCap() *big.Int {
	if o.Kind.ExactIn() {
		return o.AmountIn
	}
	return o.AmountInMaximum
}

// BurnReceipt reports the two stages of a buyback-and-burn separately.
type BurnReceipt struct {
	Swap   SwapFill `json:"swap"`
	Burned *big.Int `json:"burned"`
}

// ExecuteSwap runs an approved swap through the adapter. Relay only.
func (t *Treasury) ExecuteSwap(ctx context.Context, caller common.Address, order SwapOrder) (SwapFill, error) {
	const op = "treasury.swap"
	release, err := t.guard.Enter(op)
	if err != nil {
		return SwapFill{}, err
	}
	defer release()

	if err := t.requireRelay(op, caller); err != nil {
		return SwapFill{}, err
	}

	fill, snap, journaled, err := t.runSwap(ctx, op, order)
	if err != nil {
		return SwapFill{}, err
	}
	inBefore, outBefore := t.Balance(order.AssetIn), t.Balance(order.AssetOut)
	if err := t.commitSwap(op, order, fill); err != nil {
		t.revert(snap, journaled)
		return SwapFill{}, err
	}
	t.commit(snap, journaled)

	t.sink.Emit(ctx, audit.NewRecord(audit.SwapCompleted, caller, t.now()).
		Change(
			map[string]string{"in": inBefore.String(), "out": outBefore.String()},
			map[string]string{"in": t.Balance(order.AssetIn).String(), "out": t.Balance(order.AssetOut).String()},
		).
		With("kind", order.Kind.String()).
		With("assetIn", order.AssetIn.Hex()).
		With("assetOut", order.AssetOut.Hex()).
		With("amountIn", fill.AmountIn.String()).
		With("amountOut", fill.AmountOut.String()))
	return fill, nil
}

// ExecuteBuybackAndBurn swaps amountIn of assetIn for the governance asset
// and forwards all proceeds to the burn sink. Relay only.
func (t *Treasury) ExecuteBuybackAndBurn(ctx context.Context, caller, assetIn common.Address, amountIn, minGovernanceOut *big.Int, deadline time.Time) (BurnReceipt, error) {
	const op = "treasury.buyback_and_burn"
	release, err := t.guard.Enter(op)
	if err != nil {
		return BurnReceipt{}, err
	}
	defer release()

	if err := t.requireRelay(op, caller); err != nil {
		return BurnReceipt{}, err
	}
	if assetIn == t.govAsset {
		return BurnReceipt{}, errs.E(op, errs.KindSameAsset, "cannot buy back with the governance asset")
	}

	order := SwapOrder{
		Kind:             ExactInput,
		AssetIn:          assetIn,
		AssetOut:         t.govAsset,
		AmountIn:         amountIn,
		AmountOutMinimum: minGovernanceOut,
		Deadline:         deadline,
	}
	if assetIn == NativeAsset {
		order.Kind = ExactNativeForTokens
	}

	fill, snap, journaled, err := t.runSwap(ctx, op, order)
	if err != nil {
		return BurnReceipt{}, err
	}
	if fill.AmountOut.Sign() > 0 {
		if err := t.ledger.Transfer(ctx, t.govAsset, t.self, t.burnSink, fill.AmountOut); err != nil {
			t.revert(snap, journaled)
			return BurnReceipt{}, errs.Wrap(op, errs.KindTransfer, err, "forward %s to burn sink", fill.AmountOut)
		}
	}

	inBefore := t.Balance(assetIn)
	t.mu.Lock()
	burnedBefore := copyOrZero(t.burned[t.govAsset])
	t.balances[assetIn] = new(big.Int).Sub(inBefore, fill.AmountIn)
	t.burned[t.govAsset] = new(big.Int).Add(burnedBefore, fill.AmountOut)
	t.mu.Unlock()
	t.commit(snap, journaled)

	now := t.now()
	t.sink.Emit(ctx, audit.NewRecord(audit.SwapCompleted, caller, now).
		Change(inBefore.String(), t.Balance(assetIn).String()).
		With("kind", order.Kind.String()).
		With("assetIn", assetIn.Hex()).
		With("assetOut", t.govAsset.Hex()).
		With("amountIn", fill.AmountIn.String()).
		With("amountOut", fill.AmountOut.String()).
		With("purpose", "buyback"))
	t.sink.Emit(ctx, audit.NewRecord(audit.BurnCompleted, caller, now).
		Change(burnedBefore.String(), t.Burned(t.govAsset).String()).
		With("asset", t.govAsset.Hex()).
		With("sink", t.burnSink.Hex()).
		With("amount", fill.AmountOut.String()))

	return BurnReceipt{Swap: fill, Burned: new(big.Int).Set(fill.AmountOut)}, nil
}

// runSwap validates order, calls the adapter and checks the fill against the
// order's bounds. It does not touch t.balances. On failure any ledger effects
// are already reverted; on success the caller owns the snapshot.
func (t *Treasury) runSwap(ctx context.Context, op string, order SwapOrder) (SwapFill, int, bool, error) {
	path, err := t.checkOrder(op, order)
	if err != nil {
		return SwapFill{}, 0, false, err
	}

	t.mu.RLock()
	adapter := t.adapter
	t.mu.RUnlock()

	call := SwapCall{
		Kind:      order.Kind,
		AssetIn:   order.AssetIn,
		Path:      path,
		Payer:     t.self,
		Recipient: t.self,
		Deadline:  order.Deadline,
	}
	if order.Kind.ExactIn() {
		call.AmountIn = new(big.Int).Set(order.AmountIn)
		call.AmountOutMinimum = copyOrZero(order.AmountOutMinimum)
	} else {
		call.AmountOut = new(big.Int).Set(order.AmountOut)
		call.AmountInMaximum = new(big.Int).Set(order.AmountInMaximum)
	}

	snap, journaled := t.snapshot()
	fill, err := adapter.Swap(ctx, call)
	if err != nil {
		t.revert(snap, journaled)
		return SwapFill{}, 0, false, errs.Wrap(op, errs.KindAdapter, err, "%s swap %s->%s", order.Kind, order.AssetIn.Hex(), order.AssetOut.Hex())
	}
	fill = SwapFill{AmountIn: copyOrZero(fill.AmountIn), AmountOut: copyOrZero(fill.AmountOut)}

	if err := t.checkFill(op, order, fill); err != nil {
		t.revert(snap, journaled)
		return SwapFill{}, 0, false, err
	}
	return fill, snap, journaled, nil
}

func (t *Treasury) checkOrder(op string, o SwapOrder) ([]common.Address, error) {
	if !o.Kind.valid() {
		return nil, errs.E(op, errs.KindInvalidParameter, "unknown swap kind %d", o.Kind)
	}
	if o.AssetIn == (common.Address{}) || o.AssetOut == (common.Address{}) {
		return nil, errs.E(op, errs.KindZeroAddress, "assetIn and assetOut are required")
	}
	if now := t.now(); now.After(o.Deadline) {
		return nil, errs.E(op, errs.KindDeadlineExpired,
			"deadline %s passed at %s", o.Deadline.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	switch o.Kind {
	case ExactInput, ExactOutput:
		if o.AssetIn == o.AssetOut {
			return nil, errs.E(op, errs.KindSameAsset, "assetIn equals assetOut %s", o.AssetIn.Hex())
		}
		if o.AssetIn == NativeAsset || o.AssetOut == NativeAsset {
			return nil, errs.E(op, errs.KindInvalidRoute, "%s does not take the native asset", o.Kind)
		}
	case ExactNativeForTokens:
		if o.AssetIn != NativeAsset || o.AssetOut == NativeAsset {
			return nil, errs.E(op, errs.KindInvalidRoute, "%s needs native in and a token out", o.Kind)
		}
	case ExactTokensForNative:
		if o.AssetOut != NativeAsset || o.AssetIn == NativeAsset {
			return nil, errs.E(op, errs.KindInvalidRoute, "%s needs a token in and native out", o.Kind)
		}
	}

	if o.Kind.ExactIn() {
		if err := requirePositive(op, "amountIn", o.AmountIn); err != nil {
			return nil, err
		}
		if o.AmountOutMinimum != nil && o.AmountOutMinimum.Cmp(gethmath.MaxBig256) > 0 {
			return nil, errs.E(op, errs.KindOverflow, "amountOutMinimum exceeds uint256")
		}
	} else {
		if err := requirePositive(op, "amountOut", o.AmountOut); err != nil {
			return nil, err
		}
		if err := requirePositive(op, "amountInMaximum", o.AmountInMaximum); err != nil {
			return nil, err
		}
	}

	path := o.Route
	if len(path) == 0 {
		path = []common.Address{o.AssetIn, o.AssetOut}
	}
	if len(path) < 2 || path[0] != o.AssetIn || path[len(path)-1] != o.AssetOut {
		return nil, errs.E(op, errs.KindInvalidRoute, "route must run from assetIn to assetOut")
	}
	for _, hop := range path {
		if hop == (common.Address{}) {
			return nil, errs.E(op, errs.KindInvalidRoute, "route contains a zero hop")
		}
	}

	if bal, spend := t.Balance(o.AssetIn), o.SpendCap(); bal.Cmp(spend) < 0 {
		return nil, errs.E(op, errs.KindInsufficientBalance,
			"balance %s of %s below %s", bal, o.AssetIn.Hex(), spend)
	}
	return append([]common.Address(nil), path...), nil
}

func (t *Treasury) checkFill(op string, o SwapOrder, fill SwapFill) error {
	if limit := o.SpendCap(); fill.AmountIn.Cmp(limit) > 0 {
		return errs.E(op, errs.KindBoundViolation, "venue spent %s, above %s", fill.AmountIn, limit)
	}
	if o.Kind.ExactIn() {
		if floor := copyOrZero(o.AmountOutMinimum); fill.AmountOut.Cmp(floor) < 0 {
			return errs.E(op, errs.KindBoundViolation, "received %s, below minimum %s", fill.AmountOut, floor)
		}
	} else if fill.AmountOut.Cmp(o.AmountOut) < 0 {
		return errs.E(op, errs.KindBoundViolation, "received %s, below exact output %s", fill.AmountOut, o.AmountOut)
	}
	return nil
}

func (t *Treasury) commitSwap(op string, o SwapOrder, fill SwapFill) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	in := copyOrZero(t.balances[o.AssetIn])
	out := copyOrZero(t.balances[o.AssetOut])
	in.Sub(in, fill.AmountIn)
	out.Add(out, fill.AmountOut)
	if in.Sign() < 0 {
		return errs.E(op, errs.KindBoundViolation, "balance of %s would go negative", o.AssetIn.Hex())
	}
	if out.Cmp(gethmath.MaxBig256) > 0 {
		return errs.E(op, errs.KindOverflow, "balance of %s would exceed uint256", o.AssetOut.Hex())
	}
	t.balances[o.AssetIn] = in
	t.balances[o.AssetOut] = out
	return nil
}
