// Package treasury is the exclusive custodian of managed funds. Governance may
// withdraw and rotate collaborators; the current relay may only execute swaps
// and buyback-and-burn. Every custody-affecting call either fully commits or
// leaves balances exactly as they were.
package treasury

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/kjannette/trahn-treasury/internal/access"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/errs"
)

type Config struct {
	Address         common.Address
	GovernanceAsset common.Address
	BurnSink        common.Address
	Relay           common.Address
}

type Treasury struct {
	self     common.Address
	govAsset common.Address
	burnSink common.Address

	auth   access.Authority
	ledger Ledger
	sink   audit.Sink
	now    func() time.Time
	guard  access.Guard

	mu       sync.RWMutex
	relay    common.Address
	adapter  SwapAdapter
	balances map[common.Address]*big.Int
	burned   map[common.Address]*big.Int
}

func New(cfg Config, auth access.Authority, adapter SwapAdapter, ledger Ledger, sink audit.Sink) (*Treasury, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("treasury address is required")
	}
	if cfg.GovernanceAsset == (common.Address{}) {
		return nil, fmt.Errorf("governance asset is required")
	}
	if auth == nil || adapter == nil || ledger == nil {
		return nil, fmt.Errorf("authority, swap adapter and ledger are required")
	}
	if cfg.BurnSink == (common.Address{}) {
		cfg.BurnSink = DefaultBurnSink
	}
	return &Treasury{
		self:     cfg.Address,
		govAsset: cfg.GovernanceAsset,
		burnSink: cfg.BurnSink,
		auth:     auth,
		ledger:   ledger,
		sink:     audit.OrDiscard(sink),
		now:      time.Now,
		relay:    cfg.Relay,
		adapter:  adapter,
		balances: make(map[common.Address]*big.Int),
		burned:   make(map[common.Address]*big.Int),
	}, nil
}

// WithClock overrides the time source for deadlines and audit timestamps.
func (t *Treasury) WithClock(now func() time.Time) *Treasury {
	t.now = now
	return t
}

func (t *Treasury) Address() common.Address         { return t.self }
func (t *Treasury) GovernanceAsset() common.Address { return t.govAsset }
func (t *Treasury) BurnSink() common.Address        { return t.burnSink }

func (t *Treasury) Relay() common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.relay
}

// Balance returns the custodied amount of asset; zero for unseen assets.
func (t *Treasury) Balance(asset common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyOrZero(t.balances[asset])
}

// Burned returns the cumulative amount of asset sent to the burn sink.
func (t *Treasury) Burned(asset common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyOrZero(t.burned[asset])
}

// Balances returns a snapshot of every non-zero balance.
func (t *Treasury) Balances() map[common.Address]*big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[common.Address]*big.Int, len(t.balances))
	for a, v := range t.balances {
		if v.Sign() > 0 {
			out[a] = new(big.Int).Set(v)
		}
	}
	return out
}

// Deposit pulls amount of asset from the depositor into custody. Open to any
// caller.
func (t *Treasury) Deposit(ctx context.Context, from, asset common.Address, amount *big.Int) error {
	const op = "treasury.deposit"
	release, err := t.guard.Enter(op)
	if err != nil {
		return err
	}
	defer release()

	if asset == (common.Address{}) || from == (common.Address{}) {
		return errs.E(op, errs.KindZeroAddress, "asset and depositor are required")
	}
	if err := requirePositive(op, "amount", amount); err != nil {
		return err
	}
	before := t.Balance(asset)
	after := new(big.Int).Add(before, amount)
	if after.Cmp(gethmath.MaxBig256) > 0 {
		return errs.E(op, errs.KindOverflow, "balance of %s would exceed uint256", asset.Hex())
	}

	if err := t.ledger.Transfer(ctx, asset, from, t.self, amount); err != nil {
		return errs.Wrap(op, errs.KindTransfer, err, "pull %s of %s from %s", amount, asset.Hex(), from.Hex())
	}

	t.mu.Lock()
	t.balances[asset] = after
	t.mu.Unlock()

	t.sink.Emit(ctx, audit.NewRecord(audit.Deposit, from, t.now()).
		Change(before.String(), after.String()).
		With("asset", asset.Hex()).
		With("amount", amount.String()))
	return nil
}

// Withdraw moves amount of asset out of custody to recipient. Governance only.
func (t *Treasury) Withdraw(ctx context.Context, caller, asset, recipient common.Address, amount *big.Int) error {
	const op = "treasury.withdraw"
	release, err := t.guard.Enter(op)
	if err != nil {
		return err
	}
	defer release()

	if !t.auth.IsGovernance(caller) {
		return errs.E(op, errs.KindUnauthorized, "caller %s is not governance", caller.Hex())
	}
	if asset == (common.Address{}) || recipient == (common.Address{}) {
		return errs.E(op, errs.KindZeroAddress, "asset and recipient are required")
	}
	if err := requirePositive(op, "amount", amount); err != nil {
		return err
	}
	before := t.Balance(asset)
	if amount.Cmp(before) > 0 {
		return errs.E(op, errs.KindInsufficientBalance,
			"amount %s exceeds balance %s of %s", amount, before, asset.Hex())
	}

	if err := t.ledger.Transfer(ctx, asset, t.self, recipient, amount); err != nil {
		return errs.Wrap(op, errs.KindTransfer, err, "send %s of %s to %s", amount, asset.Hex(), recipient.Hex())
	}

	after := new(big.Int).Sub(before, amount)
	t.mu.Lock()
	t.balances[asset] = after
	t.mu.Unlock()

	t.sink.Emit(ctx, audit.NewRecord(audit.Withdrawal, caller, t.now()).
		Change(before.String(), after.String()).
		With("asset", asset.Hex()).
		With("recipient", recipient.Hex()).
		With("amount", amount.String()))
	return nil
}

// UpdateRelay revokes old and grants next in one step. Governance only.
func (t *Treasury) UpdateRelay(ctx context.Context, caller, old, next common.Address) error {
	const op = "treasury.update_relay"
	release, err := t.guard.Enter(op)
	if err != nil {
		return err
	}
	defer release()

	if !t.auth.IsGovernance(caller) {
		return errs.E(op, errs.KindUnauthorized, "caller %s is not governance", caller.Hex())
	}
	if next == (common.Address{}) {
		return errs.E(op, errs.KindZeroAddress, "new relay is required")
	}
	if old == next {
		return errs.E(op, errs.KindNoop, "relay %s is unchanged", next.Hex())
	}

	t.mu.Lock()
	if t.relay != old {
		current := t.relay
		t.mu.Unlock()
		return errs.E(op, errs.KindNotFound, "%s is not the current relay (%s)", old.Hex(), current.Hex())
	}
	t.relay = next
	t.mu.Unlock()

	t.sink.Emit(ctx, audit.NewRecord(audit.RelayRotated, caller, t.now()).
		Change(old.Hex(), next.Hex()))
	return nil
}

// SetAdapter rotates the swap venue. Governance only.
func (t *Treasury) SetAdapter(ctx context.Context, caller common.Address, next SwapAdapter) error {
	const op = "treasury.set_adapter"
	release, err := t.guard.Enter(op)
	if err != nil {
		return err
	}
	defer release()

	if !t.auth.IsGovernance(caller) {
		return errs.E(op, errs.KindUnauthorized, "caller %s is not governance", caller.Hex())
	}
	if next == nil {
		return errs.E(op, errs.KindInvalidParameter, "adapter is required")
	}

	t.mu.Lock()
	prev := t.adapter
	if sameAdapter(prev, next) {
		t.mu.Unlock()
		return errs.E(op, errs.KindNoop, "adapter is unchanged")
	}
	t.adapter = next
	t.mu.Unlock()

	t.sink.Emit(ctx, audit.NewRecord(audit.AdapterRotated, caller, t.now()).
		Change(fmt.Sprintf("%T", prev), fmt.Sprintf("%T", next)))
	return nil
}

// sameAdapter reports whether a and b are the same pointer. Other dynamic
// types may not be comparable and always count as a change.
func sameAdapter(a, b SwapAdapter) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != reflect.Pointer || va.Type() != vb.Type() {
		return false
	}
	return va.Pointer() == vb.Pointer()
}

func (t *Treasury) requireRelay(op string, caller common.Address) error {
	t.mu.RLock()
	relay := t.relay
	t.mu.RUnlock()
	if relay == (common.Address{}) || caller != relay {
		return errs.E(op, errs.KindUnauthorized, "caller %s is not the relay", caller.Hex())
	}
	return nil
}

func (t *Treasury) snapshot() (int, bool) {
	j, ok := t.ledger.(Journal)
	if !ok {
		return 0, false
	}
	return j.Snapshot(), true
}

func (t *Treasury) revert(id int, ok bool) {
	if ok {
		t.ledger.(Journal).RevertToSnapshot(id)
	}
}

func (t *Treasury) commit(id int, ok bool) {
	if ok {
		t.ledger.(Journal).Commit(id)
	}
}

func requirePositive(op, name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return errs.E(op, errs.KindZeroAmount, "%s must be positive", name)
	}
	if v.Cmp(gethmath.MaxBig256) > 0 {
		return errs.E(op, errs.KindOverflow, "%s exceeds uint256", name)
	}
	return nil
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
