package relay

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/errs"
	"github.com/kjannette/trahn-treasury/internal/params"
	"github.com/kjannette/trahn-treasury/internal/risk"
)

func (r *Relay) AuthorizeTrader(ctx context.Context, caller, trader common.Address) error {
	const op = "relay.authorize_trader"
	if err := r.requireGovernance(op, caller); err != nil {
		return err
	}
	if trader == (common.Address{}) {
		return errs.E(op, errs.KindZeroAddress, "trader is required")
	}
	r.mu.Lock()
	if r.traders[trader] {
		r.mu.Unlock()
		return errs.E(op, errs.KindDuplicate, "%s is already a trader", trader.Hex())
	}
	r.traders[trader] = true
	r.mu.Unlock()

	r.sink.Emit(ctx, audit.NewRecord(audit.TraderAuthorized, caller, r.now()).
		Change(false, true).
		With("trader", trader.Hex()))
	return nil
}

func (r *Relay) RevokeTrader(ctx context.Context, caller, trader common.Address) error {
	const op = "relay.revoke_trader"
	if err := r.requireGovernance(op, caller); err != nil {
		return err
	}
	r.mu.Lock()
	if !r.traders[trader] {
		r.mu.Unlock()
		return errs.E(op, errs.KindNotFound, "%s is not a trader", trader.Hex())
	}
	delete(r.traders, trader)
	r.mu.Unlock()

	r.sink.Emit(ctx, audit.NewRecord(audit.TraderRevoked, caller, r.now()).
		Change(true, false).
		With("trader", trader.Hex()))
	return nil
}

// UpdateRiskParameters delegates to the parameter store, which records the
// change.
func (r *Relay) UpdateRiskParameters(ctx context.Context, caller common.Address, next params.RiskParameters) (params.RiskParameters, error) {
	const op = "relay.update_risk_parameters"
	if err := r.requireGovernance(op, caller); err != nil {
		return params.RiskParameters{}, err
	}
	return r.params.Set(ctx, caller, next)
}

func (r *Relay) RiskParameters() params.RiskParameters { return r.params.Get() }

func (r *Relay) AddValidator(ctx context.Context, caller common.Address, rule risk.Rule) error {
	const op = "relay.add_validator"
	if err := r.requireGovernance(op, caller); err != nil {
		return err
	}
	before := r.Validators()
	if err := r.chain.Add(rule); err != nil {
		return err
	}
	r.sink.Emit(ctx, audit.NewRecord(audit.ValidatorAdded, caller, r.now()).
		Change(before, r.Validators()).
		With("rule", rule.Name()))
	return nil
}

func (r *Relay) RemoveValidator(ctx context.Context, caller common.Address, rule risk.Rule) error {
	const op = "relay.remove_validator"
	if err := r.requireGovernance(op, caller); err != nil {
		return err
	}
	before := r.Validators()
	if err := r.chain.Remove(rule); err != nil {
		return err
	}
	r.sink.Emit(ctx, audit.NewRecord(audit.ValidatorRemoved, caller, r.now()).
		Change(before, r.Validators()).
		With("rule", rule.Name()))
	return nil
}

// FindValidator looks up a registered rule by name.
func (r *Relay) FindValidator(name string) (risk.Rule, bool) {
	return r.chain.Find(name)
}
