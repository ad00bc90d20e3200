// Package whitelist holds the asset pairs approved for trading.
//
// Pairs are directional: approving In->Out says nothing about Out->In.
// Governance adds each direction it wants to allow.
package whitelist

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/access"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/errs"
)

type Pair struct {
	In  common.Address `json:"assetIn" yaml:"in"`
	Out common.Address `json:"assetOut" yaml:"out"`
}

func (p Pair) String() string { return p.In.Hex() + "->" + p.Out.Hex() }

func (p Pair) validate(op string) error {
	if p.In == (common.Address{}) || p.Out == (common.Address{}) {
		return errs.E(op, errs.KindZeroAddress, "pair %s has a zero asset", p)
	}
	if p.In == p.Out {
		return errs.E(op, errs.KindSameAsset, "pair %s trades an asset against itself", p)
	}
	return nil
}

type Whitelist struct {
	auth access.Authority
	sink audit.Sink
	now  func() time.Time

	mu    sync.RWMutex
	pairs map[Pair]struct{}
}

func New(auth access.Authority, sink audit.Sink) *Whitelist {
	return &Whitelist{
		auth:  auth,
		sink:  audit.OrDiscard(sink),
		now:   time.Now,
		pairs: make(map[Pair]struct{}),
	}
}

// WithClock overrides the time source used for audit timestamps.
func (w *Whitelist) WithClock(now func() time.Time) *Whitelist {
	w.now = now
	return w
}

// Add approves trading from in to out. Re-adding a present pair fails.
func (w *Whitelist) Add(ctx context.Context, caller, in, out common.Address) error {
	const op = "whitelist.add"
	if !w.auth.IsGovernance(caller) {
		return errs.E(op, errs.KindUnauthorized, "caller %s is not governance", caller.Hex())
	}
	p := Pair{In: in, Out: out}
	if err := p.validate(op); err != nil {
		return err
	}

	w.mu.Lock()
	if _, ok := w.pairs[p]; ok {
		w.mu.Unlock()
		return errs.E(op, errs.KindDuplicate, "pair %s already whitelisted", p)
	}
	w.pairs[p] = struct{}{}
	w.mu.Unlock()

	w.sink.Emit(ctx, audit.NewRecord(audit.PairAdded, caller, w.now()).
		Change(false, true).
		With("assetIn", in.Hex()).
		With("assetOut", out.Hex()))
	return nil
}

// Remove withdraws approval for in->out.
func (w *Whitelist) Remove(ctx context.Context, caller, in, out common.Address) error {
	const op = "whitelist.remove"
	if !w.auth.IsGovernance(caller) {
		return errs.E(op, errs.KindUnauthorized, "caller %s is not governance", caller.Hex())
	}
	p := Pair{In: in, Out: out}
	if err := p.validate(op); err != nil {
		return err
	}

	w.mu.Lock()
	if _, ok := w.pairs[p]; !ok {
		w.mu.Unlock()
		return errs.E(op, errs.KindNotFound, "pair %s is not whitelisted", p)
	}
	delete(w.pairs, p)
	w.mu.Unlock()

	w.sink.Emit(ctx, audit.NewRecord(audit.PairRemoved, caller, w.now()).
		Change(true, false).
		With("assetIn", in.Hex()).
		With("assetOut", out.Hex()))
	return nil
}

func (w *Whitelist) IsWhitelisted(in, out common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.pairs[Pair{In: in, Out: out}]
	return ok
}

// Pairs returns every approved pair ordered by (In, Out).
func (w *Whitelist) Pairs() []Pair {
	w.mu.RLock()
	out := make([]Pair, 0, len(w.pairs))
	for p := range w.pairs {
		out = append(out, p)
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].In[:], out[j].In[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Out[:], out[j].Out[:]) < 0
	})
	return out
}
