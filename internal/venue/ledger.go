// Package venue is the paper trading venue: an in-memory token ledger, a
// rate-table quoter and a swap adapter that settles against both. It lets the
// engine run end to end without a chain.
package venue

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
)

type Asset struct {
	Address  common.Address `json:"address" yaml:"address"`
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
}

type holding struct {
	asset  common.Address
	holder common.Address
}

type journalEntry struct {
	key  holding
	prev *big.Int
}

// Ledger is an in-memory multi-asset balance sheet. While a snapshot is open
// every balance change is journaled so an aborted operation can be rolled
// back; once the last open snapshot is committed or reverted the journal is
// dropped.
type Ledger struct {
	mu       sync.Mutex
	balances map[holding]*big.Int
	journal  []journalEntry
	open     int
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[holding]*big.Int)}
}

// Mint credits amount out of thin air. Used for genesis funding and venue
// liquidity.
func (l *Ledger) Mint(asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("mint amount must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := holding{asset, to}
	next := new(big.Int).Add(l.get(k), amount)
	if next.Cmp(gethmath.MaxBig256) > 0 {
		return fmt.Errorf("mint of %s overflows %s balance of %s", amount, asset.Hex(), to.Hex())
	}
	l.set(k, next)
	return nil
}

func (l *Ledger) Transfer(_ context.Context, asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer amount must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	src, dst := holding{asset, from}, holding{asset, to}
	have := l.get(src)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient %s: %s has %s, needs %s", asset.Hex(), from.Hex(), have, amount)
	}
	if from == to {
		return nil
	}
	next := new(big.Int).Add(l.get(dst), amount)
	if next.Cmp(gethmath.MaxBig256) > 0 {
		return fmt.Errorf("transfer overflows %s balance of %s", asset.Hex(), to.Hex())
	}
	l.set(src, new(big.Int).Sub(have, amount))
	l.set(dst, next)
	return nil
}

func (l *Ledger) BalanceOf(_ context.Context, asset, holder common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.get(holding{asset, holder})), nil
}

// Holdings returns every non-zero balance of holder.
func (l *Ledger) Holdings(holder common.Address) map[common.Address]*big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[common.Address]*big.Int)
	for k, v := range l.balances {
		if k.holder == holder && v.Sign() > 0 {
			out[k.asset] = new(big.Int).Set(v)
		}
	}
	return out
}

// Snapshot opens a journal scope and returns an id that RevertToSnapshot or
// Commit closes.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open++
	return len(l.journal)
}

// RevertToSnapshot undoes every change made since id was taken and closes
// its scope.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		return
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		e := l.journal[i]
		if e.prev == nil {
			delete(l.balances, e.key)
		} else {
			l.balances[e.key] = e.prev
		}
	}
	l.journal = l.journal[:id]
	l.close()
}

// Commit keeps every change made since id was taken and closes its scope.
func (l *Ledger) Commit(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		return
	}
	l.close()
}

// JournalLen is the number of undo entries currently held.
func (l *Ledger) JournalLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

func (l *Ledger) close() {
	if l.open > 0 {
		l.open--
	}
	if l.open == 0 {
		l.journal = nil
	}
}

func (l *Ledger) get(k holding) *big.Int {
	if v, ok := l.balances[k]; ok {
		return v
	}
	return new(big.Int)
}

func (l *Ledger) set(k holding, v *big.Int) {
	if l.open > 0 {
		l.journal = append(l.journal, journalEntry{key: k, prev: l.balances[k]})
	}
	l.balances[k] = v
}

// Registry maps asset addresses to their metadata.
type Registry struct {
	mu     sync.RWMutex
	assets map[common.Address]Asset
}

func NewRegistry(assets ...Asset) *Registry {
	r := &Registry{assets: make(map[common.Address]Asset, len(assets))}
	for _, a := range assets {
		r.assets[a.Address] = a
	}
	return r
}

func (r *Registry) Register(a Asset) {
	r.mu.Lock()
	r.assets[a.Address] = a
	r.mu.Unlock()
}

func (r *Registry) Lookup(addr common.Address) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[addr]
	return a, ok
}

// BySymbol finds an asset by case-sensitive symbol.
func (r *Registry) BySymbol(symbol string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return Asset{}, false
}

// All returns the registered assets ordered by symbol.
func (r *Registry) All() []Asset {
	r.mu.RLock()
	out := make([]Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
