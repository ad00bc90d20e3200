package access

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Authority answers "is this caller governance". Identity management lives
// outside the engine; components only consume the predicate.
type Authority interface {
	IsGovernance(caller common.Address) bool
}

// AuthorityFunc adapts a plain function to Authority.
type AuthorityFunc func(caller common.Address) bool

func (f AuthorityFunc) IsGovernance(caller common.Address) bool { return f(caller) }

// Roles is a static in-process Authority seeded from configuration.
type Roles struct {
	mu         sync.RWMutex
	governance map[common.Address]struct{}
}

func NewRoles(governance ...common.Address) *Roles {
	r := &Roles{governance: make(map[common.Address]struct{}, len(governance))}
	for _, g := range governance {
		if g != (common.Address{}) {
			r.governance[g] = struct{}{}
		}
	}
	return r
}

func (r *Roles) IsGovernance(caller common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.governance[caller]
	return ok
}

func (r *Roles) Grant(addr common.Address) {
	r.mu.Lock()
	r.governance[addr] = struct{}{}
	r.mu.Unlock()
}

func (r *Roles) Revoke(addr common.Address) {
	r.mu.Lock()
	delete(r.governance, addr)
	r.mu.Unlock()
}

// Members returns the governance principals in no particular order.
func (r *Roles) Members() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.governance))
	for a := range r.governance {
		out = append(out, a)
	}
	return out
}
