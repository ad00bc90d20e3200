package access

import (
	"sync/atomic"

	"github.com/kjannette/trahn-treasury/internal/errs"
)

// Guard is a non-reentrant lock. Enter fails instead of blocking when the
// guarded section is already executing, so a nested call made from inside a
// collaborator (adapter, ledger, quoter) cannot run between snapshot and
// settlement.
type Guard struct {
	entered atomic.Bool
}

// Enter marks the section as executing. The returned release func must be
// deferred by the caller.
func (g *Guard) Enter(op string) (release func(), err error) {
	if !g.entered.CompareAndSwap(false, true) {
		return nil, errs.E(op, errs.KindReentrant, "re-entrant call rejected")
	}
	return func() { g.entered.Store(false) }, nil
}

// Busy reports whether a guarded section is executing.
func (g *Guard) Busy() bool { return g.entered.Load() }
