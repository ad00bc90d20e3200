package risk

import (
	"sync"

	"github.com/kjannette/trahn-treasury/internal/errs"
)

// Rejection is one failed rule.
type Rejection struct {
	Rule string `json:"rule"`
	Code Code   `json:"code"`
}

// Result is the outcome of running the chain. Valid holds iff Rejections is
// empty.
type Result struct {
	Valid      bool        `json:"valid"`
	Rejections []Rejection `json:"rejections"`
	Context    Context     `json:"context"`
}

// Codes returns the rejection codes in rule registration order.
func (r Result) Codes() []Code {
	out := make([]Code, len(r.Rejections))
	for i, rej := range r.Rejections {
		out[i] = rej.Code
	}
	return out
}

// Chain is the ordered, mutable set of rules a trade is checked against.
// Rules are compared by identity, so register pointer values.
//
// An empty chain approves everything; that is the bootstrap state before
// governance installs rules.
type Chain struct {
	mu    sync.RWMutex
	rules []Rule
	index map[Rule]int
}

func NewChain(rules ...Rule) (*Chain, error) {
	c := &Chain{index: make(map[Rule]int, len(rules))}
	for _, r := range rules {
		if err := c.Add(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends r. Registering the same rule twice fails.
func (c *Chain) Add(r Rule) error {
	const op = "risk.add"
	if r == nil {
		return errs.E(op, errs.KindInvalidParameter, "nil rule")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[r]; ok {
		return errs.E(op, errs.KindDuplicate, "rule %q already registered", r.Name())
	}
	c.index[r] = len(c.rules)
	c.rules = append(c.rules, r)
	return nil
}

// Remove drops r in O(1) by moving the last rule into its slot. The relative
// order of the remaining rules may change.
func (c *Chain) Remove(r Rule) error {
	const op = "risk.remove"
	if r == nil {
		return errs.E(op, errs.KindInvalidParameter, "nil rule")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[r]
	if !ok {
		return errs.E(op, errs.KindNotFound, "rule %q is not registered", r.Name())
	}
	last := len(c.rules) - 1
	if i != last {
		moved := c.rules[last]
		c.rules[i] = moved
		c.index[moved] = i
	}
	c.rules[last] = nil
	c.rules = c.rules[:last]
	delete(c.index, r)
	return nil
}

// Rules returns a copy of the registered rules in evaluation order.
func (c *Chain) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Find returns the registered rule with the given name.
func (c *Chain) Find(name string) (Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// Evaluate runs every rule, without short-circuiting, and collects one
// rejection per failing rule in registration order.
func (c *Chain) Evaluate(p Proposal, ctx Context) Result {
	rules := c.Rules()
	res := Result{Context: ctx, Rejections: []Rejection{}}
	for _, r := range rules {
		if pass, code := r.Evaluate(p, &ctx); !pass {
			res.Rejections = append(res.Rejections, Rejection{Rule: r.Name(), Code: code})
		}
	}
	res.Valid = len(res.Rejections) == 0
	return res
}
