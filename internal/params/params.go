package params

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/access"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/errs"
)

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10000

// MaxCooldownSeconds is the longest cooldown a time.Duration can carry,
// roughly 292 years.
const MaxCooldownSeconds = uint64(math.MaxInt64 / int64(time.Second))

// RiskParameters holds the governance-set limits. A zero MaxTradeBps blocks
// every non-zero trade; a zero CooldownSeconds disables the cooldown.
type RiskParameters struct {
	MaxTradeBps     uint32 `json:"maxTradeBps" yaml:"max_trade_bps"`
	MaxSlippageBps  uint32 `json:"maxSlippageBps" yaml:"max_slippage_bps"`
	CooldownSeconds uint64 `json:"cooldownSeconds" yaml:"cooldown_seconds"`
}

func (p RiskParameters) Validate() error {
	if p.MaxTradeBps > BpsDenominator {
		return errs.E("params.validate", errs.KindInvalidParameter,
			"maxTradeBps %d exceeds %d", p.MaxTradeBps, BpsDenominator)
	}
	if p.MaxSlippageBps > BpsDenominator {
		return errs.E("params.validate", errs.KindInvalidParameter,
			"maxSlippageBps %d exceeds %d", p.MaxSlippageBps, BpsDenominator)
	}
	if p.CooldownSeconds > MaxCooldownSeconds {
		return errs.E("params.validate", errs.KindInvalidParameter,
			"cooldownSeconds %d exceeds %d", p.CooldownSeconds, MaxCooldownSeconds)
	}
	return nil
}

// Cooldown returns CooldownSeconds as a duration, saturating at the largest
// representable duration.
func (p RiskParameters) Cooldown() time.Duration {
	if p.CooldownSeconds > MaxCooldownSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(p.CooldownSeconds) * time.Second
}

func (p RiskParameters) String() string {
	return fmt.Sprintf("maxTrade=%dbps maxSlippage=%dbps cooldown=%ds",
		p.MaxTradeBps, p.MaxSlippageBps, p.CooldownSeconds)
}

// Store holds the current RiskParameters. Only governance may overwrite them.
type Store struct {
	auth access.Authority
	sink audit.Sink
	now  func() time.Time

	mu      sync.RWMutex
	current RiskParameters
}

func NewStore(initial RiskParameters, auth access.Authority, sink audit.Sink) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		auth:    auth,
		sink:    audit.OrDiscard(sink),
		now:     time.Now,
		current: initial,
	}, nil
}

// WithClock overrides the time source used for audit timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Get returns the current parameters.
func (s *Store) Get() RiskParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set overwrites the parameters wholesale and returns the previous snapshot.
func (s *Store) Set(ctx context.Context, caller common.Address, next RiskParameters) (RiskParameters, error) {
	const op = "params.set"
	if !s.auth.IsGovernance(caller) {
		return RiskParameters{}, errs.E(op, errs.KindUnauthorized, "caller %s is not governance", caller.Hex())
	}
	if err := next.Validate(); err != nil {
		return RiskParameters{}, err
	}

	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	s.sink.Emit(ctx, audit.NewRecord(audit.ParamsUpdated, caller, s.now()).
		Change(prev, next).
		With("cooldownSeconds", strconv.FormatUint(next.CooldownSeconds, 10)))
	return prev, nil
}
