// Package engine serializes every state-mutating operation behind one lock so
// at most one proposal, custody movement or governance change is in flight.
package engine

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/errs"
	"github.com/kjannette/trahn-treasury/internal/metrics"
	"github.com/kjannette/trahn-treasury/internal/models"
	"github.com/kjannette/trahn-treasury/internal/params"
	"github.com/kjannette/trahn-treasury/internal/relay"
	"github.com/kjannette/trahn-treasury/internal/risk"
	"github.com/kjannette/trahn-treasury/internal/treasury"
	"github.com/kjannette/trahn-treasury/internal/whitelist"
	"github.com/rs/zerolog"
)

// TradeLog persists proposal outcomes.
type TradeLog interface {
	Record(ctx context.Context, t *models.Trade) (*models.Trade, error)
}

type Service struct {
	mu     sync.Mutex
	relay  *relay.Relay
	vault  *treasury.Treasury
	pairs  *whitelist.Whitelist
	trades TradeLog
	paper  bool
	log    zerolog.Logger
}

// NewService wires the engine. trades may be nil when no database is
// configured.
func NewService(r *relay.Relay, vault *treasury.Treasury, pairs *whitelist.Whitelist, trades TradeLog, paper bool, log zerolog.Logger) *Service {
	return &Service{relay: r, vault: vault, pairs: pairs, trades: trades, paper: paper, log: log}
}

type Status struct {
	Relay             common.Address        `json:"relay"`
	ActiveRelay       common.Address        `json:"activeRelay"`
	Treasury          common.Address        `json:"treasury"`
	GovernanceAsset   common.Address        `json:"governanceAsset"`
	BurnSink          common.Address        `json:"burnSink"`
	Params            params.RiskParameters `json:"params"`
	Validators        []string              `json:"validators"`
	LastTradeAt       *time.Time            `json:"lastTradeAt,omitempty"`
	CooldownRemaining time.Duration         `json:"cooldownRemaining"`
	Paper             bool                  `json:"paper"`
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	rp := s.relay.RiskParameters()
	st := Status{
		Relay:           s.relay.Address(),
		ActiveRelay:     s.vault.Relay(),
		Treasury:        s.vault.Address(),
		GovernanceAsset: s.vault.GovernanceAsset(),
		BurnSink:        s.vault.BurnSink(),
		Params:          rp,
		Validators:      s.relay.Validators(),
		Paper:           s.paper,
	}
	if at, ok := s.relay.LastTradeAt(); ok {
		st.LastTradeAt = &at
		st.CooldownRemaining = s.relay.CooldownRemaining()
	}
	return st
}

func (s *Service) ProposeSwap(ctx context.Context, caller common.Address, req relay.TradeRequest) (relay.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.relay.ProposeSwap(ctx, caller, req)
	kind := req.Kind
	if kind == 0 {
		kind = treasury.ExactInput
	}
	s.observe(ctx, "propose_swap", kind.String(), caller, req.AssetIn, req.AssetOut, out, err)
	return out, err
}

func (s *Service) ProposeBuyback(ctx context.Context, caller common.Address, req relay.BuybackRequest) (relay.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.relay.ProposeBuybackAndBurn(ctx, caller, req)
	s.observe(ctx, "propose_buyback", "buyback", caller, req.AssetIn, s.vault.GovernanceAsset(), out, err)
	return out, err
}

func (s *Service) Preview(ctx context.Context, caller common.Address, req relay.TradeRequest) (risk.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relay.Preview(ctx, caller, req)
}

func (s *Service) Deposit(ctx context.Context, from, asset common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("deposit", s.vault.Deposit(ctx, from, asset, amount))
}

func (s *Service) Withdraw(ctx context.Context, caller, asset, recipient common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("withdraw", s.vault.Withdraw(ctx, caller, asset, recipient, amount))
}

func (s *Service) UpdateRelay(ctx context.Context, caller, old, next common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("update_relay", s.vault.UpdateRelay(ctx, caller, old, next))
}

func (s *Service) AddPair(ctx context.Context, caller, in, out common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("add_pair", s.pairs.Add(ctx, caller, in, out))
}

func (s *Service) RemovePair(ctx context.Context, caller, in, out common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("remove_pair", s.pairs.Remove(ctx, caller, in, out))
}

func (s *Service) SetParams(ctx context.Context, caller common.Address, next params.RiskParameters) (params.RiskParameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.relay.UpdateRiskParameters(ctx, caller, next)
	return prev, s.fail("set_params", err)
}

func (s *Service) AuthorizeTrader(ctx context.Context, caller, trader common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("authorize_trader", s.relay.AuthorizeTrader(ctx, caller, trader))
}

func (s *Service) RevokeTrader(ctx context.Context, caller, trader common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("revoke_trader", s.relay.RevokeTrader(ctx, caller, trader))
}

// EnableValidator re-registers one of the canonical rules by name.
func (s *Service) EnableValidator(ctx context.Context, caller common.Address, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := canonicalRule(name)
	if !ok {
		return s.fail("enable_validator", errs.E("engine.enable_validator", errs.KindNotFound, "no rule named %q", name))
	}
	if _, registered := s.relay.FindValidator(name); registered {
		return s.fail("enable_validator", errs.E("engine.enable_validator", errs.KindDuplicate, "rule %q is already registered", name))
	}
	return s.fail("enable_validator", s.relay.AddValidator(ctx, caller, rule))
}

func (s *Service) DisableValidator(ctx context.Context, caller common.Address, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.relay.FindValidator(name)
	if !ok {
		return s.fail("disable_validator", errs.E("engine.disable_validator", errs.KindNotFound, "rule %q is not registered", name))
	}
	return s.fail("disable_validator", s.relay.RemoveValidator(ctx, caller, rule))
}

func (s *Service) Params() params.RiskParameters { return s.relay.RiskParameters() }
func (s *Service) Pairs() []whitelist.Pair       { return s.pairs.Pairs() }
func (s *Service) Traders() []common.Address     { return s.relay.Traders() }

func (s *Service) Balances() map[common.Address]*big.Int { return s.vault.Balances() }

func (s *Service) Balance(asset common.Address) *big.Int { return s.vault.Balance(asset) }

func (s *Service) Burned(asset common.Address) *big.Int { return s.vault.Burned(asset) }

func canonicalRule(name string) (risk.Rule, bool) {
	for _, r := range risk.DefaultRules() {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

func (s *Service) fail(op string, err error) error {
	if err != nil {
		kind := string(errs.KindOf(err))
		if kind == "" {
			kind = "internal"
		}
		metrics.HardFailuresTotal.WithLabelValues(op, kind).Inc()
		s.log.Warn().Err(err).Str("op", op).Msg("operation aborted")
	}
	return err
}

func (s *Service) observe(ctx context.Context, op, kind string, caller, in, out common.Address, res relay.Outcome, err error) {
	if err != nil {
		metrics.ProposalsTotal.WithLabelValues(kind, "failed").Inc()
		_ = s.fail(op, err)
		return
	}

	outcome := "approved"
	if !res.Approved() {
		outcome = "rejected"
	}
	metrics.ProposalsTotal.WithLabelValues(kind, outcome).Inc()

	codes := make([]string, len(res.Rejections))
	for i, r := range res.Rejections {
		codes[i] = string(r.Code)
	}
	s.log.Info().
		Str("op", op).
		Str("kind", kind).
		Str("trader", caller.Hex()).
		Str("outcome", outcome).
		Str("amountIn", bigString(res.AmountIn)).
		Str("amountOut", bigString(res.AmountOut)).
		Str("rejections", strings.Join(codes, ",")).
		Msg("proposal")

	if s.trades == nil {
		return
	}
	t := &models.Trade{
		Timestamp:    res.Validation.Context.EvaluatedAt,
		Trader:       caller.Hex(),
		Kind:         kind,
		AssetIn:      in.Hex(),
		AssetOut:     out.Hex(),
		AmountIn:     bigString(res.AmountIn),
		AmountOut:    bigString(res.AmountOut),
		Approved:     res.Approved(),
		Rejections:   codes,
		IsPaperTrade: s.paper,
	}
	if res.Burned != nil {
		b := res.Burned.String()
		t.Burned = &b
	}
	if _, err := s.trades.Record(context.WithoutCancel(ctx), t); err != nil {
		s.log.Error().Err(err).Msg("record trade history")
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
