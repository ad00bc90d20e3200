package relay_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/access"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/errs"
	"github.com/kjannette/trahn-treasury/internal/params"
	"github.com/kjannette/trahn-treasury/internal/relay"
	"github.com/kjannette/trahn-treasury/internal/risk"
	"github.com/kjannette/trahn-treasury/internal/treasury"
	"github.com/kjannette/trahn-treasury/internal/units"
	"github.com/kjannette/trahn-treasury/internal/venue"
	"github.com/kjannette/trahn-treasury/internal/whitelist"
	"github.com/rs/zerolog"
)

var (
	gov       = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	relayAddr = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	vault     = common.HexToAddress("0x00000000000000000000000000000000000000C4")
	pool      = common.HexToAddress("0x00000000000000000000000000000000000000D5")
	trader    = common.HexToAddress("0x00000000000000000000000000000000000000E6")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000F7")

	usdc  = venue.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000002001"), Symbol: "USDC", Decimals: 6}
	weth  = venue.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000002002"), Symbol: "WETH", Decimals: 18}
	trahn = venue.Asset{Address: common.HexToAddress("0x0000000000000000000000000000000000002003"), Symbol: "TRAHN", Decimals: 18}
	eth   = venue.Asset{Address: treasury.NativeAsset, Symbol: "ETH", Decimals: 18}

	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

// usd builds a USDC amount in base units.
func usd(n int64) *big.Int { return big.NewInt(n * 1_000_000) }

// milliEth builds a WETH amount in base units.
func milliEth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000))
}

type harness struct {
	relay  *relay.Relay
	tr     *treasury.Treasury
	ledger *venue.Ledger
	rates  *venue.RateTable
	pairs  *whitelist.Whitelist
	rec    *audit.Recorder
	now    time.Time
}

func (h *harness) clock() time.Time { return h.now }

func newHarness(t *testing.T, rules ...risk.Rule) *harness {
	t.Helper()
	h := &harness{now: t0, rec: audit.NewRecorder(0)}
	ctx := context.Background()
	roles := access.NewRoles(gov)

	reg := venue.NewRegistry(usdc, weth, trahn, eth)
	h.rates = venue.NewRateTable(reg)
	for _, r := range []struct {
		in, out common.Address
		rate    units.Rate
	}{
		{weth.Address, usdc.Address, units.NewRate(2000, 1)},
		{usdc.Address, trahn.Address, units.NewRate(2, 1)},
		{eth.Address, usdc.Address, units.NewRate(2000, 1)},
		{eth.Address, trahn.Address, units.NewRate(4000, 1)},
	} {
		if err := h.rates.SetRate(r.in, r.out, r.rate); err != nil {
			t.Fatalf("SetRate: %v", err)
		}
	}
	h.ledger = venue.NewLedger()
	ex, err := venue.NewExchange(h.ledger, h.rates, pool, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewExchange: %v", err)
	}

	h.tr, err = treasury.New(treasury.Config{Address: vault, GovernanceAsset: trahn.Address, Relay: relayAddr},
		roles, ex, h.ledger, h.rec)
	if err != nil {
		t.Fatalf("treasury.New: %v", err)
	}
	h.tr.WithClock(h.clock)

	store, err := params.NewStore(params.RiskParameters{MaxTradeBps: 1000, MaxSlippageBps: 100, CooldownSeconds: 60}, roles, h.rec)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	h.pairs = whitelist.New(roles, h.rec)
	for _, p := range [][2]common.Address{{usdc.Address, weth.Address}, {usdc.Address, trahn.Address}} {
		if err := h.pairs.Add(ctx, gov, p[0], p[1]); err != nil {
			t.Fatalf("whitelist.Add: %v", err)
		}
	}

	if rules == nil {
		rules = risk.DefaultRules()
	}
	chain, err := risk.NewChain(rules...)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	h.relay, err = relay.New(relayAddr, roles, store, h.pairs, chain, h.rates, h.tr, h.rec)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	h.relay.WithClock(h.clock)
	if err := h.relay.AuthorizeTrader(ctx, gov, trader); err != nil {
		t.Fatalf("AuthorizeTrader: %v", err)
	}

	if err := h.ledger.Mint(usdc.Address, gov, usd(100_000)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := h.tr.Deposit(ctx, gov, usdc.Address, usd(100_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	return h
}

// swap is 1,000 USDC for at least 0.499 WETH against a 0.5 WETH quote.
func (h *harness) swap() relay.TradeRequest {
	return relay.TradeRequest{
		Kind:         treasury.ExactInput,
		AssetIn:      usdc.Address,
		AssetOut:     weth.Address,
		AmountIn:     usd(1_000),
		MinAmountOut: milliEth(499),
		Deadline:     h.now.Add(5 * time.Minute),
	}
}

func TestProposeSwap_Approved(t *testing.T) {
	h := newHarness(t)
	out, err := h.relay.ProposeSwap(context.Background(), trader, h.swap())
	if err != nil {
		t.Fatalf("ProposeSwap: %v", err)
	}
	if !out.Approved() {
		t.Fatalf("rejected: %v", out.Validation.Codes())
	}
	if out.AmountOut.Cmp(milliEth(500)) != 0 {
		t.Errorf("AmountOut = %s, want 0.5 WETH", out.AmountOut)
	}
	if got := h.tr.Balance(usdc.Address); got.Cmp(usd(99_000)) != 0 {
		t.Errorf("USDC balance = %s", got)
	}
	if got := h.tr.Balance(weth.Address); got.Cmp(milliEth(500)) != 0 {
		t.Errorf("WETH balance = %s", got)
	}
	if at, ok := h.relay.LastTradeAt(); !ok || !at.Equal(t0) {
		t.Errorf("LastTradeAt = %v, %v", at, ok)
	}
	for _, kind := range []audit.Kind{audit.TradeApproved, audit.TradeForwarded, audit.SwapCompleted} {
		if len(h.rec.OfKind(kind)) != 1 {
			t.Errorf("expected one %s record", kind)
		}
	}
}

func TestProposeSwap_UnauthorizedTrader(t *testing.T) {
	h := newHarness(t)
	_, err := h.relay.ProposeSwap(context.Background(), stranger, h.swap())
	if !errs.Is(err, errs.KindUnauthorized) {
		t.Fatalf("got %v, want unauthorized", err)
	}
	if _, traded := h.relay.LastTradeAt(); traded {
		t.Error("unauthorized proposal started the cooldown")
	}
}

func TestProposeSwap_Cooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if out, err := h.relay.ProposeSwap(ctx, trader, h.swap()); err != nil || !out.Approved() {
		t.Fatalf("first trade: %v %v", err, out.Validation.Codes())
	}

	h.now = t0.Add(30 * time.Second)
	out, err := h.relay.ProposeSwap(ctx, trader, h.swap())
	if err != nil {
		t.Fatalf("ProposeSwap at T+30: %v", err)
	}
	codes := out.Validation.Codes()
	if len(codes) != 1 || codes[0] != risk.CodeCooldownActive {
		t.Fatalf("codes at T+30 = %v", codes)
	}
	if rem := out.Validation.Context.CooldownRemaining; rem != 30*time.Second {
		t.Errorf("remaining = %s, want 30s", rem)
	}
	if out.AmountOut.Sign() != 0 {
		t.Errorf("rejected trade returned %s", out.AmountOut)
	}
	if at, _ := h.relay.LastTradeAt(); !at.Equal(t0) {
		t.Errorf("rejection moved the cooldown clock to %v", at)
	}

	h.now = t0.Add(61 * time.Second)
	out, err = h.relay.ProposeSwap(ctx, trader, h.swap())
	if err != nil || !out.Approved() {
		t.Fatalf("trade at T+61: %v %v", err, out.Validation.Codes())
	}
}

func TestProposeSwap_AggregatesEveryFailure(t *testing.T) {
	h := newHarness(t)
	before := h.tr.Balances()

	// WETH->USDC is the reverse of a whitelisted pair, and custody holds no
	// WETH. The quote is 20 USDC against a floor of one base unit.
	req := h.swap()
	req.AssetIn = weth.Address
	req.AssetOut = usdc.Address
	req.AmountIn = milliEth(10)
	req.MinAmountOut = big.NewInt(1)

	out, err := h.relay.ProposeSwap(context.Background(), trader, req)
	if err != nil {
		t.Fatalf("ProposeSwap: %v", err)
	}
	want := []risk.Code{
		risk.CodePairNotWhitelisted,
		risk.CodeTradeSizeExceeded,
		risk.CodeSlippageExceeded,
		risk.CodeInsufficientTreasuryBalance,
	}
	got := out.Validation.Codes()
	if len(got) != len(want) {
		t.Fatalf("codes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("code[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	after := h.tr.Balances()
	if len(after) != len(before) || after[usdc.Address].Cmp(before[usdc.Address]) != 0 {
		t.Errorf("balances changed: %v -> %v", before, after)
	}
	if _, traded := h.relay.LastTradeAt(); traded {
		t.Error("rejected proposal started the cooldown")
	}
	if len(h.rec.OfKind(audit.TradeRejected)) != 1 {
		t.Error("expected one rejection record")
	}
}

func TestProposeSwap_SizeBoundary(t *testing.T) {
	h := newHarness(t)
	req := h.swap()
	req.AmountIn = new(big.Int).Add(usd(10_000), big.NewInt(1))
	req.MinAmountOut = milliEth(4_990)

	out, err := h.relay.Preview(context.Background(), trader, req)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if codes := out.Codes(); len(codes) != 1 || codes[0] != risk.CodeTradeSizeExceeded {
		t.Fatalf("codes = %v", codes)
	}

	req.AmountIn = usd(10_000)
	if out, _ = h.relay.Preview(context.Background(), trader, req); !out.Valid {
		t.Fatalf("10%% of balance should pass, got %v", out.Codes())
	}
	if _, traded := h.relay.LastTradeAt(); traded {
		t.Error("Preview must not start the cooldown")
	}
}

func TestProposeSwap_TreasuryFailureRestoresCooldown(t *testing.T) {
	h := newHarness(t)
	req := h.swap()
	req.Deadline = t0.Add(-time.Second)

	_, err := h.relay.ProposeSwap(context.Background(), trader, req)
	if !errs.Is(err, errs.KindDeadlineExpired) {
		t.Fatalf("got %v, want expired deadline", err)
	}
	if _, traded := h.relay.LastTradeAt(); traded {
		t.Error("failed forward left the cooldown running")
	}
	if len(h.rec.OfKind(audit.TradeFailed)) != 1 {
		t.Error("expected one trade.failed record")
	}
	if got := h.tr.Balance(usdc.Address); got.Cmp(usd(100_000)) != 0 {
		t.Errorf("balance = %s", got)
	}
}

func TestProposeSwap_ExactOutput(t *testing.T) {
	h := newHarness(t)
	req := relay.TradeRequest{
		Kind:            treasury.ExactOutput,
		AssetIn:         usdc.Address,
		AssetOut:        weth.Address,
		AmountOut:       milliEth(500),
		AmountInMaximum: usd(1_005),
		Deadline:        t0.Add(time.Minute),
	}
	out, err := h.relay.ProposeSwap(context.Background(), trader, req)
	if err != nil {
		t.Fatalf("ProposeSwap: %v", err)
	}
	if !out.Approved() {
		t.Fatalf("rejected: %v", out.Validation.Codes())
	}
	if out.AmountIn.Cmp(usd(1_000)) != 0 {
		t.Errorf("AmountIn = %s, want 1000 USDC", out.AmountIn)
	}
	if got := out.Validation.Context.ExpectedOut; got.Cmp(new(big.Int).Mul(big.NewInt(5025), big.NewInt(1e14))) != 0 {
		t.Errorf("quote was taken on %s, want the maximum input", got)
	}
}

func TestProposeBuybackAndBurn(t *testing.T) {
	h := newHarness(t)
	out, err := h.relay.ProposeBuybackAndBurn(context.Background(), trader, relay.BuybackRequest{
		AssetIn:          usdc.Address,
		AmountIn:         usd(500),
		MinGovernanceOut: new(big.Int).Mul(big.NewInt(999), big.NewInt(1e18)),
		Deadline:         t0.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("ProposeBuybackAndBurn: %v", err)
	}
	thousand := new(big.Int).Mul(big.NewInt(1_000), big.NewInt(1e18))
	if out.Burned.Cmp(thousand) != 0 {
		t.Errorf("Burned = %s, want 1000 TRAHN", out.Burned)
	}
	if got := h.tr.Burned(trahn.Address); got.Cmp(thousand) != 0 {
		t.Errorf("treasury Burned = %s", got)
	}
	if got := h.tr.Balance(trahn.Address); got.Sign() != 0 {
		t.Errorf("treasury kept %s TRAHN", got)
	}
	if _, traded := h.relay.LastTradeAt(); !traded {
		t.Error("buyback should start the cooldown")
	}
}

func TestProposeBuyback_NotWhitelisted(t *testing.T) {
	h := newHarness(t)
	if err := h.pairs.Remove(context.Background(), gov, usdc.Address, trahn.Address); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	out, err := h.relay.ProposeBuybackAndBurn(context.Background(), trader, relay.BuybackRequest{
		AssetIn: usdc.Address, AmountIn: usd(1), MinGovernanceOut: big.NewInt(2e18), Deadline: t0,
	})
	if err != nil {
		t.Fatalf("ProposeBuybackAndBurn: %v", err)
	}
	if codes := out.Validation.Codes(); len(codes) != 1 || codes[0] != risk.CodePairNotWhitelisted {
		t.Fatalf("codes = %v", codes)
	}
}

func TestEmptyChainApprovesEverything(t *testing.T) {
	h := newHarness(t, []risk.Rule{}...)
	req := h.swap()
	req.MinAmountOut = big.NewInt(1)
	out, err := h.relay.Preview(context.Background(), trader, req)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !out.Valid || len(out.Rejections) != 0 {
		t.Fatalf("empty chain rejected: %v", out.Codes())
	}
}

func TestValidatorAdministration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cooldown, ok := h.relay.FindValidator("cooldown")
	if !ok {
		t.Fatal("cooldown rule not registered")
	}
	if err := h.relay.RemoveValidator(ctx, trader, cooldown); !errs.Is(err, errs.KindUnauthorized) {
		t.Errorf("trader removing a rule: %v", err)
	}
	if err := h.relay.AddValidator(ctx, gov, cooldown); !errs.Is(err, errs.KindDuplicate) {
		t.Errorf("duplicate add: %v", err)
	}
	if err := h.relay.RemoveValidator(ctx, gov, cooldown); err != nil {
		t.Fatalf("RemoveValidator: %v", err)
	}
	if err := h.relay.RemoveValidator(ctx, gov, cooldown); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("second remove: %v", err)
	}

	if _, err := h.relay.ProposeSwap(ctx, trader, h.swap()); err != nil {
		t.Fatalf("first trade: %v", err)
	}
	h.now = t0.Add(time.Second)
	out, err := h.relay.ProposeSwap(ctx, trader, h.swap())
	if err != nil || !out.Approved() {
		t.Fatalf("without the cooldown rule the second trade should pass: %v %v", err, out.Validation.Codes())
	}
	t.Logf("validators after removal: %v", h.relay.Validators())

	if err := h.relay.AddValidator(ctx, gov, cooldown); err != nil {
		t.Fatalf("AddValidator: %v", err)
	}
	if len(h.rec.OfKind(audit.ValidatorAdded)) != 1 || len(h.rec.OfKind(audit.ValidatorRemoved)) != 1 {
		t.Error("expected one add and one remove record")
	}
}

func TestTraderAdministration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.relay.AuthorizeTrader(ctx, trader, stranger); !errs.Is(err, errs.KindUnauthorized) {
		t.Errorf("trader granting: %v", err)
	}
	if err := h.relay.AuthorizeTrader(ctx, gov, trader); !errs.Is(err, errs.KindDuplicate) {
		t.Errorf("re-authorize: %v", err)
	}
	if err := h.relay.RevokeTrader(ctx, gov, trader); err != nil {
		t.Fatalf("RevokeTrader: %v", err)
	}
	if _, err := h.relay.ProposeSwap(ctx, trader, h.swap()); !errs.Is(err, errs.KindUnauthorized) {
		t.Errorf("revoked trader: %v", err)
	}
	if err := h.relay.RevokeTrader(ctx, gov, trader); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("second revoke: %v", err)
	}
}

func TestUpdateRiskParameters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	next := params.RiskParameters{MaxTradeBps: 50, MaxSlippageBps: 50, CooldownSeconds: 10}

	if _, err := h.relay.UpdateRiskParameters(ctx, trader, next); !errs.Is(err, errs.KindUnauthorized) {
		t.Errorf("trader updating params: %v", err)
	}
	if _, err := h.relay.UpdateRiskParameters(ctx, gov, params.RiskParameters{MaxTradeBps: 10_001}); !errs.Is(err, errs.KindInvalidParameter) {
		t.Errorf("out of range: %v", err)
	}
	if _, err := h.relay.UpdateRiskParameters(ctx, gov, next); err != nil {
		t.Fatalf("UpdateRiskParameters: %v", err)
	}
	if got := h.relay.RiskParameters(); got != next {
		t.Errorf("RiskParameters = %+v", got)
	}

	// 1,000 USDC is now above 0.5% of 100,000
	out, _ := h.relay.Preview(ctx, trader, h.swap())
	if codes := out.Codes(); len(codes) != 1 || codes[0] != risk.CodeTradeSizeExceeded {
		t.Errorf("codes = %v", codes)
	}
}

type brokenQuoter struct{}

func (brokenQuoter) Quote(context.Context, common.Address, common.Address, *big.Int) (*big.Int, error) {
	return nil, errors.New("feed offline")
}

func TestQuoteFailureIsHard(t *testing.T) {
	roles := access.NewRoles(gov)
	store, _ := params.NewStore(params.RiskParameters{MaxTradeBps: 10_000}, roles, nil)
	chain, _ := risk.NewChain(risk.DefaultRules()...)
	h := newHarness(t)
	r, err := relay.New(relayAddr, roles, store, h.pairs, chain, brokenQuoter{}, h.tr, nil)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	_ = r.AuthorizeTrader(context.Background(), gov, trader)

	_, err = r.ProposeSwap(context.Background(), trader, h.swap())
	if !errs.Is(err, errs.KindQuote) {
		t.Fatalf("got %v, want quote failure", err)
	}
	if _, traded := r.LastTradeAt(); traded {
		t.Error("quote failure started the cooldown")
	}
}

func TestProposeSwap_UnquotablePairIsSoftRejection(t *testing.T) {
	h := newHarness(t)
	unlisted := common.HexToAddress("0x0000000000000000000000000000000000009999")

	req := h.swap()
	req.AssetOut = unlisted
	req.AmountIn = usd(50_000)

	out, err := h.relay.ProposeSwap(context.Background(), trader, req)
	if err != nil {
		t.Fatalf("unlisted asset must be a rejection, got error %v", err)
	}
	codes := out.Validation.Codes()
	if len(codes) != 2 || codes[0] != risk.CodePairNotWhitelisted || codes[1] != risk.CodeTradeSizeExceeded {
		t.Fatalf("codes = %v", codes)
	}
	if out.Validation.Context.ExpectedOut.Sign() != 0 {
		t.Errorf("expectedOut = %s, want 0 without a market", out.Validation.Context.ExpectedOut)
	}
	if _, traded := h.relay.LastTradeAt(); traded {
		t.Error("rejected proposal started the cooldown")
	}
}

func TestProposeSwap_LongestCooldownHolds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	freeze := params.RiskParameters{MaxTradeBps: 1000, MaxSlippageBps: 100, CooldownSeconds: params.MaxCooldownSeconds}
	if _, err := h.relay.UpdateRiskParameters(ctx, gov, freeze); err != nil {
		t.Fatalf("UpdateRiskParameters: %v", err)
	}
	if out, err := h.relay.ProposeSwap(ctx, trader, h.swap()); err != nil || !out.Approved() {
		t.Fatalf("first trade: %v %v", err, out.Validation.Codes())
	}

	h.now = t0.Add(365 * 24 * time.Hour)
	out, err := h.relay.ProposeSwap(ctx, trader, h.swap())
	if err != nil {
		t.Fatalf("ProposeSwap a year later: %v", err)
	}
	if codes := out.Validation.Codes(); len(codes) != 1 || codes[0] != risk.CodeCooldownActive {
		t.Fatalf("codes a year later = %v", codes)
	}
	if rem := h.relay.CooldownRemaining(); rem <= 0 {
		t.Errorf("CooldownRemaining = %s", rem)
	}

	overflow := freeze
	overflow.CooldownSeconds = params.MaxCooldownSeconds + 1
	if _, err := h.relay.UpdateRiskParameters(ctx, gov, overflow); !errs.Is(err, errs.KindInvalidParameter) {
		t.Fatalf("cooldown past the duration range: %v", err)
	}
}

func TestCooldownRemaining_UsesRelayClock(t *testing.T) {
	h := newHarness(t)
	if rem := h.relay.CooldownRemaining(); rem != 0 {
		t.Fatalf("before any trade: %s", rem)
	}
	if out, err := h.relay.ProposeSwap(context.Background(), trader, h.swap()); err != nil || !out.Approved() {
		t.Fatalf("ProposeSwap: %v", err)
	}
	h.now = t0.Add(45 * time.Second)
	if rem := h.relay.CooldownRemaining(); rem != 15*time.Second {
		t.Fatalf("CooldownRemaining = %s, want 15s", rem)
	}
}

func TestProposeSwap_NativeKinds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for _, p := range [][2]common.Address{{usdc.Address, eth.Address}, {eth.Address, usdc.Address}, {eth.Address, trahn.Address}} {
		if err := h.pairs.Add(ctx, gov, p[0], p[1]); err != nil {
			t.Fatalf("whitelist.Add: %v", err)
		}
	}

	out, err := h.relay.ProposeSwap(ctx, trader, relay.TradeRequest{
		Kind:         treasury.ExactTokensForNative,
		AssetIn:      usdc.Address,
		AssetOut:     eth.Address,
		AmountIn:     usd(1_000),
		MinAmountOut: milliEth(499),
		Deadline:     h.now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("tokens for native: %v", err)
	}
	if !out.Approved() {
		t.Fatalf("tokens for native rejected: %v", out.Validation.Codes())
	}
	if out.AmountOut.Cmp(milliEth(500)) != 0 || out.Validation.Context.ExpectedOut.Cmp(milliEth(500)) != 0 {
		t.Errorf("AmountOut = %s, expected %s, want 0.5 ETH", out.AmountOut, out.Validation.Context.ExpectedOut)
	}
	if got := h.tr.Balance(eth.Address); got.Cmp(milliEth(500)) != 0 {
		t.Errorf("native balance = %s", got)
	}

	h.now = h.now.Add(61 * time.Second)
	out, err = h.relay.ProposeSwap(ctx, trader, relay.TradeRequest{
		Kind:         treasury.ExactNativeForTokens,
		AssetIn:      eth.Address,
		AssetOut:     usdc.Address,
		AmountIn:     milliEth(50),
		MinAmountOut: big.NewInt(99_500_000),
		Deadline:     h.now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("native for tokens: %v", err)
	}
	if !out.Approved() {
		t.Fatalf("native for tokens rejected: %v", out.Validation.Codes())
	}
	if out.AmountOut.Cmp(usd(100)) != 0 {
		t.Errorf("AmountOut = %s, want 100 USDC", out.AmountOut)
	}
	if got := h.tr.Balance(eth.Address); got.Cmp(milliEth(450)) != 0 {
		t.Errorf("native balance = %s, want 0.45 ETH", got)
	}

	h.now = h.now.Add(61 * time.Second)
	burn, err := h.relay.ProposeBuybackAndBurn(ctx, trader, relay.BuybackRequest{
		AssetIn:          eth.Address,
		AmountIn:         milliEth(40),
		MinGovernanceOut: new(big.Int).Mul(big.NewInt(159), big.NewInt(1e18)),
		Deadline:         h.now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("native buyback: %v", err)
	}
	if !burn.Approved() {
		t.Fatalf("native buyback rejected: %v", burn.Validation.Codes())
	}
	want := new(big.Int).Mul(big.NewInt(160), big.NewInt(1e18)) // 0.04 ETH at 4000 TRAHN
	if burn.Burned.Cmp(want) != 0 {
		t.Errorf("Burned = %s, want %s", burn.Burned, want)
	}
	if got := h.tr.Balance(eth.Address); got.Cmp(milliEth(410)) != 0 {
		t.Errorf("native balance after buyback = %s, want 0.41 ETH", got)
	}
	if n := h.ledger.JournalLen(); n != 0 {
		t.Errorf("ledger journal = %d", n)
	}
}
