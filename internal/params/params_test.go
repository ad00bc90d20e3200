package params

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/access"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/errs"
)

var (
	gov      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newStore(t *testing.T) (*Store, *audit.Recorder) {
	t.Helper()
	rec := audit.NewRecorder(0)
	s, err := NewStore(RiskParameters{MaxTradeBps: 1000, MaxSlippageBps: 100, CooldownSeconds: 60},
		access.NewRoles(gov), rec)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, rec
}

func TestSet_RoundTrip(t *testing.T) {
	s, rec := newStore(t)
	next := RiskParameters{MaxTradeBps: 2500, MaxSlippageBps: 50, CooldownSeconds: 300}

	prev, err := s.Set(context.Background(), gov, next)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if prev.MaxTradeBps != 1000 {
		t.Fatalf("expected previous snapshot returned, got %+v", prev)
	}
	if got := s.Get(); got != next {
		t.Fatalf("Get: got %+v, want %+v", got, next)
	}

	records := rec.OfKind(audit.ParamsUpdated)
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].Before.(RiskParameters) != prev || records[0].After.(RiskParameters) != next {
		t.Fatalf("audit record should carry before/after: %+v", records[0])
	}
}

func TestSet_BoundaryValuesAccepted(t *testing.T) {
	s, _ := newStore(t)
	edge := RiskParameters{MaxTradeBps: 10000, MaxSlippageBps: 0, CooldownSeconds: 0}
	if _, err := s.Set(context.Background(), gov, edge); err != nil {
		t.Fatalf("10000 and 0 bps are in range, got: %v", err)
	}
	if s.Get() != edge {
		t.Fatalf("got %+v", s.Get())
	}
}

func TestSet_OutOfRangeRejected(t *testing.T) {
	s, rec := newStore(t)
	before := s.Get()

	cases := []RiskParameters{
		{MaxTradeBps: 10001, MaxSlippageBps: 100},
		{MaxTradeBps: 100, MaxSlippageBps: 10001},
		{MaxTradeBps: 100, MaxSlippageBps: 100, CooldownSeconds: MaxCooldownSeconds + 1},
		{MaxTradeBps: 100, MaxSlippageBps: 100, CooldownSeconds: math.MaxUint64},
	}
	for _, c := range cases {
		_, err := s.Set(context.Background(), gov, c)
		if !errs.Is(err, errs.KindInvalidParameter) {
			t.Fatalf("expected invalid parameter for %+v, got %v", c, err)
		}
	}
	if s.Get() != before {
		t.Fatal("rejected update must leave parameters unchanged")
	}
	if len(rec.Records()) != 0 {
		t.Fatal("rejected update must not emit")
	}
}

func TestSet_NonGovernanceRejected(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Set(context.Background(), stranger, RiskParameters{MaxTradeBps: 1})
	if !errs.Is(err, errs.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestNewStore_InvalidInitial(t *testing.T) {
	_, err := NewStore(RiskParameters{MaxTradeBps: 20000}, access.NewRoles(gov), nil)
	if err == nil {
		t.Fatal("expected invalid initial parameters to be rejected")
	}
}

func TestSet_LongestCooldownAccepted(t *testing.T) {
	s, _ := newStore(t)
	freeze := RiskParameters{MaxTradeBps: 1000, MaxSlippageBps: 100, CooldownSeconds: MaxCooldownSeconds}
	if _, err := s.Set(context.Background(), gov, freeze); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if d := s.Get().Cooldown(); d <= 0 || d < 292*365*24*time.Hour {
		t.Fatalf("Cooldown() = %s, want about 292 years", d)
	}
}

func TestCooldown_Saturates(t *testing.T) {
	p := RiskParameters{CooldownSeconds: math.MaxUint64}
	if d := p.Cooldown(); d != time.Duration(math.MaxInt64) {
		t.Fatalf("Cooldown() = %s, want the largest duration", d)
	}
	if d := (RiskParameters{CooldownSeconds: 60}).Cooldown(); d != time.Minute {
		t.Fatalf("Cooldown() = %s", d)
	}
}
