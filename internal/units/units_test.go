package units

import (
	"math/big"
	"testing"

	"github.com/kjannette/trahn-treasury/internal/errs"
	"github.com/shopspring/decimal"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int %q", s)
	}
	return v
}

func TestConvert_SixToEighteen(t *testing.T) {
	// 1.5 USDC at 1 USDC = 0.0005 ETH -> 0.00075 ETH
	rate, err := ParseRate("0.0005")
	if err != nil {
		t.Fatalf("ParseRate: %v", err)
	}
	got, err := Convert(big.NewInt(1_500_000), 6, 18, rate)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got.Cmp(mustBig(t, "750000000000000")) != 0 {
		t.Fatalf("got %s", got)
	}
}

func TestConvert_EighteenToSix(t *testing.T) {
	// 0.75 ETH at 2000 -> 1500 USDC
	got, err := Convert(mustBig(t, "750000000000000000"), 18, 6, NewRate(2000, 1))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got.Cmp(big.NewInt(1_500_000_000)) != 0 {
		t.Fatalf("got %s", got)
	}
}

func TestConvert_RoundTripWithinOneLowUnit(t *testing.T) {
	one := NewRate(1, 1)
	lowUnit := mustBig(t, "1000000000000") // one 6-digit unit expressed in 18 digits

	amounts := []string{
		"1", "999999999999", "1000000000000", "1234567890123456789",
		"500000000000", "1500000000000", "2500000000000", "987654321987654321",
	}
	for _, s := range amounts {
		x := mustBig(t, s)
		six, err := Convert(x, 18, 6, one)
		if err != nil {
			t.Fatalf("Convert down: %v", err)
		}
		back, err := Convert(six, 6, 18, one)
		if err != nil {
			t.Fatalf("Convert up: %v", err)
		}
		diff := new(big.Int).Sub(back, x)
		if new(big.Int).Abs(diff).Cmp(lowUnit) > 0 {
			t.Fatalf("%s: round trip error %s exceeds one low-precision unit", s, diff)
		}
	}

	// Low precision first: exact.
	for _, v := range []int64{1, 7, 1_000_000, 123_456_789} {
		x := big.NewInt(v)
		up, _ := Convert(x, 6, 18, one)
		back, _ := Convert(up, 18, 6, one)
		if back.Cmp(x) != 0 {
			t.Fatalf("%d: expected exact round trip, got %s", v, back)
		}
	}
}

func TestConvert_RoundTripInverseRate(t *testing.T) {
	rate := NewRate(2000, 1) // ETH -> USDC
	x := big.NewInt(1_500_000)
	eth, err := Convert(x, 6, 18, rate.Invert())
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	back, err := Convert(eth, 18, 6, rate)
	if err != nil {
		t.Fatalf("Convert back: %v", err)
	}
	if new(big.Int).Sub(back, x).CmpAbs(big.NewInt(1)) > 0 {
		t.Fatalf("round trip drifted: %s -> %s -> %s", x, eth, back)
	}
}

func TestConvert_RoundingIsUnbiased(t *testing.T) {
	one := NewRate(1, 1)
	step := big.NewInt(100_000_000_000) // 0.1 low unit
	x := new(big.Int)
	var up, down int
	sum := new(big.Int)
	for i := 0; i < 40; i++ {
		x.Add(x, step)
		six, _ := Convert(x, 18, 6, one)
		back, _ := Convert(six, 6, 18, one)
		d := new(big.Int).Sub(back, x)
		switch d.Sign() {
		case 1:
			up++
		case -1:
			down++
		}
		sum.Add(sum, d)
	}
	if up == 0 || down == 0 {
		t.Fatalf("rounding should go both ways, up=%d down=%d", up, down)
	}
	if sum.CmpAbs(mustBig(t, "1000000000000")) > 0 {
		t.Fatalf("cumulative error %s is systematically biased", sum)
	}
}

func TestConvert_InvalidInputs(t *testing.T) {
	if _, err := Convert(big.NewInt(-1), 6, 18, NewRate(1, 1)); !errs.Is(err, errs.KindInvalidParameter) {
		t.Fatalf("negative amount: %v", err)
	}
	if _, err := Convert(big.NewInt(1), 6, 18, NewRate(0, 1)); !errs.Is(err, errs.KindInvalidParameter) {
		t.Fatalf("zero rate: %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	if _, err := Convert(huge, 6, 18, NewRate(1, 1)); !errs.Is(err, errs.KindOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestRateFromDecimal(t *testing.T) {
	r, err := RateFromDecimal(decimal.RequireFromString("2000"))
	if err != nil {
		t.Fatalf("RateFromDecimal: %v", err)
	}
	if new(big.Rat).SetFrac(r.Num, r.Den).Cmp(big.NewRat(2000, 1)) != 0 {
		t.Fatalf("got %s", r)
	}
	if _, err := RateFromDecimal(decimal.Zero); err == nil {
		t.Fatal("zero rate should be rejected")
	}
	if _, err := ParseRate("abc"); err == nil {
		t.Fatal("garbage rate should be rejected")
	}
}

func TestParseAndFormatAmount(t *testing.T) {
	v, err := ParseAmount("1.5", 6)
	if err != nil || v.Int64() != 1_500_000 {
		t.Fatalf("ParseAmount: %v %v", v, err)
	}
	if _, err := ParseAmount("1.0000001", 6); err == nil {
		t.Fatal("too many fractional digits should fail")
	}
	if _, err := ParseAmount("-1", 6); err == nil {
		t.Fatal("negative amount should fail")
	}
	if got := FormatAmount(big.NewInt(1_500_000), 6); got != "1.5" {
		t.Fatalf("FormatAmount: %s", got)
	}
	if got := FormatAmount(nil, 18); got != "0" {
		t.Fatalf("FormatAmount(nil): %s", got)
	}
}
