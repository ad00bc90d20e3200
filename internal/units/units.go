// Package units converts amounts between assets of different fractional
// precision. All arithmetic is exact integer arithmetic on base units.
package units

import (
	"fmt"
	"math/big"

	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/kjannette/trahn-treasury/internal/errs"
	"github.com/shopspring/decimal"
)

// Rate is the price of one whole unit of the input asset in whole units of
// the output asset, as the fraction Num/Den.
type Rate struct {
	Num *big.Int
	Den *big.Int
}

func NewRate(num, den int64) Rate {
	return Rate{Num: big.NewInt(num), Den: big.NewInt(den)}
}

// RateFromDecimal converts a positive decimal price into an exact fraction.
func RateFromDecimal(d decimal.Decimal) (Rate, error) {
	if !d.IsPositive() {
		return Rate{}, fmt.Errorf("rate must be positive, got %s", d)
	}
	num := new(big.Int).Set(d.Coefficient())
	den := big.NewInt(1)
	if exp := d.Exponent(); exp >= 0 {
		num.Mul(num, pow10(uint(exp)))
	} else {
		den = pow10(uint(-exp))
	}
	return Rate{Num: num, Den: den}, nil
}

// ParseRate parses a decimal string such as "2000.5" into a Rate.
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("parse rate %q: %w", s, err)
	}
	return RateFromDecimal(d)
}

// Invert returns the reverse-direction rate.
func (r Rate) Invert() Rate {
	return Rate{Num: new(big.Int).Set(r.Den), Den: new(big.Int).Set(r.Num)}
}

func (r Rate) Valid() bool {
	return r.Num != nil && r.Den != nil && r.Num.Sign() > 0 && r.Den.Sign() > 0
}

func (r Rate) String() string {
	if !r.Valid() {
		return "invalid"
	}
	return new(big.Rat).SetFrac(r.Num, r.Den).FloatString(12)
}

// Convert turns amount (in base units of an asset with decIn fractional
// digits) into base units of an asset with decOut digits at the given rate.
//
// The higher-precision side is scaled down to the common precision first, the
// rate is applied there, and the result is scaled up to decOut. Every division
// rounds half to even.
func Convert(amount *big.Int, decIn, decOut uint8, rate Rate) (*big.Int, error) {
	const op = "units.convert"
	if amount == nil || amount.Sign() < 0 {
		return nil, errs.E(op, errs.KindInvalidParameter, "amount must be non-negative")
	}
	if !rate.Valid() {
		return nil, errs.E(op, errs.KindInvalidParameter, "rate %s is not positive", rate)
	}

	common := decIn
	if decOut < common {
		common = decOut
	}

	scaled := divRoundHalfEven(amount, pow10(uint(decIn-common)))
	scaled.Mul(scaled, rate.Num)
	scaled = divRoundHalfEven(scaled, rate.Den)
	scaled.Mul(scaled, pow10(uint(decOut-common)))

	if scaled.Cmp(gethmath.MaxBig256) > 0 {
		return nil, errs.E(op, errs.KindOverflow, "converted amount exceeds uint256")
	}
	return scaled, nil
}

// ParseAmount converts a human decimal string into base units. More
// fractional digits than the asset carries is an error, not a truncation.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", s, decimals)
	}
	out := shifted.BigInt()
	if out.Cmp(gethmath.MaxBig256) > 0 {
		return nil, fmt.Errorf("amount %q exceeds uint256", s)
	}
	return out, nil
}

// FormatAmount renders base units as a human decimal string.
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

func pow10(n uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// divRoundHalfEven returns a/b rounded half to even. a and b must be
// non-negative and b non-zero.
func divRoundHalfEven(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	twice := r.Lsh(r, 1)
	switch twice.Cmp(b) {
	case 1:
		q.Add(q, big.NewInt(1))
	case 0:
		if q.Bit(0) == 1 {
			q.Add(q, big.NewInt(1))
		}
	}
	return q
}
