// Package core holds the value types shared by the calculators, the store and
// the services.
//
// Money keeps ledger amounts as decimals so totals over many rows do not
// drift. Reserve projections stay on float64, see the reserve package.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a decimal currency amount. It marshals to JSON as a quoted
// decimal string.
type Money struct {
	decimal.Decimal
}

var Zero = Money{}

// ParseMoney converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up to cents. Negative and empty inputs are rejected.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,345") -> 12.35
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, InvalidArgument("empty amount")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Zero, InvalidArgument("amount %q must be unsigned", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, InvalidArgument("amount %q is not a number", s)
	}
	return Money{d.Round(2)}, nil
}

func MoneyFromCents(cents int64) Money {
	return Money{decimal.New(cents, -2)}
}

func MoneyFromFloat(f float64) Money {
	return Money{decimal.NewFromFloat(f)}
}

func (m Money) Add(o Money) Money { return Money{m.Decimal.Add(o.Decimal)} }

func (m Money) Sub(o Money) Money { return Money{m.Decimal.Sub(o.Decimal)} }

// Cents returns the amount in cents, rounded half-up.
func (m Money) Cents() int64 {
	return m.Decimal.Shift(2).Round(0).IntPart()
}

// String formats with exactly two decimals.
func (m Money) String() string {
	return m.Decimal.StringFixed(2)
}

// Float64 is for display and for the float-based reserve projection only.
func (m Money) Float64() float64 {
	return m.Decimal.InexactFloat64()
}

func (m Money) Validate() error {
	if !m.Decimal.IsPositive() {
		return InvalidArgument("amount must be positive")
	}
	return nil
}
