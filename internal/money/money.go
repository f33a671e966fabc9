// Package money holds the decimal helpers shared by balances, ledger entries
// and loan schedules. Every monetary value is a decimal rounded to two places.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for monetary values.
const Scale int32 = 2

var (
	// ErrNotPositive is returned when an amount must be greater than zero.
	ErrNotPositive = errors.New("amount must be greater than zero")
	// ErrTooManyDecimals is returned when an amount carries more than two fractional digits.
	ErrTooManyDecimals = errors.New("amount must have at most two decimal places")
)

// Round rounds d half away from zero to two places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Parse reads a decimal string and checks it fits the two-place scale.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}

	if err := CheckScale(d); err != nil {
		return decimal.Zero, err
	}

	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return d
}

// CheckScale reports ErrTooManyDecimals when d cannot be represented in two places.
func CheckScale(d decimal.Decimal) error {
	if !d.Equal(Round(d)) {
		return ErrTooManyDecimals
	}

	return nil
}

// RequirePositive reports ErrNotPositive unless d > 0, and ErrTooManyDecimals
// when d has more precision than a monetary value may carry.
func RequirePositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrNotPositive
	}

	return CheckScale(d)
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}

	return total
}
