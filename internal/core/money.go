// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and their decimal representation.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountCents caps a single amount at 100 billion currency units so site
// totals stay far from int64 overflow.
const MaxAmountCents int64 = 10_000_000_000_000

var maxCents = decimal.NewFromInt(MaxAmountCents)

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents, zero and values above MaxAmountCents are rejected.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,34")  -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
//	ParseDecimalToCents("12.344") -> 1234, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return 0, ErrInvalidAmount
		}
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() || cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// ParseMoney is ParseDecimalToCents wrapped into Money.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// Decimal returns the amount as a two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimals, e.g. "-12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
