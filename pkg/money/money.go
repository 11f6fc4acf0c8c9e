// Package money holds the decimal arithmetic used at the edges of the cents ledger:
// commission splits, FX normalization, and display formatting.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatCents renders minor units as a fixed two-decimal string ("12.34").
func FormatCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(hundred).StringFixed(2)
}

// ParseMajor converts a major-unit string ("12.34") into cents. More than two
// fractional digits is rejected.
func ParseMajor(value string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	cents := amount.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", value)
	}
	return cents.IntPart(), nil
}

// SplitCommission computes the seller share round(total × (1 − rate)) and the
// platform commission as the remainder so the two always sum to total.
func SplitCommission(totalCents int64, rate decimal.Decimal) (sellerCents, commissionCents int64) {
	seller := decimal.NewFromInt(totalCents).Mul(decimal.NewFromInt(1).Sub(rate)).Round(0).IntPart()
	return seller, totalCents - seller
}

// Converter normalizes amounts into a base currency using fixed rates, each rate
// being the base units per one unit of the keyed currency.
type Converter struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewConverter builds a Converter. The base currency always converts at 1.
func NewConverter(base string, rates map[string]decimal.Decimal) *Converter {
	base = normalize(base)
	copied := make(map[string]decimal.Decimal, len(rates)+1)
	for cur, rate := range rates {
		copied[normalize(cur)] = rate
	}
	copied[base] = decimal.NewFromInt(1)
	return &Converter{base: base, rates: copied}
}

// Base returns the normalized base currency.
func (c *Converter) Base() string {
	return c.base
}

// ToBase converts cents in currency into base-currency cents, rounding half away from zero.
func (c *Converter) ToBase(cents int64, currency string) (int64, error) {
	rate, ok := c.rates[normalize(currency)]
	if !ok {
		return 0, fmt.Errorf("no fx rate for currency %q", currency)
	}
	return decimal.NewFromInt(cents).Mul(rate).Round(0).IntPart(), nil
}

// Supports reports whether currency has a configured rate.
func (c *Converter) Supports(currency string) bool {
	_, ok := c.rates[normalize(currency)]
	return ok
}

func normalize(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}
