package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half-up to cents. Amounts handled here are never negative,
// so decimal's half-away-from-zero rounding is the half-up rule.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyScale)
}

// PercentOf returns round2(amount * percent / 100).
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(percent).Div(hundred))
}

func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidInput)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a decimal", ErrInvalidInput, raw)
	}
	return v, nil
}

func NormalizeCurrency(raw string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return "USD"
	}
	return c
}
