package domain

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentOf(t *testing.T) {
	assert.Equal(t, "5.00", PercentOf(decimal.NewFromInt(50), decimal.NewFromInt(10)).StringFixed(MoneyScale))
	assert.Equal(t, "0.13", PercentOf(decimal.RequireFromString("1.25"), decimal.NewFromInt(10)).StringFixed(MoneyScale))
	assert.Equal(t, "1.23", PercentOf(decimal.RequireFromString("12.34"), decimal.NewFromInt(10)).StringFixed(MoneyScale))
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 19.99 ")
	require.NoError(t, err)
	assert.Equal(t, "19.99", v.StringFixed(MoneyScale))

	_, err = ParseAmount("")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseAmount("ten")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "USD", NormalizeCurrency(""))
	assert.Equal(t, "EUR", NormalizeCurrency(" eur "))
}

func TestNormalizeAffiliateCode(t *testing.T) {
	code, ok := NormalizeAffiliateCode("  Creator_01 ")
	assert.True(t, ok)
	assert.Equal(t, "creator_01", code)

	for _, raw := range []string{"ab", "has space", "emoji😀", strings.Repeat("a", 33)} {
		_, ok := NormalizeAffiliateCode(raw)
		assert.False(t, ok, raw)
	}
}
