package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		raw      string
		amount   float64
		currency string
	}{
		{"brazilian real", "R$ 1.234,56", 1234.56, "BRL"},
		{"us dollar", "$1,234.56", 1234.56, "USD"},
		{"us dollar explicit", "US$ 19.99", 19.99, "USD"},
		{"euro suffix", "1.234,56 €", 1234.56, ""},
		{"euro prefix", "€12,99", 12.99, "EUR"},
		{"pound", "£8.50", 8.5, "GBP"},
		{"bare decimal", "42.90", 42.9, ""},
		{"bare comma decimal", "42,90", 42.9, ""},
		{"thousands only", "1.234", 1234, ""},
		{"integer", "15", 15, ""},
		{"code prefix", "BRL 99,90", 99.9, "BRL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			amount, currency, err := ParsePrice(tc.raw)
			require.NoError(t, err)
			assert.InDelta(t, tc.amount, amount, 0.001)
			assert.Equal(t, tc.currency, currency)
		})
	}
}

func TestParsePrice_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "free", "R$", "N/A"} {
		_, _, err := ParsePrice(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}
