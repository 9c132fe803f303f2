package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// currencySymbols maps price-string prefixes to ISO currency codes. Longer
// prefixes are checked first so "R$" wins over "$".
var currencySymbols = []struct {
	symbol   string
	currency string
}{
	{"R$", "BRL"},
	{"US$", "USD"},
	{"C$", "CAD"},
	{"A$", "AUD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₩", "KRW"},
	{"BRL", "BRL"},
	{"USD", "USD"},
	{"EUR", "EUR"},
}

// ParsePrice parses a human-formatted price string into a decimal amount
// and a currency code. It normalizes both decimal-comma locales
// ("R$ 1.234,56") and decimal-point locales ("$1,234.56"). An empty
// currency is returned for bare numbers.
func ParsePrice(raw string) (float64, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, "", fmt.Errorf("empty price string")
	}

	currency := ""
	for _, cs := range currencySymbols {
		if strings.HasPrefix(s, cs.symbol) {
			currency = cs.currency
			s = strings.TrimSpace(strings.TrimPrefix(s, cs.symbol))
			break
		}
	}
	// Trailing symbols ("1.234,56 €") and stray markup.
	s = strings.TrimFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != ','
	})
	if s == "" {
		return 0, currency, fmt.Errorf("no digits in price %q", raw)
	}

	amount, err := strconv.ParseFloat(normalizeSeparators(s), 64)
	if err != nil {
		return 0, currency, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if amount < 0 {
		return 0, currency, fmt.Errorf("negative price %q", raw)
	}
	return amount, currency, nil
}

// normalizeSeparators rewrites a localized numeral into strconv form. When
// both separators appear, whichever comes last is the decimal mark. A lone
// comma followed by exactly two digits is a decimal mark; a lone dot
// followed by exactly three digits and preceded by more digits is a
// thousands separator.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,56 -> comma decimal
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,234.56 -> dot decimal
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if len(s)-lastComma-1 == 2 && strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if len(s)-lastDot-1 == 3 && strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		} else if len(s)-lastDot-1 == 3 && lastDot > 0 && strings.Count(s, ".") == 1 {
			// Ambiguous (1.234): treat as thousands, matching what the
			// source platform emits for integer prices.
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}
