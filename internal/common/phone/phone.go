// Package phone normalises user-entered phone numbers to E.164.
package phone

import (
	"errors"
	"strings"
)

const DefaultCountryCode = "+91"

var ErrInvalid = errors.New("invalid phone number")

// Normalize converts raw input to "+<country><number>". Ten-digit local
// numbers get countryCode prepended; numbers that already carry a country
// code are kept. Anything shorter than ten digits is rejected.
func Normalize(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	ccDigits := strings.TrimPrefix(countryCode, "+")

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}
	hasPlus := strings.HasPrefix(raw, "+")
	digits := digitsOnly(raw)
	if digits == "" {
		return "", ErrInvalid
	}

	if hasPlus {
		switch {
		case len(digits) == 10:
			return countryCode + digits, nil
		case len(digits) >= 10 && len(digits) <= 15:
			return "+" + digits, nil
		}
		return "", ErrInvalid
	}

	if trimmed := strings.TrimLeft(digits, "0"); trimmed != "" {
		digits = trimmed
	}

	var out string
	switch n := len(digits); {
	case n < 10:
		return "", ErrInvalid
	case n == 10:
		out = countryCode + digits
	case n == 12 && strings.HasPrefix(digits, "91"):
		out = "+" + digits
	case n > 12 && strings.HasPrefix(digits, ccDigits):
		out = "+" + digits
	case n == 11 && strings.HasPrefix(digits, ccDigits):
		out = "+" + digits
	default:
		out = countryCode + digits
	}
	if len(out)-1 > 15 {
		return "", ErrInvalid
	}
	return out, nil
}

// Mask hides all but the last four digits, for logs.
func Mask(e164 string) string {
	if len(e164) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(e164)-4) + e164[len(e164)-4:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
