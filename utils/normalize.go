package utils

import (
	"strconv"
	"strings"
	"unicode"
)

// NormalizePhone turns a raw MSISDN into E.164 form.
// Everything except digits and a leading '+' is dropped. Local Rwandan numbers
// (07xxxxxxxx) and bare country-code numbers (2507xxxxxxxx) are expanded.
// The boolean is false for input that cannot be a phone number.
func NormalizePhone(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	plus := strings.HasPrefix(raw, "+")
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if !plus {
		switch {
		case strings.HasPrefix(digits, "00"):
			digits = digits[2:]
		case strings.HasPrefix(digits, "0") && len(digits) == 10:
			digits = RwandaCountryCode + digits[1:]
		case len(digits) == 9 && strings.HasPrefix(digits, "7"):
			digits = RwandaCountryCode + digits
		}
	}

	if len(digits) < MinPhoneDigits || len(digits) > MaxPhoneDigits {
		return "", false
	}
	if digits[0] == '0' {
		return "", false
	}

	return "+" + digits, true
}

// ParseAmount reads a mobile-money amount such as "25,000", "25 000" or "25000.00".
// Only whole amounts are accepted: a fractional part must be all zeros.
func ParseAmount(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "-") {
		return 0, false
	}

	intPart := raw
	if i := strings.LastIndex(raw, "."); i >= 0 && len(raw)-i-1 <= 2 {
		frac := raw[i+1:]
		if strings.Trim(frac, "0") != "" {
			return 0, false
		}
		intPart = raw[:i]
	}

	var b strings.Builder
	for _, r := range intPart {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.' || r == ' ' || r == '\u00a0' || r == '\'':
			// thousands separators
		default:
			return 0, false
		}
	}
	if b.Len() == 0 {
		return 0, false
	}

	amount, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

// NormalizeRef canonicalizes a transaction reference token for exact matching
func NormalizeRef(raw string) string {
	ref := strings.TrimSpace(raw)
	ref = strings.TrimRightFunc(ref, func(r rune) bool {
		return unicode.IsPunct(r) && r != '-'
	})
	return strings.ToUpper(ref)
}
