package utils

import (
	"net"
	"strings"
)

const maskGlyph = "••"

// MaskPhone keeps the first three characters and the last four digits.
// Display only, never used for matching.
func MaskPhone(value string) string {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) <= 4 {
		return value
	}
	prefix := value
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return prefix + maskGlyph + maskGlyph + d[len(d)-4:]
}

// MaskIP redacts the last two octets of an IPv4 address, or every IPv6 group down to its first character
func MaskIP(value string) string {
	ip := net.ParseIP(strings.TrimSpace(value))
	if ip == nil {
		return value
	}
	if v4 := ip.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		return parts[0] + "." + parts[1] + "." + maskGlyph + "." + maskGlyph
	}

	groups := strings.Split(strings.TrimSpace(value), ":")
	for i, g := range groups {
		if g == "" {
			continue
		}
		groups[i] = g[:1] + maskGlyph
	}
	return strings.Join(groups, ":")
}

// PayerMask hides the last three digits of an MSISDN, keeping its length
func PayerMask(msisdn string) string {
	msisdn = strings.TrimSpace(msisdn)
	if msisdn == "" || msisdn == "unknown" {
		return ""
	}
	if len(msisdn) <= 3 {
		return strings.Repeat("*", len(msisdn))
	}
	return msisdn[:len(msisdn)-3] + "***"
}
