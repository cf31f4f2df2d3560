package services

import (
	"regexp"
	"strings"
)

var longDigitRun = regexp.MustCompile(`\+?\d[\d\s-]{5,}\d`)

// RedactForModel replaces phone-like digit runs with their last three digits before text leaves the service
func RedactForModel(text string) string {
	return longDigitRun.ReplaceAllStringFunc(text, func(match string) string {
		var digits strings.Builder
		for _, r := range match {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		d := digits.String()
		if len(d) < 6 {
			return match
		}
		return "***" + d[len(d)-3:]
	})
}
