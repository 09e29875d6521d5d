package profile

import (
	"fmt"
	"strings"
)

const CountryCode = "232"

// NormalizePhone converts a Sierra Leone number to +232XXXXXXXX.
// Accepted inputs: +232XXXXXXXX, 232XXXXXXXX, 0XXXXXXXX and XXXXXXXX, with any spacing or punctuation.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}

		return -1
	}, raw)

	switch {
	case strings.HasPrefix(digits, CountryCode) && len(digits) == len(CountryCode)+8:
		digits = digits[len(CountryCode):]
	case strings.HasPrefix(digits, "0") && len(digits) == 9:
		digits = digits[1:]
	}

	if len(digits) != 8 {
		return "", fmt.Errorf("phone number %q is not a Sierra Leone number", raw)
	}

	return "+" + CountryCode + digits, nil
}
