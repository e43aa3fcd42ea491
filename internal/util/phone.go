package util

import "strings"

func DigitsOnly(input string) string {
	out := strings.Builder{}
	for _, r := range input {
		if r >= '0' && r <= '9' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// NormalizePhone returns a WhatsApp-ready number: digits only, with the
// country code prefixed to bare 10 digit local numbers.
func NormalizePhone(input, countryCode string) string {
	digits := DigitsOnly(input)
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) == 11 && strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	if len(digits) == 10 && countryCode != "" {
		return DigitsOnly(countryCode) + digits
	}
	return digits
}
