package validator

import "strings"

// CanonicalizePhone strips formatting and normalizes a US phone number to
// its 11-digit, leading-1 form (spec §4.1 step 5, §8): "(800) 555-0100" and
// "8005550100" both become "18005550100"; "18005550100" passes through
// unchanged; anything that isn't 10 or 11-digits-with-leading-1 is rejected.
func CanonicalizePhone(phone string) (string, bool) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch len(digits) {
	case 10:
		return "1" + digits, true
	case 11:
		if digits[0] == '1' {
			return digits, true
		}
	}
	return "", false
}
