package validator

import "regexp"

var emailFormatRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// IsValidEmailFormat reports whether email looks like a well-formed address
// (spec §4.1 step 4, "RFC-ish email format check").
func IsValidEmailFormat(email string) bool {
	return emailFormatRegex.MatchString(email)
}
