package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks a phone number for safe logging, keeping only the
// last 2 digits. "18005550100" → "*********00"
func RedactPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 2 {
		return strings.Repeat("*", len(phone))
	}
	keep := 2
	masked := make([]byte, len(phone))
	seen := 0
	for i := len(phone) - 1; i >= 0; i-- {
		c := phone[i]
		if c >= '0' && c <= '9' && seen < keep {
			masked[i] = c
			seen++
		} else {
			masked[i] = '*'
		}
	}
	return string(masked)
}
