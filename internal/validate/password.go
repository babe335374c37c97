package validate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minPasswordLen    = 8
	specialCharacters = "!@#$%^&*"
)

type passwordRule struct {
	ok     func(string) bool
	reason string
}

var passwordRules = []passwordRule{
	{
		ok:     func(s string) bool { return utf8.RuneCountInString(s) >= minPasswordLen },
		reason: "Password must be at least 8 characters long.",
	},
	{
		ok:     func(s string) bool { return strings.IndexFunc(s, isASCIIUpper) >= 0 },
		reason: "Password must contain at least one uppercase letter.",
	},
	{
		ok:     func(s string) bool { return strings.IndexFunc(s, isASCIILower) >= 0 },
		reason: "Password must contain at least one lowercase letter.",
	},
	{
		ok:     func(s string) bool { return strings.IndexFunc(s, unicode.IsDigit) >= 0 },
		reason: "Password must contain at least one numeric digit.",
	},
	{
		ok:     func(s string) bool { return strings.ContainsAny(s, specialCharacters) },
		reason: "Password must contain at least one special character.",
	},
}

// PasswordStrength returns "" when s satisfies every rule, or the reason of
// the first rule it fails.
func PasswordStrength(s string) string {
	for _, r := range passwordRules {
		if !r.ok(s) {
			return r.reason
		}
	}
	return ""
}

func isASCIIUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isASCIILower(r rune) bool { return r >= 'a' && r <= 'z' }
