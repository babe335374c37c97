// Package validate holds the pure input checks run before any account
// mutation: email shape, password strength, the MM/DD/YYYY date acceptor and
// profile validation.
package validate

import "strings"

// Email reports whether s looks like an address: it must contain '@' and
// '.', the '@' must come before the last '.', and neither may open or close
// the string.
func Email(s string) bool {
	if s == "" {
		return false
	}
	at := strings.IndexByte(s, '@')
	firstDot := strings.IndexByte(s, '.')
	lastDot := strings.LastIndexByte(s, '.')
	if at < 0 || firstDot < 0 {
		return false
	}
	if at > lastDot {
		return false
	}
	if at == 0 || firstDot == 0 {
		return false
	}
	last := len(s) - 1
	if at == last || firstDot == last {
		return false
	}
	return true
}
