package report

import "regexp"

// emailPattern is a basic local@domain.tld shape check. The scorer applies
// its own, stricter email heuristics; this only rejects inputs that cannot
// be an address at all.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[A-Za-z]{2,}$`)

// ValidEmail reports whether s has the basic shape of an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}
