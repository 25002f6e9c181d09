// Package ticket generates and validates web report ticket identifiers.
//
// The wire format is WEB-{13-digit epoch millis}-{8 uppercase hex chars}
// and must stay bit-exact: clients round-trip these IDs through status
// lookups and admin actions.
package ticket

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var pattern = regexp.MustCompile(`^WEB-\d{13}-[A-F0-9]{8}$`)

// New returns a fresh ticket ID for the given creation time. Collisions
// would need the same millisecond and the same 4 random bytes; that risk is
// accepted rather than handled with a retry loop.
func New(now time.Time) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic("ticket: crypto/rand unavailable: " + err.Error())
	}
	return fmt.Sprintf("WEB-%013d-%s", now.UnixMilli(), strings.ToUpper(hex.EncodeToString(b)))
}

// Canonical uppercases an incoming ID and reports whether it is a
// well-formed ticket ID. Input is accepted case-insensitively; the
// canonical form is uppercase.
func Canonical(id string) (string, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	return id, pattern.MatchString(id)
}

// Valid reports whether id is a well-formed ticket ID in any case.
func Valid(id string) bool {
	_, ok := Canonical(id)
	return ok
}
