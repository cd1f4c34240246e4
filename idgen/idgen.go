// Package idgen generates identifiers for runs and staged products.
//
// Constructors that create records accept a Generator so tests can pin IDs.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings. They sort by
// creation time, which keeps run_log and staging rows in insertion order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID ("run_", "stg_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator ("<prefix>1", "<prefix>2", ...).
// Not safe for concurrent use; intended for tests.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return prefix + itoa(n)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// RunID returns a new run identifier.
func RunID() string {
	return "run_" + Default()
}
