package contract

import (
	"errors"
	"fmt"
)

// Strictness selects how much effort the pipeline spends salvaging a record.
type Strictness string

const (
	// Strict never repairs: violating fields are defaulted, and a violating
	// required field replaces the whole record with the full-record default.
	Strict Strictness = "strict"

	// Medium repairs once and defaults what still fails, per field.
	Medium Strictness = "medium"

	// Lenient repairs once and defaults what still fails, per field.
	Lenient Strictness = "lenient"
)

// ErrInvalidStrictness is wrapped by ParseStrictness failures.
var ErrInvalidStrictness = errors.New("invalid strictness")

// ParseStrictness parses a strictness name. The empty string selects Medium.
func ParseStrictness(s string) (Strictness, error) {
	switch Strictness(s) {
	case "":
		return Medium, nil
	case Strict, Medium, Lenient:
		return Strictness(s), nil
	default:
		return "", fmt.Errorf("%w: %q (want strict, medium or lenient)", ErrInvalidStrictness, s)
	}
}

// AllowsRepair reports whether the repair stage runs at this level.
func (s Strictness) AllowsRepair() bool {
	return s != Strict
}

// EscalatesRequired reports whether defaulting a required field replaces the
// whole record.
func (s Strictness) EscalatesRequired() bool {
	return s == Strict
}
