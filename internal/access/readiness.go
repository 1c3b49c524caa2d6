package access

import (
	"fmt"
	"strings"
)

// Readiness grades how good the currently known resolution for an item is.
type Readiness uint8

const (
	// ReadinessPending means no usable resolution is known yet.
	ReadinessPending Readiness = 0
	// ReadinessReady means the optimal resolution is available.
	ReadinessReady Readiness = 1
	// ReadinessDegraded means only a fallback resolution is available.
	ReadinessDegraded Readiness = 2
)

// String returns the canonical wire name of the readiness level.
func (r Readiness) String() string {
	switch r {
	case ReadinessPending:
		return "PENDING"
	case ReadinessReady:
		return "READY"
	case ReadinessDegraded:
		return "DEGRADED"
	default:
		return fmt.Sprintf("READINESS(%d)", uint8(r))
	}
}

// Code returns the single-byte wire encoding of the readiness level.
func (r Readiness) Code() byte { return byte(r) }

// Known reports whether the value is one of the defined readiness levels.
func (r Readiness) Known() bool { return r <= ReadinessDegraded }

// ReadinessFromCode converts a wire code into a readiness level.
func ReadinessFromCode(code byte) (Readiness, bool) {
	r := Readiness(code)
	return r, r.Known()
}

// ParseReadiness converts a string into a readiness level.
func ParseReadiness(value string) (Readiness, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "PENDING":
		return ReadinessPending, true
	case "READY":
		return ReadinessReady, true
	case "DEGRADED":
		return ReadinessDegraded, true
	default:
		return ReadinessPending, false
	}
}

// CanTransition reports whether the readiness state machine permits moving
// from r to next. READY is terminal for a resolution session.
func (r Readiness) CanTransition(next Readiness) bool {
	switch {
	case r == ReadinessPending && next == ReadinessDegraded:
		return true
	case r == ReadinessPending && next == ReadinessReady:
		return true
	case r == ReadinessDegraded && next == ReadinessReady:
		return true
	default:
		return false
	}
}
