package simplify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/relcomp/internal/core"
)

// Phase identifies where an InvariantViolation was detected.
type Phase string

const (
	// PhaseInput means the comprehension handed to Simplify was already
	// malformed.
	PhaseInput Phase = "input"

	// PhaseOutput means a rewrite produced a comprehension that breaks an
	// invariant. This is a bug in a rule.
	PhaseOutput Phase = "output"

	// PhaseFixedPoint means the rewrite loop did not converge.
	PhaseFixedPoint Phase = "fixed-point"
)

// InvariantViolation reports an internal consistency failure. It is never
// caused by a well-formed builder call sequence; callers should surface it
// as an internal-error diagnostic and abort the compilation unit.
type InvariantViolation struct {
	Phase Phase

	// Comprehension is the canonical rendering of the offending value.
	Comprehension string

	Violations []core.Violation
}

// Error implements the error interface.
func (e *InvariantViolation) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("INVARIANT_VIOLATION: %s (phase=%s, comprehension=%s)",
		strings.Join(parts, "; "), e.Phase, e.Comprehension)
}

// IsInvariantViolation returns true if the error is an InvariantViolation.
// Uses errors.As to handle wrapped errors.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
