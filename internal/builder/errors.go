package builder

import (
	"errors"
	"fmt"
	"strings"
)

// ScopeError reports a builder call that would break the scoping rules of a
// comprehension. It is detected at the offending call; the builder's steps
// and scope are left as they were before the call.
type ScopeError struct {
	// Code identifies the error category.
	Code ScopeErrorCode

	// Message is a human-readable description.
	Message string

	// Step is the builder call that failed ("scan", "where", ...).
	Step string

	// Name is the offending name, when there is one.
	Name string
}

// ScopeErrorCode categorizes scope errors.
type ScopeErrorCode string

const (
	// ErrCodeScopeCollision indicates a scan binds a name already in scope.
	ErrCodeScopeCollision ScopeErrorCode = "SCOPE_COLLISION"

	// ErrCodeDuplicateName indicates a pattern, yield record, or group binds
	// the same name twice.
	ErrCodeDuplicateName ScopeErrorCode = "DUPLICATE_NAME"

	// ErrCodeUnboundName indicates an expression references a name that is
	// not in scope.
	ErrCodeUnboundName ScopeErrorCode = "UNBOUND_NAME"

	// ErrCodeStepBeforeScan indicates a where, order, group, or unorder with
	// nothing in scope yet.
	ErrCodeStepBeforeScan ScopeErrorCode = "STEP_BEFORE_SCAN"

	// ErrCodeStepAfterAtomYield indicates a step after a yield of a
	// non-record value, which leaves no names in scope.
	ErrCodeStepAfterAtomYield ScopeErrorCode = "STEP_AFTER_ATOM_YIELD"

	// ErrCodeMalformed indicates a nil pattern or expression argument.
	ErrCodeMalformed ScopeErrorCode = "MALFORMED"
)

// Error implements the error interface.
func (e *ScopeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (step=%s, name=%s)", e.Code, e.Message, e.Step, e.Name)
	}
	return fmt.Sprintf("%s: %s (step=%s)", e.Code, e.Message, e.Step)
}

// UnboundNameError reports a reference to a name that no prior step and no
// enclosing scope binds. It unwraps to a ScopeError with ErrCodeUnboundName.
type UnboundNameError struct {
	Name  string
	Step  string
	Scope []string
}

// Error implements the error interface.
func (e *UnboundNameError) Error() string {
	return fmt.Sprintf("%s: %q is not bound (step=%s, scope=[%s])",
		ErrCodeUnboundName, e.Name, e.Step, strings.Join(e.Scope, ", "))
}

// Unwrap exposes the ScopeError view of e.
func (e *UnboundNameError) Unwrap() error {
	return &ScopeError{
		Code:    ErrCodeUnboundName,
		Message: fmt.Sprintf("%q is not bound", e.Name),
		Step:    e.Step,
		Name:    e.Name,
	}
}

// IsScopeError returns true if the error is a ScopeError of any code,
// including an UnboundNameError. Uses errors.As to handle wrapped errors.
func IsScopeError(err error) bool {
	var se *ScopeError
	return errors.As(err, &se)
}

// IsUnboundNameError returns true if the error is an UnboundNameError.
// Uses errors.As to handle wrapped errors.
func IsUnboundNameError(err error) bool {
	var ue *UnboundNameError
	return errors.As(err, &ue)
}

// IsScopeCollision returns true if the error is a scan scope collision.
func IsScopeCollision(err error) bool {
	return scopeCode(err) == ErrCodeScopeCollision
}

// IsDuplicateName returns true if the error is a duplicate binding.
func IsDuplicateName(err error) bool {
	return scopeCode(err) == ErrCodeDuplicateName
}

// Code returns the ScopeErrorCode of err, or "" when err is not a scope error.
func Code(err error) ScopeErrorCode {
	return scopeCode(err)
}

func scopeCode(err error) ScopeErrorCode {
	var se *ScopeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func newScopeError(code ScopeErrorCode, step, name, format string, args ...any) *ScopeError {
	return &ScopeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Step:    step,
		Name:    name,
	}
}
