package eval

import (
	"errors"
	"fmt"
)

// Error reports a failure while evaluating an expression or comprehension.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the canonical rendering of the expression or step that failed.
	Node string
}

// ErrorCode categorizes evaluation errors.
type ErrorCode string

const (
	// ErrCodeUnbound indicates a reference to a name with no value.
	ErrCodeUnbound ErrorCode = "UNBOUND_NAME"

	// ErrCodeType indicates an operand of the wrong kind.
	ErrCodeType ErrorCode = "TYPE_MISMATCH"

	// ErrCodeDivideByZero indicates div or mod by zero.
	ErrCodeDivideByZero ErrorCode = "DIVIDE_BY_ZERO"

	// ErrCodeUnknownFunction indicates an operator, function, or aggregate
	// the evaluator does not implement.
	ErrCodeUnknownFunction ErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodePatternMismatch indicates a value whose shape does not fit the
	// scan pattern.
	ErrCodePatternMismatch ErrorCode = "PATTERN_MISMATCH"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsTypeError returns true if the error is a type mismatch.
// Uses errors.As to handle wrapped errors.
func IsTypeError(err error) bool {
	return code(err) == ErrCodeType
}

// IsUnknownFunction returns true if the error names an unimplemented
// function or aggregate.
func IsUnknownFunction(err error) bool {
	return code(err) == ErrCodeUnknownFunction
}

func code(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code ErrorCode, node, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Node: node}
}
