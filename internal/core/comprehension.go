package core

import "slices"

// Comprehension is the query-plan IR node: an ordered list of steps starting
// from an implicit empty scope.
//
// A Comprehension is immutable once constructed. Steps returns a copy, and
// the nodes it holds must be treated as read-only. A Comprehension with zero
// steps is the empty comprehension "from".
type Comprehension struct {
	steps []Step
}

// Empty is the empty comprehension.
var Empty = &Comprehension{}

// NewComprehension freezes steps into a Comprehension. The slice is copied;
// no validation is performed. Use Validate, or build through the builder
// package, to obtain an invariant-satisfying value.
func NewComprehension(steps []Step) *Comprehension {
	return &Comprehension{steps: slices.Clone(steps)}
}

// Steps returns a copy of the steps.
func (c *Comprehension) Steps() []Step {
	return slices.Clone(c.steps)
}

// Len returns the number of steps.
func (c *Comprehension) Len() int {
	return len(c.steps)
}

// Step returns step i.
func (c *Comprehension) Step(i int) Step {
	return c.steps[i]
}

// IsEmpty reports whether c has no steps.
func (c *Comprehension) IsEmpty() bool {
	return len(c.steps) == 0
}

// Scope returns the names in scope after the last step.
func (c *Comprehension) Scope() []string {
	scope := []string{}
	for _, s := range c.steps {
		scope = ScopeAfter(scope, s)
	}
	return scope
}

// Scopes returns the scope after each step; Scopes()[i] is the scope visible
// to step i+1.
func (c *Comprehension) Scopes() [][]string {
	out := make([][]string, len(c.steps))
	scope := []string{}
	for i, s := range c.steps {
		scope = ScopeAfter(scope, s)
		out[i] = scope
	}
	return out
}

// EndsWithAtom reports whether the last step is an atom Yield, in which case
// the comprehension's elements are that atom rather than the scope.
func (c *Comprehension) EndsWithAtom() bool {
	if len(c.steps) == 0 {
		return false
	}
	return IsAtomYield(c.steps[len(c.steps)-1])
}

// ElementExpr returns the expression, over the final scope, that denotes one
// element of c: the single name when one name is in scope, otherwise a record
// of the scope in order. It returns false when the elements are atoms.
func (c *Comprehension) ElementExpr() (Expr, bool) {
	if c.EndsWithAtom() {
		return nil, false
	}
	return ScopeElement(c.Scope()), true
}

// String renders c in canonical form.
func (c *Comprehension) String() string {
	return renderComprehension(c)
}
