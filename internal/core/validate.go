package core

import (
	"fmt"
	"slices"
	"strings"
)

// ViolationCode categorizes invariant violations.
type ViolationCode string

const (
	// CodeUnboundName: an expression references a name that is not in scope.
	CodeUnboundName ViolationCode = "UNBOUND_NAME"

	// CodeDuplicateName: a pattern, yield record, or group binds a name twice.
	CodeDuplicateName ViolationCode = "DUPLICATE_NAME"

	// CodeScopeCollision: a scan binds a name already in the local scope.
	CodeScopeCollision ViolationCode = "SCOPE_COLLISION"

	// CodeStepBeforeScan: the first step is not a Scan or a Yield.
	CodeStepBeforeScan ViolationCode = "STEP_BEFORE_SCAN"

	// CodeStepAfterAtomYield: a step follows a Yield of a non-record value.
	CodeStepAfterAtomYield ViolationCode = "STEP_AFTER_ATOM_YIELD"

	// CodeInvalidJoin: a scan is marked as joined but does not follow a
	// scan, or its source depends on the join group it belongs to.
	CodeInvalidJoin ViolationCode = "INVALID_JOIN"

	// CodeNoopWhere: a Where on the literal true.
	CodeNoopWhere ViolationCode = "NOOP_WHERE"

	// CodeEmptyOrder: an Order with no keys.
	CodeEmptyOrder ViolationCode = "EMPTY_ORDER"

	// CodeAdjacentOrder: two Orders with no step between them.
	CodeAdjacentOrder ViolationCode = "ADJACENT_ORDER"

	// CodeIdentityYield: a Yield that reproduces the current scope.
	CodeIdentityYield ViolationCode = "IDENTITY_YIELD"

	// CodeMalformed: a structurally broken node (nil child, wrong arity).
	CodeMalformed ViolationCode = "MALFORMED"
)

// Violation describes one broken invariant.
type Violation struct {
	// Path locates the offending step, e.g. "steps[2]" or
	// "steps[0].source.steps[1]" for a nested comprehension.
	Path string

	Code    ViolationCode
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.Path, v.Code, v.Message)
}

// Validate checks the structural invariants every built comprehension
// satisfies: names are bound before use, bound names are unique, the first
// step is a Scan (or a lone constant Yield), nothing follows an atom Yield,
// and join markers only link independent adjacent scans. Nested
// comprehensions are checked recursively with the enclosing names visible.
//
// outer lists names bound by enclosing scopes.
//
// Validate is a pure function with no side effects.
func Validate(c *Comprehension, outer ...string) []Violation {
	v := &validator{}
	v.comprehension(c, outer, "")
	return v.violations
}

// CheckCanonical reports the no-op steps a simplified comprehension must not
// contain: Where(true), empty or adjacent Orders, and identity Yields other
// than a lone first step. It does not descend into nested comprehensions.
func CheckCanonical(c *Comprehension) []Violation {
	var out []Violation
	scope := []string{}
	for i, s := range c.steps {
		path := fmt.Sprintf("steps[%d]", i)
		switch st := s.(type) {
		case Where:
			if IsTrueLiteral(st.Cond) {
				out = append(out, Violation{Path: path, Code: CodeNoopWhere, Message: "where true is a no-op"})
			}
		case Order:
			if len(st.Keys) == 0 {
				out = append(out, Violation{Path: path, Code: CodeEmptyOrder, Message: "order with no keys is a no-op"})
			}
			if i > 0 {
				if _, ok := c.steps[i-1].(Order); ok {
					out = append(out, Violation{Path: path, Code: CodeAdjacentOrder, Message: "order directly follows order"})
				}
			}
		case Yield:
			if i > 0 && IsIdentityYield(scope, st.Expr) {
				out = append(out, Violation{Path: path, Code: CodeIdentityYield, Message: "yield reproduces the current scope"})
			}
		}
		scope = ScopeAfter(scope, s)
	}
	return out
}

type validator struct {
	violations []Violation
}

func (v *validator) add(path string, code ViolationCode, format string, args ...any) {
	v.violations = append(v.violations, Violation{
		Path:    path,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) comprehension(c *Comprehension, outer []string, prefix string) {
	if c == nil {
		v.add(prefix+"steps", CodeMalformed, "nil comprehension")
		return
	}
	scope := []string{}
	var groupStart int
	for i, s := range c.steps {
		path := fmt.Sprintf("%ssteps[%d]", prefix, i)
		if s == nil {
			v.add(path, CodeMalformed, "nil step")
			continue
		}
		if i > 0 && IsAtomYield(c.steps[i-1]) {
			v.add(path, CodeStepAfterAtomYield, "%s follows a yield of a non-record value", StepKind(s))
		}
		visible := append(slices.Clone(outer), scope...)

		switch st := s.(type) {
		case Scan:
			if st.Pat == nil || st.Source == nil {
				v.add(path, CodeMalformed, "scan needs a pattern and a source")
				continue
			}
			v.expr(st.Source, visible, path+".source")
			names := BoundNames(st.Pat)
			if dup, ok := DuplicateName(names); ok {
				v.add(path, CodeDuplicateName, "pattern binds %q twice", dup)
			}
			for _, n := range names {
				if slices.Contains(scope, n) {
					v.add(path, CodeScopeCollision, "%q is already in scope", n)
				}
			}
			_, prevScan := prevStep(c.steps, i).(Scan)
			if !st.Join || !prevScan {
				groupStart = i
			}
			if st.Join {
				switch {
				case !prevScan:
					v.add(path, CodeInvalidJoin, "joined scan does not follow a scan")
				case dependsOn(st.Source, groupNames(c.steps[groupStart:i])):
					v.add(path, CodeInvalidJoin, "joined scan source depends on its join group")
				}
			}
		case Where:
			if i == 0 {
				v.add(path, CodeStepBeforeScan, "where before any scan")
			}
			v.expr(st.Cond, visible, path+".cond")
		case Order:
			if i == 0 {
				v.add(path, CodeStepBeforeScan, "order before any scan")
			}
			for j, k := range st.Keys {
				v.expr(k.Expr, visible, fmt.Sprintf("%s.keys[%d]", path, j))
			}
		case Group:
			if i == 0 {
				v.add(path, CodeStepBeforeScan, "group before any scan")
			}
			for j, k := range st.Keys {
				v.expr(k.Expr, visible, fmt.Sprintf("%s.keys[%d]", path, j))
			}
			for j, a := range st.Aggs {
				if a.Arg != nil {
					v.expr(a.Arg, visible, fmt.Sprintf("%s.aggs[%d]", path, j))
				}
			}
			if dup, ok := DuplicateName(ScopeAfter(scope, st)); ok {
				v.add(path, CodeDuplicateName, "group binds %q twice", dup)
			}
		case Yield:
			if st.Expr == nil {
				v.add(path, CodeMalformed, "yield needs an expression")
				continue
			}
			v.expr(st.Expr, visible, path+".expr")
			if dup, ok := DuplicateName(YieldNames(st.Expr)); ok {
				v.add(path, CodeDuplicateName, "yield binds %q twice", dup)
			}
		case Unorder:
			if i == 0 {
				v.add(path, CodeStepBeforeScan, "unorder before any scan")
			}
		default:
			panic(unknownNode("step", s))
		}
		scope = ScopeAfter(scope, s)
	}
}

// expr checks free names of e against visible and recurses into nested
// comprehensions.
func (v *validator) expr(e Expr, visible []string, path string) {
	switch ex := e.(type) {
	case nil:
		v.add(path, CodeMalformed, "nil expression")
	case Literal:
		if ex.Value == nil {
			v.add(path, CodeMalformed, "literal has no value")
		}
	case Ref:
		if !slices.Contains(visible, ex.Name) {
			v.add(path, CodeUnboundName, "%q is not bound", ex.Name)
		}
	case Record:
		names := make([]string, len(ex.Fields))
		for i, f := range ex.Fields {
			names[i] = f.Name
			v.expr(f.Expr, visible, path)
		}
		if dup, ok := DuplicateName(names); ok {
			v.add(path, CodeDuplicateName, "record has field %q twice", dup)
		}
	case Tuple:
		if len(ex.Elems) == 0 {
			v.add(path, CodeMalformed, "tuple has no elements")
		}
		for _, el := range ex.Elems {
			v.expr(el, visible, path)
		}
	case List:
		for _, el := range ex.Elems {
			v.expr(el, visible, path)
		}
	case Apply:
		if IsInfix(ex.Fn) && len(ex.Args) != 2 {
			v.add(path, CodeMalformed, "operator %s takes 2 arguments, got %d", ex.Fn, len(ex.Args))
		}
		for _, a := range ex.Args {
			v.expr(a, visible, path)
		}
	case Select:
		v.expr(ex.Expr, visible, path)
	case Query:
		v.comprehension(ex.Comp, visible, path+".")
	default:
		panic(unknownNode("expr", e))
	}
}

func prevStep(steps []Step, i int) Step {
	if i == 0 {
		return nil
	}
	return steps[i-1]
}

// groupNames returns the names bound by a run of scans.
func groupNames(scans []Step) []string {
	var names []string
	for _, s := range scans {
		if sc, ok := s.(Scan); ok {
			names = append(names, BoundNames(sc.Pat)...)
		}
	}
	return names
}

// dependsOn reports whether e references any of names.
func dependsOn(e Expr, names []string) bool {
	for _, n := range FreeNames(e) {
		if slices.Contains(names, n) {
			return true
		}
	}
	return false
}

// FormatViolations joins violations one per line.
func FormatViolations(vs []Violation) string {
	lines := make([]string, len(vs))
	for i, v := range vs {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}
