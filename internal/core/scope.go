package core

import "slices"

// ScopeAfter returns the scope visible after s, given the scope before it.
// The input slice is never modified.
func ScopeAfter(scope []string, s Step) []string {
	switch st := s.(type) {
	case Scan:
		return append(slices.Clone(scope), BoundNames(st.Pat)...)
	case Where, Order, Unorder:
		return scope
	case Group:
		out := make([]string, 0, len(st.Keys)+len(st.Aggs))
		for _, k := range st.Keys {
			out = append(out, k.Name)
		}
		for _, a := range st.Aggs {
			out = append(out, a.Name)
		}
		return out
	case Yield:
		return YieldNames(st.Expr)
	default:
		panic(unknownNode("step", s))
	}
}

// YieldNames returns the names a Yield of e binds: the fields of a record,
// the name of a bare reference, or nothing for an atom.
func YieldNames(e Expr) []string {
	switch ex := e.(type) {
	case Record:
		names := make([]string, len(ex.Fields))
		for i, f := range ex.Fields {
			names[i] = f.Name
		}
		return names
	case Ref:
		return []string{ex.Name}
	default:
		return []string{}
	}
}

// IsAtomYield reports whether s is a Yield of something other than a record
// or a bare reference.
func IsAtomYield(s Step) bool {
	y, ok := s.(Yield)
	if !ok {
		return false
	}
	switch y.Expr.(type) {
	case Record, Ref:
		return false
	default:
		return true
	}
}

// IsIdentityYield reports whether yielding e over scope is a no-op: the
// produced names equal scope (same names, same order) and each is bound to a
// bare reference of the identically named prior binding.
func IsIdentityYield(scope []string, e Expr) bool {
	switch ex := e.(type) {
	case Ref:
		return len(scope) == 1 && scope[0] == ex.Name
	case Record:
		if len(ex.Fields) != len(scope) {
			return false
		}
		for i, f := range ex.Fields {
			ref, ok := f.Expr.(Ref)
			if !ok || f.Name != scope[i] || ref.Name != f.Name {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ScopeElement returns the expression denoting one element of a comprehension
// whose final scope is scope: the bare name for a single-name scope, a record
// of every name otherwise (the empty record, i.e. unit, for an empty scope).
func ScopeElement(scope []string) Expr {
	if len(scope) == 1 {
		return Ref{Name: scope[0]}
	}
	fields := make([]Field, len(scope))
	for i, n := range scope {
		fields[i] = Field{Name: n, Expr: Ref{Name: n}}
	}
	return Record{Fields: fields}
}

// FreeNames returns the names e references that it does not bind itself, in
// first-reference order without duplicates.
func FreeNames(e Expr) []string {
	fv := &freeVars{seen: map[string]bool{}}
	fv.expr(e, nil)
	return fv.names
}

// StepFreeNames returns the names step s references that are not in scope.
func StepFreeNames(scope []string, s Step) []string {
	fv := &freeVars{seen: map[string]bool{}}
	fv.step(s, scope)
	return fv.names
}

// References reports whether e references name freely.
func References(e Expr, name string) bool {
	return slices.Contains(FreeNames(e), name)
}

type freeVars struct {
	names []string
	seen  map[string]bool
}

func (fv *freeVars) add(name string, bound []string) {
	if slices.Contains(bound, name) || fv.seen[name] {
		return
	}
	fv.seen[name] = true
	fv.names = append(fv.names, name)
}

func (fv *freeVars) expr(e Expr, bound []string) {
	switch ex := e.(type) {
	case Literal:
	case Ref:
		fv.add(ex.Name, bound)
	case Record:
		for _, f := range ex.Fields {
			fv.expr(f.Expr, bound)
		}
	case Tuple:
		for _, el := range ex.Elems {
			fv.expr(el, bound)
		}
	case List:
		for _, el := range ex.Elems {
			fv.expr(el, bound)
		}
	case Apply:
		for _, a := range ex.Args {
			fv.expr(a, bound)
		}
	case Select:
		fv.expr(ex.Expr, bound)
	case Query:
		fv.comprehension(ex.Comp, bound)
	default:
		panic(unknownNode("expr", e))
	}
}

// comprehension walks c's steps. Names bound inside c are local; after a
// scope-replacing step the names it dropped resolve outward again.
func (fv *freeVars) comprehension(c *Comprehension, bound []string) {
	if c == nil {
		return
	}
	local := []string{}
	for _, s := range c.steps {
		fv.step(s, append(slices.Clone(bound), local...))
		local = ScopeAfter(local, s)
	}
}

func (fv *freeVars) step(s Step, bound []string) {
	switch st := s.(type) {
	case Scan:
		fv.expr(st.Source, bound)
	case Where:
		fv.expr(st.Cond, bound)
	case Order:
		for _, k := range st.Keys {
			fv.expr(k.Expr, bound)
		}
	case Group:
		for _, k := range st.Keys {
			fv.expr(k.Expr, bound)
		}
		for _, a := range st.Aggs {
			if a.Arg != nil {
				fv.expr(a.Arg, bound)
			}
		}
	case Yield:
		fv.expr(st.Expr, bound)
	case Unorder:
	default:
		panic(unknownNode("step", s))
	}
}
