// Package simplify rewrites a built comprehension to its shortest equivalent
// form.
//
// Rules, in priority order, applied until nothing changes:
//
//  1. trivial-collapse: "from i in X" (optionally followed by an identity
//     yield) becomes X itself.
//  2. inline-source: a Scan whose source is a comprehension made only of
//     Scan, Where, Order, and Group steps is replaced by those steps, followed
//     by a renaming Yield when the outer pattern does not line up with the
//     inner scope. A Scan over the empty comprehension is skipped, so it is
//     deleted unless a later step references a name its pattern binds; in
//     a join group it empties the whole comprehension (empty-source).
//  3. redundant-step: Where(true), empty Orders, an Order overwritten by the
//     next Order, repeated Unorders, and identity Yields are dropped.
//
// Join groups are never reordered or split. Nested comprehensions are
// simplified first, bottom-up.
package simplify

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/relcomp/internal/core"
)

// Rule names used in log records.
const (
	RuleTrivialCollapse = "trivial-collapse"
	RuleInlineSource    = "inline-source"
	RuleEmptySource     = "empty-source"
	RuleRedundantStep   = "redundant-step"
)

// DefaultMaxPasses bounds the rewrite loop. Every rule shrinks the step
// count or the nesting depth, so real inputs converge far sooner.
const DefaultMaxPasses = 10000

// Option configures a simplification run.
type Option func(*simplifier)

// WithOuterScope declares names bound by an enclosing comprehension, for the
// invariant checks on input and output.
func WithOuterScope(names ...string) Option {
	return func(s *simplifier) {
		s.outer = slices.Clone(names)
	}
}

// WithLogger sets the logger that records rule firings at Debug level.
//
// Default: output is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(s *simplifier) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxPasses overrides DefaultMaxPasses.
func WithMaxPasses(n int) Option {
	return func(s *simplifier) {
		s.maxPasses = n
	}
}

type simplifier struct {
	outer     []string
	logger    *slog.Logger
	maxPasses int
}

func newSimplifier(opts []Option) *simplifier {
	s := &simplifier{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxPasses: DefaultMaxPasses,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Simplify returns the shortest form of c. The result is a core.Query unless
// the comprehension degenerates to its source, in which case the source
// expression itself is returned.
//
// Simplify is idempotent: SimplifyExpr(Simplify(c)) returns the same value.
// It fails only with an *InvariantViolation.
func Simplify(c *core.Comprehension, opts ...Option) (core.Expr, error) {
	return SimplifyExpr(core.Q(c), opts...)
}

// SimplifyExpr simplifies every comprehension nested in e.
func SimplifyExpr(e core.Expr, opts ...Option) (core.Expr, error) {
	s := newSimplifier(opts)
	if vs := s.validate(e); len(vs) > 0 {
		return nil, &InvariantViolation{Phase: PhaseInput, Comprehension: core.Render(e), Violations: vs}
	}
	out, err := s.expr(e)
	if err != nil {
		return nil, err
	}
	if vs := s.validate(out); len(vs) > 0 {
		return nil, &InvariantViolation{Phase: PhaseOutput, Comprehension: core.Render(out), Violations: vs}
	}
	return out, nil
}

// validate checks e as the body of a constant yield, which applies the
// comprehension invariants to every query nested in it.
func (s *simplifier) validate(e core.Expr) []core.Violation {
	if q, ok := e.(core.Query); ok {
		return core.Validate(q.Comp, s.outer...)
	}
	return core.Validate(core.NewComprehension([]core.Step{core.Yield{Expr: e}}), s.outer...)
}

func (s *simplifier) expr(e core.Expr) (core.Expr, error) {
	switch ex := e.(type) {
	case core.Literal, core.Ref:
		return e, nil
	case core.Record:
		fields := make([]core.Field, len(ex.Fields))
		for i, f := range ex.Fields {
			fe, err := s.expr(f.Expr)
			if err != nil {
				return nil, err
			}
			fields[i] = core.Field{Name: f.Name, Expr: fe}
		}
		return core.Record{Fields: fields}, nil
	case core.Tuple:
		elems, err := s.exprs(ex.Elems)
		return core.Tuple{Elems: elems}, err
	case core.List:
		elems, err := s.exprs(ex.Elems)
		return core.List{Elems: elems}, err
	case core.Apply:
		args, err := s.exprs(ex.Args)
		return core.Apply{Fn: ex.Fn, Args: args}, err
	case core.Select:
		inner, err := s.expr(ex.Expr)
		return core.Select{Expr: inner, Field: ex.Field}, err
	case core.Query:
		return s.comprehension(ex.Comp)
	default:
		panic(fmt.Sprintf("simplify: unknown expr node %T", e))
	}
}

func (s *simplifier) exprs(es []core.Expr) ([]core.Expr, error) {
	out := make([]core.Expr, len(es))
	for i, e := range es {
		se, err := s.expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = se
	}
	return out, nil
}

// comprehension simplifies nested queries, then applies the rules to c's own
// steps until none fires.
func (s *simplifier) comprehension(c *core.Comprehension) (core.Expr, error) {
	steps, err := s.nested(c.Steps())
	if err != nil {
		return nil, err
	}

	for pass := 0; ; pass++ {
		if pass >= s.maxPasses {
			return nil, &InvariantViolation{
				Phase:         PhaseFixedPoint,
				Comprehension: core.NewComprehension(steps).String(),
				Violations: []core.Violation{{
					Path:    "steps",
					Code:    core.CodeMalformed,
					Message: fmt.Sprintf("no fixed point after %d passes", s.maxPasses),
				}},
			}
		}
		if src, ok := trivialSource(steps); ok {
			s.fired(RuleTrivialCollapse, 0, steps)
			return src, nil
		}
		if next, k, ok := emptySource(steps); ok {
			s.fired(RuleEmptySource, k, steps)
			if next == nil {
				return core.Q(core.Empty), nil
			}
			steps = next
			continue
		}
		if next, k, ok := inline(steps); ok {
			s.fired(RuleInlineSource, k, steps)
			steps = next
			continue
		}
		if next, k, ok := dropRedundant(steps); ok {
			s.fired(RuleRedundantStep, k, steps)
			steps = next
			continue
		}
		break
	}

	out := core.NewComprehension(steps)
	if vs := core.CheckCanonical(out); len(vs) > 0 {
		return nil, &InvariantViolation{Phase: PhaseOutput, Comprehension: out.String(), Violations: vs}
	}
	return core.Q(out), nil
}

func (s *simplifier) fired(rule string, step int, before []core.Step) {
	s.logger.Debug("rule fired",
		"rule", rule,
		"step", step,
		"before", core.NewComprehension(before).String(),
	)
}

// nested simplifies every expression held by steps.
func (s *simplifier) nested(steps []core.Step) ([]core.Step, error) {
	out := make([]core.Step, len(steps))
	for i, st := range steps {
		var err error
		switch x := st.(type) {
		case core.Scan:
			var src core.Expr
			src, err = s.expr(x.Source)
			out[i] = core.Scan{Pat: x.Pat, Source: src, Join: x.Join}
		case core.Where:
			var cond core.Expr
			cond, err = s.expr(x.Cond)
			out[i] = core.Where{Cond: cond}
		case core.Order:
			keys := make([]core.OrderKey, len(x.Keys))
			for j, k := range x.Keys {
				var ke core.Expr
				if ke, err = s.expr(k.Expr); err != nil {
					break
				}
				keys[j] = core.OrderKey{Expr: ke, Desc: k.Desc}
			}
			out[i] = core.Order{Keys: keys}
		case core.Group:
			g := core.Group{
				Keys: make([]core.Field, len(x.Keys)),
				Aggs: make([]core.Aggregate, len(x.Aggs)),
			}
			for j, k := range x.Keys {
				var ke core.Expr
				if ke, err = s.expr(k.Expr); err != nil {
					break
				}
				g.Keys[j] = core.Field{Name: k.Name, Expr: ke}
			}
			for j, a := range x.Aggs {
				g.Aggs[j] = a
				if a.Arg != nil && err == nil {
					g.Aggs[j].Arg, err = s.expr(a.Arg)
				}
			}
			out[i] = g
		case core.Yield:
			var e core.Expr
			e, err = s.expr(x.Expr)
			out[i] = core.Yield{Expr: e}
		case core.Unorder:
			out[i] = x
		default:
			panic(fmt.Sprintf("simplify: unknown step node %T", st))
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// trivialSource matches "from i in X" with at most an identity yield after
// it, and returns X.
func trivialSource(steps []core.Step) (core.Expr, bool) {
	if len(steps) == 0 || len(steps) > 2 {
		return nil, false
	}
	sc, ok := steps[0].(core.Scan)
	if !ok {
		return nil, false
	}
	id, ok := sc.Pat.(core.IDPat)
	if !ok {
		return nil, false
	}
	if len(steps) == 2 {
		y, ok := steps[1].(core.Yield)
		if !ok || !core.IsIdentityYield([]string{id.Name}, y.Expr) {
			return nil, false
		}
	}
	return sc.Source, true
}

// emptySource finds a Scan over the empty comprehension. When the Scan is
// in a join group the whole comprehension is empty and next is nil.
// Otherwise the Scan contributes no bindings and no iteration, and next is
// steps without it. A Scan whose names a later step references, or whose
// removal would leave a non-Scan first step, is kept.
func emptySource(steps []core.Step) ([]core.Step, int, bool) {
	for k, st := range steps {
		sc, ok := st.(core.Scan)
		if !ok {
			continue
		}
		if inner, ok := core.AsQuery(sc.Source); !ok || !inner.IsEmpty() {
			continue
		}
		if core.InJoinGroup(steps, k) {
			return nil, k, true
		}
		if k == 0 && len(steps) > 1 {
			if _, ok := steps[1].(core.Scan); !ok {
				continue
			}
		}
		if referencedAfter(steps, k, core.BoundNames(sc.Pat)) {
			continue
		}
		return slices.Delete(slices.Clone(steps), k, k+1), k, true
	}
	return nil, 0, false
}

// referencedAfter reports whether any step after steps[k] references one of
// names.
func referencedAfter(steps []core.Step, k int, names []string) bool {
	for _, st := range steps[k+1:] {
		for _, n := range core.StepFreeNames(nil, st) {
			if slices.Contains(names, n) {
				return true
			}
		}
	}
	return false
}

// DenotesEmpty reports whether e simplifies to the empty comprehension "from".
// A Scan over such a source binds nothing and is skipped; in a join group
// it makes the whole comprehension empty. The evaluator and the SQL
// lowering use it so that they agree with the simplified form.
func DenotesEmpty(e core.Expr) bool {
	q, ok := e.(core.Query)
	if !ok || q.Comp == nil {
		return false
	}
	if q.Comp.IsEmpty() {
		return true
	}
	out, err := newSimplifier(nil).comprehension(q.Comp)
	if err != nil {
		return false
	}
	inner, ok := core.AsQuery(out)
	return ok && inner.IsEmpty()
}

// inline splices the first eligible nested source into steps.
func inline(steps []core.Step) ([]core.Step, int, bool) {
	prior := []string{}
	skipped := false
	for k, st := range steps {
		if sc, ok := st.(core.Scan); ok {
			if inner, ok := core.AsQuery(sc.Source); ok {
				if inner.IsEmpty() {
					skipped = true
				} else if out, ok := splice(steps, k, sc, inner, prior, skipped); ok {
					return out, k, true
				}
			}
		}
		prior = core.ScopeAfter(prior, st)
	}
	return nil, 0, false
}

// splice replaces steps[k], a Scan of sc.Pat over inner, with inner's steps
// and, unless it would be the identity, a Yield that rebuilds the scope the
// rest of steps expects: the prior names followed by sc.Pat's bindings.
// After a skipped empty-source Scan, prior holds names with no value, so
// only splices that need no such Yield are made.
func splice(steps []core.Step, k int, sc core.Scan, inner *core.Comprehension, prior []string, skipped bool) ([]core.Step, bool) {
	innerSteps := inner.Steps()
	if len(innerSteps) == 0 {
		return nil, false
	}
	reshapes := false
	for _, st := range innerSteps {
		switch x := st.(type) {
		case core.Scan:
			// A kept empty-source Scan binds nothing the renaming could use.
			if src, ok := core.AsQuery(x.Source); ok && src.IsEmpty() {
				return nil, false
			}
		case core.Where:
		case core.Order, core.Group:
			reshapes = true
		default:
			return nil, false
		}
	}
	// An inner Order or Group would act on the prior rows too.
	if reshapes && k > 0 {
		return nil, false
	}
	first, ok := innerSteps[0].(core.Scan)
	if !ok {
		return nil, false
	}
	for _, n := range boundNames(innerSteps) {
		if slices.Contains(prior, n) {
			return nil, false
		}
	}

	final := inner.Scope()
	rename, ok := renaming(sc.Pat, final, prior)
	if !ok {
		return nil, false
	}
	needYield := !core.IsIdentityYield(append(slices.Clone(prior), final...), rename)
	if needYield && skipped {
		return nil, false
	}

	// A Scan joined to sc must stay joined, so it has to follow a Scan.
	if k+1 < len(steps) {
		if next, ok := steps[k+1].(core.Scan); ok && next.Join {
			_, endsWithScan := innerSteps[len(innerSteps)-1].(core.Scan)
			if needYield || !endsWithScan {
				return nil, false
			}
		}
	}

	first.Join = sc.Join
	innerSteps[0] = first

	out := make([]core.Step, 0, len(steps)+len(innerSteps)+1)
	out = append(out, steps[:k]...)
	out = append(out, innerSteps...)
	if needYield {
		out = append(out, core.Yield{Expr: rename})
	}
	out = append(out, steps[k+1:]...)
	return out, true
}

// renaming builds the record a spliced comprehension must yield: every prior
// name as itself, then each name pat binds from one inner element. An inner
// element is the single name in final, or a record of all of final.
func renaming(pat core.Pattern, final, prior []string) (core.Record, bool) {
	fields := make([]core.Field, 0, len(prior)+len(final))
	for _, n := range prior {
		fields = append(fields, core.Fld(n, core.R(n)))
	}
	switch p := pat.(type) {
	case core.IDPat:
		fields = append(fields, core.Fld(p.Name, core.ScopeElement(final)))
	case core.RecordPat:
		for _, f := range p.Fields {
			id, ok := f.Pat.(core.IDPat)
			if !ok {
				return core.Record{}, false
			}
			switch {
			case len(final) == 1:
				fields = append(fields, core.Fld(id.Name, core.Select{Expr: core.R(final[0]), Field: f.Label}))
			case slices.Contains(final, f.Label):
				fields = append(fields, core.Fld(id.Name, core.R(f.Label)))
			default:
				return core.Record{}, false
			}
		}
	default:
		return core.Record{}, false
	}
	return core.Rec(fields...), true
}

// boundNames returns every name bound anywhere in steps, including names a
// later Group drops.
func boundNames(steps []core.Step) []string {
	var names []string
	for _, st := range steps {
		switch x := st.(type) {
		case core.Scan:
			names = append(names, core.BoundNames(x.Pat)...)
		case core.Group:
			names = append(names, core.ScopeAfter(nil, x)...)
		}
	}
	return names
}

// dropRedundant removes the first no-op step.
func dropRedundant(steps []core.Step) ([]core.Step, int, bool) {
	scope := []string{}
	for i, st := range steps {
		redundant := false
		switch x := st.(type) {
		case core.Where:
			redundant = core.IsTrueLiteral(x.Cond)
		case core.Order:
			if len(x.Keys) == 0 {
				redundant = true
			} else if i+1 < len(steps) {
				_, redundant = steps[i+1].(core.Order)
			}
		case core.Unorder:
			if i+1 < len(steps) {
				_, redundant = steps[i+1].(core.Unorder)
			}
		case core.Yield:
			redundant = i > 0 && core.IsIdentityYield(scope, x.Expr)
		}
		if redundant {
			return slices.Delete(slices.Clone(steps), i, i+1), i, true
		}
		scope = core.ScopeAfter(scope, st)
	}
	return nil, 0, false
}
