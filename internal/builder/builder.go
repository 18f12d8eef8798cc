// Package builder constructs comprehensions one step at a time.
//
// A Builder owns a mutable step list and the running scope. Each call checks
// its arguments against the scope and either appends a step, applies a local
// normalization (eliding a no-op, merging an independent Scan into the
// preceding join group, collapsing adjacent Orders), or records an error.
//
// Errors are sticky: the first failing call leaves the steps and scope as
// they were, later calls do nothing, and Err, Build, and BuildSimplify
// report the error. This keeps the fluent chain readable:
//
//	c, err := builder.New().
//		Scan(core.ID("i"), core.Ints(1, 2, 3)).
//		Where(core.Bin(">", core.R("i"), core.Int(1))).
//		Build()
//
// A Builder is confined to one construction session and is not safe for
// concurrent use. The Comprehension values it produces are immutable and
// may be shared freely.
package builder

import (
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/simplify"
)

// Builder accumulates the steps of one comprehension.
//
// A rejected call leaves the steps unchanged and records its error, which
// Err, Build and BuildSimplify then return. Every later call is a no-op, so
// a failed Builder cannot be retried: discard it and start a new one.
type Builder struct {
	steps  []core.Step
	scope  []string
	outer  []string
	err    error
	logger *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithOuterScope makes names bound by an enclosing comprehension visible to
// expressions, as for a correlated sub-query. Scans may shadow them.
func WithOuterScope(names ...string) Option {
	return func(b *Builder) {
		b.outer = slices.Clone(names)
	}
}

// WithLogger sets the logger that records elisions at Debug level.
//
// Default: output is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an empty Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		scope:  []string{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Scan binds pattern p to each element of src.
//
// The names p binds must be distinct and must not already be in the local
// scope. When the previous step is a Scan and src references no name bound
// by that Scan's join group, the new Scan joins the group.
func (b *Builder) Scan(p core.Pattern, src core.Expr) *Builder {
	const step = "scan"
	if !b.ready(step) {
		return b
	}
	if p == nil || src == nil {
		return b.fail(newScopeError(ErrCodeMalformed, step, "", "scan needs a pattern and a source"))
	}
	names := core.BoundNames(p)
	if dup, ok := core.DuplicateName(names); ok {
		return b.fail(newScopeError(ErrCodeDuplicateName, step, dup, "pattern binds %q twice", dup))
	}
	for _, n := range names {
		if slices.Contains(b.scope, n) {
			return b.fail(newScopeError(ErrCodeScopeCollision, step, n, "%q is already in scope", n))
		}
	}
	if !b.checkBound(step, src) {
		return b
	}

	join := false
	if _, ok := b.last().(core.Scan); ok {
		join = !referencesAny(src, b.joinGroupNames())
	}
	b.steps = append(b.steps, core.Scan{Pat: p, Source: src, Join: join})
	b.scope = core.ScopeAfter(b.scope, b.last())
	return b
}

// Where filters rows by cond. Where(true) is accepted and elided.
func (b *Builder) Where(cond core.Expr) *Builder {
	const step = "where"
	if !b.ready(step) {
		return b
	}
	if cond == nil {
		return b.fail(newScopeError(ErrCodeMalformed, step, "", "where needs a condition"))
	}
	if core.IsTrueLiteral(cond) {
		b.logger.Debug("step elided", "step", step, "reason", "true literal")
		return b
	}
	if !b.requireScan(step) || !b.checkBound(step, cond) {
		return b
	}
	b.steps = append(b.steps, core.Where{Cond: cond})
	return b
}

// Order sorts rows by keys. An empty key list is accepted and elided; an
// Order directly after another Order replaces it.
func (b *Builder) Order(keys ...core.OrderKey) *Builder {
	const step = "order"
	if !b.ready(step) {
		return b
	}
	if len(keys) == 0 {
		b.logger.Debug("step elided", "step", step, "reason", "no keys")
		return b
	}
	if !b.requireScan(step) {
		return b
	}
	for _, k := range keys {
		if k.Expr == nil {
			return b.fail(newScopeError(ErrCodeMalformed, step, "", "order key needs an expression"))
		}
		if !b.checkBound(step, k.Expr) {
			return b
		}
	}
	o := core.Order{Keys: slices.Clone(keys)}
	if _, ok := b.last().(core.Order); ok {
		b.logger.Debug("step replaced", "step", step, "reason", "adjacent order")
		b.steps[len(b.steps)-1] = o
		return b
	}
	b.steps = append(b.steps, o)
	return b
}

// Group partitions rows by keys and computes aggs per partition. The scope
// becomes the key names followed by the aggregate names.
func (b *Builder) Group(keys []core.Field, aggs ...core.Aggregate) *Builder {
	const step = "group"
	if !b.ready(step) || !b.requireScan(step) {
		return b
	}
	for _, k := range keys {
		if k.Expr == nil {
			return b.fail(newScopeError(ErrCodeMalformed, step, k.Name, "group key needs an expression"))
		}
		if !b.checkBound(step, k.Expr) {
			return b
		}
	}
	for _, a := range aggs {
		if a.Arg != nil && !b.checkBound(step, a.Arg) {
			return b
		}
	}
	g := core.Group{Keys: slices.Clone(keys), Aggs: slices.Clone(aggs)}
	next := core.ScopeAfter(b.scope, g)
	if dup, ok := core.DuplicateName(next); ok {
		return b.fail(newScopeError(ErrCodeDuplicateName, step, dup, "group binds %q twice", dup))
	}
	b.steps = append(b.steps, g)
	b.scope = next
	return b
}

// Yield re-projects the current row as e.
//
// A record binds each of its fields, a bare reference binds that name, and
// any other expression is an atom that ends the comprehension. A yield that
// reproduces the current scope is elided unless it is the first step.
func (b *Builder) Yield(e core.Expr) *Builder {
	const step = "yield"
	if !b.ready(step) {
		return b
	}
	if e == nil {
		return b.fail(newScopeError(ErrCodeMalformed, step, "", "yield needs an expression"))
	}
	if !b.checkBound(step, e) {
		return b
	}
	names := core.YieldNames(e)
	if dup, ok := core.DuplicateName(names); ok {
		return b.fail(newScopeError(ErrCodeDuplicateName, step, dup, "yield binds %q twice", dup))
	}
	if len(b.steps) > 0 && core.IsIdentityYield(b.scope, e) {
		b.logger.Debug("step elided", "step", step, "reason", "identity")
		return b
	}
	b.steps = append(b.steps, core.Yield{Expr: e})
	b.scope = names
	return b
}

// Unorder clears any ordering guarantee. Repeated Unorders collapse.
func (b *Builder) Unorder() *Builder {
	const step = "unorder"
	if !b.ready(step) || !b.requireScan(step) {
		return b
	}
	if _, ok := b.last().(core.Unorder); ok {
		b.logger.Debug("step elided", "step", step, "reason", "already unordered")
		return b
	}
	b.steps = append(b.steps, core.Unorder{})
	return b
}

// Err returns the first error recorded by a builder call, if any.
func (b *Builder) Err() error {
	return b.err
}

// Scope returns a copy of the names currently in scope.
func (b *Builder) Scope() []string {
	return slices.Clone(b.scope)
}

// Current returns the steps accumulated so far as a comprehension, whether
// or not an error has been recorded.
func (b *Builder) Current() *core.Comprehension {
	return core.NewComprehension(b.steps)
}

// Build freezes the accumulated steps. The result satisfies the structural
// invariants checked by core.Validate. Build may be called repeatedly and
// returns an identical value each time until the builder is mutated again.
func (b *Builder) Build() (*core.Comprehension, error) {
	if b.err != nil {
		return nil, b.err
	}
	return core.NewComprehension(b.steps), nil
}

// BuildSimplify freezes the accumulated steps and simplifies the result. It
// returns a plain expression, not a query, when the comprehension
// degenerates to its source.
func (b *Builder) BuildSimplify() (core.Expr, error) {
	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	return simplify.Simplify(c,
		simplify.WithOuterScope(b.outer...),
		simplify.WithLogger(b.logger),
	)
}

// ready reports whether step may proceed: no error is recorded and the
// previous step is not an atom yield.
func (b *Builder) ready(step string) bool {
	if b.err != nil {
		return false
	}
	if core.IsAtomYield(b.last()) {
		b.fail(newScopeError(ErrCodeStepAfterAtomYield, step, "", "%s after a yield of a non-record value", step))
		return false
	}
	return true
}

// requireScan rejects steps that need a row source when there is none.
func (b *Builder) requireScan(step string) bool {
	if len(b.steps) == 0 {
		b.fail(newScopeError(ErrCodeStepBeforeScan, step, "", "%s before any scan", step))
		return false
	}
	return true
}

// checkBound records an UnboundNameError if e references a name that is
// neither in scope nor in the enclosing scope.
func (b *Builder) checkBound(step string, e core.Expr) bool {
	for _, n := range core.FreeNames(e) {
		if !slices.Contains(b.scope, n) && !slices.Contains(b.outer, n) {
			b.fail(&UnboundNameError{Name: n, Step: step, Scope: b.Scope()})
			return false
		}
	}
	return true
}

func (b *Builder) fail(err error) *Builder {
	b.err = err
	b.logger.Debug("builder call rejected", "error", err)
	return b
}

func (b *Builder) last() core.Step {
	if len(b.steps) == 0 {
		return nil
	}
	return b.steps[len(b.steps)-1]
}

// joinGroupNames returns the names bound by the join group that ends at the
// last step.
func (b *Builder) joinGroupNames() []string {
	var names []string
	for i := len(b.steps) - 1; i >= 0; i-- {
		sc, ok := b.steps[i].(core.Scan)
		if !ok {
			break
		}
		names = append(names, core.BoundNames(sc.Pat)...)
		if !sc.Join {
			break
		}
	}
	return names
}

func referencesAny(e core.Expr, names []string) bool {
	for _, n := range core.FreeNames(e) {
		if slices.Contains(names, n) {
			return true
		}
	}
	return false
}
