// Package eval is the reference interpreter for comprehensions.
//
// It executes the IR directly and without optimization: a comprehension
// starts from one empty row, each Scan multiplies rows by the elements of its
// source, Where filters, Order sorts stably, Group partitions in order of
// first appearance, and Yield re-projects. Its purpose is to serve as the
// semantic oracle for the simplifier and the SQL lowering: all three must
// produce the same rows.
//
// Result elements follow the final row: the value of its single name, a
// record of all names otherwise (unit when the row is empty), or the atom of
// a final non-record Yield. The empty comprehension runs once and yields
// unit. A Scan over a source that simplifies to the empty comprehension is
// skipped; in a join group it makes the whole comprehension empty.
package eval

import (
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/ir"
	"github.com/roach88/relcomp/internal/simplify"
)

// Env holds values for names bound outside the comprehension.
type Env map[string]ir.IRValue

// Evaluator runs comprehensions. The zero value is not usable; call New.
type Evaluator struct {
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger that records per-step row counts at Debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(ev *Evaluator) {
		if logger != nil {
			ev.logger = logger
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	ev := &Evaluator{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Run evaluates c with a default Evaluator.
func Run(c *core.Comprehension, env Env) (ir.IRList, error) {
	return New().Run(c, env)
}

// Eval evaluates e with a default Evaluator.
func Eval(e core.Expr, env Env) (ir.IRValue, error) {
	return New().Eval(e, env)
}

// frame resolves names: the current row first, then the environment.
type frame struct {
	row ir.IRRecord
	env Env
}

func (f frame) lookup(name string) (ir.IRValue, bool) {
	if v, ok := f.row.Get(name); ok {
		return v, true
	}
	v, ok := f.env[name]
	return v, ok
}

// flatten returns an Env holding the environment overlaid with the row, for
// evaluating a nested comprehension.
func (f frame) flatten() Env {
	env := make(Env, len(f.env)+len(f.row))
	maps.Copy(env, f.env)
	for _, fld := range f.row {
		env[fld.Name] = fld.Value
	}
	return env
}

// Run evaluates c and returns its elements in order.
func (ev *Evaluator) Run(c *core.Comprehension, env Env) (ir.IRList, error) {
	if c == nil {
		c = core.Empty
	}
	steps := c.Steps()
	if k, ok := emptyJoin(steps); ok {
		ev.logger.Debug("join group has an empty source", "step", k)
		steps = nil
	}
	rows := []ir.IRRecord{{}}
	var atoms ir.IRList

	for i, st := range steps {
		var err error
		switch s := st.(type) {
		case core.Scan:
			rows, err = ev.scan(rows, s, env)
		case core.Where:
			rows, err = ev.where(rows, s, env)
		case core.Order:
			rows, err = ev.order(rows, s, env)
		case core.Group:
			rows, err = ev.group(rows, s, env)
		case core.Yield:
			if core.IsAtomYield(s) {
				atoms, err = ev.atoms(rows, s.Expr, env)
				rows = nil
			} else {
				rows, err = ev.yield(rows, s, env)
			}
		case core.Unorder:
		default:
			return nil, newError(ErrCodeUnknownFunction, "", "unknown step %T", st)
		}
		if err != nil {
			return nil, err
		}
		ev.logger.Debug("step evaluated", "step", i, "kind", core.StepKind(st), "rows", len(rows))
	}

	if atoms != nil {
		return atoms, nil
	}
	out := make(ir.IRList, len(rows))
	for i, r := range rows {
		out[i] = element(r)
	}
	return out, nil
}

// element converts a row to a result element.
func element(r ir.IRRecord) ir.IRValue {
	switch len(r) {
	case 0:
		return ir.IRUnit{}
	case 1:
		return r[0].Value
	default:
		return slices.Clone(r)
	}
}

// emptyJoin finds a join group member whose source is empty.
func emptyJoin(steps []core.Step) (int, bool) {
	for k, st := range steps {
		sc, ok := st.(core.Scan)
		if ok && core.InJoinGroup(steps, k) && simplify.DenotesEmpty(sc.Source) {
			return k, true
		}
	}
	return 0, false
}

func (ev *Evaluator) scan(rows []ir.IRRecord, s core.Scan, env Env) ([]ir.IRRecord, error) {
	if simplify.DenotesEmpty(s.Source) {
		return rows, nil
	}
	var out []ir.IRRecord
	for _, r := range rows {
		src, err := ev.eval(s.Source, frame{row: r, env: env})
		if err != nil {
			return nil, err
		}
		elems, ok := src.(ir.IRList)
		if !ok {
			return nil, newError(ErrCodeType, core.Render(s.Source), "scan source is %s, not a list", ir.Kind(src))
		}
		for _, elem := range elems {
			bound, err := match(s.Pat, elem)
			if err != nil {
				return nil, err
			}
			next := make(ir.IRRecord, 0, len(r)+len(bound))
			next = append(next, r...)
			next = append(next, bound...)
			out = append(out, next)
		}
	}
	return out, nil
}

func (ev *Evaluator) where(rows []ir.IRRecord, s core.Where, env Env) ([]ir.IRRecord, error) {
	var out []ir.IRRecord
	for _, r := range rows {
		ok, err := ev.truth(s.Cond, frame{row: r, env: env})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (ev *Evaluator) order(rows []ir.IRRecord, s core.Order, env Env) ([]ir.IRRecord, error) {
	type keyed struct {
		row  ir.IRRecord
		keys []ir.IRValue
	}
	ks := make([]keyed, len(rows))
	for i, r := range rows {
		ks[i] = keyed{row: r, keys: make([]ir.IRValue, len(s.Keys))}
		for j, k := range s.Keys {
			v, err := ev.eval(k.Expr, frame{row: r, env: env})
			if err != nil {
				return nil, err
			}
			ks[i].keys[j] = v
		}
	}
	slices.SortStableFunc(ks, func(a, b keyed) int {
		for j, k := range s.Keys {
			c := ir.Compare(a.keys[j], b.keys[j])
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	out := make([]ir.IRRecord, len(ks))
	for i, k := range ks {
		out[i] = k.row
	}
	return out, nil
}

func (ev *Evaluator) group(rows []ir.IRRecord, s core.Group, env Env) ([]ir.IRRecord, error) {
	type partition struct {
		keys ir.IRTuple
		rows []ir.IRRecord
	}
	var parts []*partition
	for _, r := range rows {
		keys := make(ir.IRTuple, len(s.Keys))
		for j, k := range s.Keys {
			v, err := ev.eval(k.Expr, frame{row: r, env: env})
			if err != nil {
				return nil, err
			}
			keys[j] = v
		}
		idx := slices.IndexFunc(parts, func(p *partition) bool { return ir.Equal(p.keys, keys) })
		if idx < 0 {
			parts = append(parts, &partition{keys: keys})
			idx = len(parts) - 1
		}
		parts[idx].rows = append(parts[idx].rows, r)
	}

	out := make([]ir.IRRecord, 0, len(parts))
	for _, p := range parts {
		next := make(ir.IRRecord, 0, len(s.Keys)+len(s.Aggs))
		for j, k := range s.Keys {
			next = append(next, ir.F(k.Name, p.keys[j]))
		}
		for _, a := range s.Aggs {
			v, err := ev.aggregate(a, p.rows, env)
			if err != nil {
				return nil, err
			}
			next = append(next, ir.F(a.Name, v))
		}
		out = append(out, next)
	}
	return out, nil
}

func (ev *Evaluator) yield(rows []ir.IRRecord, s core.Yield, env Env) ([]ir.IRRecord, error) {
	out := make([]ir.IRRecord, len(rows))
	for i, r := range rows {
		f := frame{row: r, env: env}
		switch e := s.Expr.(type) {
		case core.Ref:
			v, err := ev.eval(e, f)
			if err != nil {
				return nil, err
			}
			out[i] = ir.IRRecord{ir.F(e.Name, v)}
		case core.Record:
			next := make(ir.IRRecord, len(e.Fields))
			for j, fld := range e.Fields {
				v, err := ev.eval(fld.Expr, f)
				if err != nil {
					return nil, err
				}
				next[j] = ir.F(fld.Name, v)
			}
			out[i] = next
		}
	}
	return out, nil
}

func (ev *Evaluator) atoms(rows []ir.IRRecord, e core.Expr, env Env) (ir.IRList, error) {
	out := make(ir.IRList, len(rows))
	for i, r := range rows {
		v, err := ev.eval(e, frame{row: r, env: env})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// match binds p against v.
func match(p core.Pattern, v ir.IRValue) (ir.IRRecord, error) {
	switch pat := p.(type) {
	case core.IDPat:
		return ir.IRRecord{ir.F(pat.Name, v)}, nil
	case core.WildcardPat:
		return nil, nil
	case core.RecordPat:
		rec, ok := v.(ir.IRRecord)
		if !ok {
			return nil, newError(ErrCodePatternMismatch, core.RenderPattern(p), "cannot destructure %s as a record", ir.Kind(v))
		}
		var out ir.IRRecord
		for _, f := range pat.Fields {
			fv, ok := rec.Get(f.Label)
			if !ok {
				return nil, newError(ErrCodePatternMismatch, core.RenderPattern(p), "record has no field %q", f.Label)
			}
			sub, err := match(f.Pat, fv)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	case core.TuplePat:
		tup, ok := v.(ir.IRTuple)
		if !ok || len(tup) != len(pat.Elems) {
			return nil, newError(ErrCodePatternMismatch, core.RenderPattern(p), "cannot destructure %s as a %d-tuple", v, len(pat.Elems))
		}
		var out ir.IRRecord
		for i, ep := range pat.Elems {
			sub, err := match(ep, tup[i])
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	default:
		return nil, newError(ErrCodePatternMismatch, "", "unknown pattern %T", p)
	}
}

// Eval evaluates e against env.
func (ev *Evaluator) Eval(e core.Expr, env Env) (ir.IRValue, error) {
	return ev.eval(e, frame{env: env})
}

func (ev *Evaluator) eval(e core.Expr, f frame) (ir.IRValue, error) {
	switch ex := e.(type) {
	case core.Literal:
		if ex.Value == nil {
			return ir.IRUnit{}, nil
		}
		return ex.Value, nil
	case core.Ref:
		v, ok := f.lookup(ex.Name)
		if !ok {
			return nil, newError(ErrCodeUnbound, ex.Name, "%q has no value", ex.Name)
		}
		return v, nil
	case core.Record:
		rec := make(ir.IRRecord, len(ex.Fields))
		for i, fld := range ex.Fields {
			v, err := ev.eval(fld.Expr, f)
			if err != nil {
				return nil, err
			}
			rec[i] = ir.F(fld.Name, v)
		}
		return rec, nil
	case core.Tuple:
		vs, err := ev.evalAll(ex.Elems, f)
		return ir.IRTuple(vs), err
	case core.List:
		vs, err := ev.evalAll(ex.Elems, f)
		return ir.IRList(vs), err
	case core.Apply:
		return ev.apply(ex, f)
	case core.Select:
		v, err := ev.eval(ex.Expr, f)
		if err != nil {
			return nil, err
		}
		rec, ok := v.(ir.IRRecord)
		if !ok {
			return nil, newError(ErrCodeType, core.Render(e), "cannot select %q from %s", ex.Field, ir.Kind(v))
		}
		fv, ok := rec.Get(ex.Field)
		if !ok {
			return nil, newError(ErrCodeType, core.Render(e), "record has no field %q", ex.Field)
		}
		return fv, nil
	case core.Query:
		return ev.Run(ex.Comp, f.flatten())
	default:
		return nil, newError(ErrCodeType, "", "unknown expression %T", e)
	}
}

func (ev *Evaluator) evalAll(es []core.Expr, f frame) ([]ir.IRValue, error) {
	out := make([]ir.IRValue, len(es))
	for i, e := range es {
		v, err := ev.eval(e, f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// truth evaluates a condition that must be a bool.
func (ev *Evaluator) truth(e core.Expr, f frame) (bool, error) {
	v, err := ev.eval(e, f)
	if err != nil {
		return false, err
	}
	b, ok := v.(ir.IRBool)
	if !ok {
		return false, newError(ErrCodeType, core.Render(e), "condition is %s, not bool", ir.Kind(v))
	}
	return bool(b), nil
}
