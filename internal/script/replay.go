package script

import (
	"fmt"
	"slices"

	"github.com/roach88/relcomp/internal/builder"
	"github.com/roach88/relcomp/internal/core"
)

// reserved are the mapping keys with a fixed meaning in expressions. Any
// other single-key mapping whose value is a list applies that function.
var reserved = []string{"str", "record", "tuple", "apply", "args", "select", "field", "from"}

// Replay drives a new Builder through the script's steps and returns it.
// Scope errors stay recorded in the builder, as for any builder session;
// the returned error reports malformed steps and failed nested queries.
func Replay(s *Script, opts ...builder.Option) (*builder.Builder, error) {
	r := &replayer{opts: opts}
	outer := s.OuterScope()
	b := r.builder(outer)
	if err := r.steps(b, outer, s.Steps, "steps"); err != nil {
		return b, err
	}
	return b, nil
}

// stepKeys lists the keys each step form accepts; the first names the step.
var stepKeys = map[string][]string{
	"scan":    {"scan", "in"},
	"where":   {"where"},
	"order":   {"order"},
	"group":   {"group", "compute"},
	"compute": {"compute"},
	"yield":   {"yield"},
	"unorder": {"unorder"},
}

type replayer struct {
	opts []builder.Option
}

func (r *replayer) builder(outer []string) *builder.Builder {
	opts := append(slices.Clone(r.opts), builder.WithOuterScope(outer...))
	return builder.New(opts...)
}

func (r *replayer) steps(b *builder.Builder, outer []string, nodes []Node, path string) error {
	for i, n := range nodes {
		if err := r.step(b, outer, n, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (r *replayer) step(b *builder.Builder, outer []string, n Node, path string) error {
	if n.Kind == StringNode && n.Str == "unorder" {
		b.Unorder()
		return nil
	}
	if n.Kind != MapNode || len(n.Fields) == 0 {
		return n.errorf(path, "step must be a map or \"unorder\"")
	}

	// Names visible to this step's expressions.
	visible := append(slices.Clone(outer), b.Scope()...)
	op := n.Fields[0].Key
	arg := n.Fields[0].Value

	keys, ok := stepKeys[op]
	if !ok {
		return n.errorf(path, "unknown step %q", op)
	}
	for _, k := range n.Keys() {
		if !slices.Contains(keys, k) {
			return n.errorf(path, "unexpected key %q in %s step", k, op)
		}
	}

	switch op {
	case "scan":
		p, err := Pattern(arg, path+".scan")
		if err != nil {
			return err
		}
		srcNode, ok := n.Lookup("in")
		if !ok {
			return n.errorf(path, "scan needs \"in\"")
		}
		src, err := r.expr(srcNode, visible, path+".in")
		if err != nil {
			return err
		}
		b.Scan(p, src)

	case "where":
		cond, err := r.expr(arg, visible, path+".where")
		if err != nil {
			return err
		}
		b.Where(cond)

	case "order":
		items, err := arg.list(path + ".order")
		if err != nil {
			return err
		}
		keys := make([]core.OrderKey, 0, len(items))
		for i, item := range items {
			k, err := r.orderKey(item, visible, fmt.Sprintf("%s.order[%d]", path, i))
			if err != nil {
				return err
			}
			keys = append(keys, k)
		}
		b.Order(keys...)

	case "group", "compute":
		var keys []core.Field
		if op == "group" {
			fields, err := arg.mapping(path + ".group")
			if err != nil {
				return err
			}
			for _, f := range fields {
				e, err := r.expr(f.Value, visible, path+".group."+f.Key)
				if err != nil {
					return err
				}
				keys = append(keys, core.Fld(f.Key, e))
			}
		}
		var aggs []core.Aggregate
		if computeNode, ok := n.Lookup("compute"); ok {
			fields, err := computeNode.mapping(path + ".compute")
			if err != nil {
				return err
			}
			for _, f := range fields {
				a, err := r.aggregate(f.Key, f.Value, visible, path+".compute."+f.Key)
				if err != nil {
					return err
				}
				aggs = append(aggs, a)
			}
		}
		b.Group(keys, aggs...)

	case "yield":
		e, err := r.expr(arg, visible, path+".yield")
		if err != nil {
			return err
		}
		b.Yield(e)

	case "unorder":
		b.Unorder()
	}
	return nil
}

func (r *replayer) orderKey(n Node, visible []string, path string) (core.OrderKey, error) {
	if n.Kind == MapNode {
		if exprNode, ok := n.Lookup("expr"); ok {
			e, err := r.expr(exprNode, visible, path+".expr")
			if err != nil {
				return core.OrderKey{}, err
			}
			desc := false
			if d, ok := n.Lookup("desc"); ok {
				if d.Kind != BoolNode {
					return core.OrderKey{}, d.errorf(path+".desc", "want bool, got %s", d.Kind)
				}
				desc = d.Bool
			}
			return core.OrderKey{Expr: e, Desc: desc}, nil
		}
	}
	e, err := r.expr(n, visible, path)
	if err != nil {
		return core.OrderKey{}, err
	}
	return core.Asc(e), nil
}

// aggregate reads "count" or {fn: expr}.
func (r *replayer) aggregate(name string, n Node, visible []string, path string) (core.Aggregate, error) {
	switch n.Kind {
	case StringNode:
		return core.Agg(name, n.Str, nil), nil
	case MapNode:
		if len(n.Fields) != 1 {
			return core.Aggregate{}, n.errorf(path, "aggregate must have exactly one function")
		}
		f := n.Fields[0]
		arg, err := r.expr(f.Value, visible, path+"."+f.Key)
		if err != nil {
			return core.Aggregate{}, err
		}
		return core.Agg(name, f.Key, arg), nil
	default:
		return core.Aggregate{}, n.errorf(path, "aggregate must be a function name or {fn: expr}")
	}
}

func (r *replayer) expr(n Node, visible []string, path string) (core.Expr, error) {
	switch n.Kind {
	case NullNode:
		return core.Unit(), nil
	case BoolNode:
		return core.Bool(n.Bool), nil
	case IntNode:
		return core.Int(n.Int), nil
	case StringNode:
		return core.R(n.Str), nil
	case ListNode:
		elems, err := r.exprs(n.Items, visible, path)
		if err != nil {
			return nil, err
		}
		return core.List{Elems: elems}, nil
	case MapNode:
		return r.form(n, visible, path)
	default:
		return nil, n.errorf(path, "unsupported expression kind %s", n.Kind)
	}
}

func (r *replayer) exprs(nodes []Node, visible []string, path string) ([]core.Expr, error) {
	out := make([]core.Expr, len(nodes))
	for i, item := range nodes {
		e, err := r.expr(item, visible, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// form reads a mapping expression.
func (r *replayer) form(n Node, visible []string, path string) (core.Expr, error) {
	if len(n.Fields) == 0 {
		return nil, n.errorf(path, "empty expression map")
	}
	head := n.Fields[0]
	arg := head.Value
	sub := path + "." + head.Key

	switch head.Key {
	case "str":
		s, err := arg.str(sub)
		if err != nil {
			return nil, err
		}
		return core.Str(s), nil

	case "record":
		fields, err := arg.mapping(sub)
		if err != nil {
			return nil, err
		}
		rec := core.Record{Fields: make([]core.Field, 0, len(fields))}
		for _, f := range fields {
			e, err := r.expr(f.Value, visible, sub+"."+f.Key)
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, core.Fld(f.Key, e))
		}
		return rec, nil

	case "tuple":
		items, err := arg.list(sub)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, n.errorf(sub, "tuple needs at least one element")
		}
		elems, err := r.exprs(items, visible, sub)
		if err != nil {
			return nil, err
		}
		return core.Tuple{Elems: elems}, nil

	case "apply":
		fn, err := arg.str(sub)
		if err != nil {
			return nil, err
		}
		var args []core.Expr
		if argsNode, ok := n.Lookup("args"); ok {
			items, err := argsNode.list(path + ".args")
			if err != nil {
				return nil, err
			}
			if args, err = r.exprs(items, visible, path+".args"); err != nil {
				return nil, err
			}
		}
		return core.Call(fn, args...), nil

	case "select":
		e, err := r.expr(arg, visible, sub)
		if err != nil {
			return nil, err
		}
		fieldNode, ok := n.Lookup("field")
		if !ok {
			return nil, n.errorf(path, "select needs \"field\"")
		}
		field, err := fieldNode.str(path + ".field")
		if err != nil {
			return nil, err
		}
		return core.Select{Expr: e, Field: field}, nil

	case "from":
		items, err := arg.list(sub)
		if err != nil {
			return nil, err
		}
		nb := r.builder(visible)
		if err := r.steps(nb, visible, items, sub); err != nil {
			return nil, err
		}
		c, err := nb.Build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sub, err)
		}
		return core.Q(c), nil
	}

	if len(n.Fields) != 1 || slices.Contains(reserved, head.Key) || arg.Kind != ListNode {
		return nil, n.errorf(path, "unknown expression form %q", head.Key)
	}
	args, err := r.exprs(arg.Items, visible, sub)
	if err != nil {
		return nil, err
	}
	return core.Call(head.Key, args...), nil
}

// Pattern reads a scan pattern: a name, "_", a list (tuple pattern), or
// {record: {label: pattern}}.
func Pattern(n Node, path string) (core.Pattern, error) {
	switch n.Kind {
	case StringNode:
		if n.Str == "_" {
			return core.WildcardPat{}, nil
		}
		return core.ID(n.Str), nil
	case ListNode:
		elems := make([]core.Pattern, len(n.Items))
		for i, item := range n.Items {
			p, err := Pattern(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			elems[i] = p
		}
		return core.TuplePat{Elems: elems}, nil
	case MapNode:
		recNode, ok := n.Lookup("record")
		if !ok || len(n.Fields) != 1 {
			return nil, n.errorf(path, "pattern map must be {record: ...}")
		}
		fields, err := recNode.mapping(path + ".record")
		if err != nil {
			return nil, err
		}
		rp := core.RecordPat{Fields: make([]core.PatField, 0, len(fields))}
		for _, f := range fields {
			p, err := Pattern(f.Value, path+".record."+f.Key)
			if err != nil {
				return nil, err
			}
			rp.Fields = append(rp.Fields, core.PatField{Label: f.Key, Pat: p})
		}
		return rp, nil
	default:
		return nil, n.errorf(path, "pattern must be a name, list, or {record: ...}, got %s", n.Kind)
	}
}
