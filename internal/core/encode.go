package core

import (
	"github.com/roach88/relcomp/internal/ir"
)

// Encode returns the JSON-ready form of e, built from map[string]any, []any,
// strings, bools, and ir values. Every node is a single-key object naming its
// kind, so the form survives canonical JSON's key sorting:
//
//	{"lit": 1}  {"ref": "i"}  {"from": [{"scan": {"id": "i"}, "in": ..., "join": false}]}
func Encode(e Expr) map[string]any {
	switch ex := e.(type) {
	case Literal:
		var v any = ir.IRUnit{}
		if ex.Value != nil {
			v = ex.Value
		}
		return map[string]any{"lit": v}
	case Ref:
		return map[string]any{"ref": ex.Name}
	case Record:
		fields := make([]any, len(ex.Fields))
		for i, f := range ex.Fields {
			fields[i] = map[string]any{"name": f.Name, "expr": Encode(f.Expr)}
		}
		return map[string]any{"record": fields}
	case Tuple:
		return map[string]any{"tuple": encodeExprs(ex.Elems)}
	case List:
		return map[string]any{"list": encodeExprs(ex.Elems)}
	case Apply:
		return map[string]any{"apply": ex.Fn, "args": encodeExprs(ex.Args)}
	case Select:
		return map[string]any{"select": Encode(ex.Expr), "field": ex.Field}
	case Query:
		return EncodeComprehension(ex.Comp)
	default:
		panic(unknownNode("expr", e))
	}
}

// EncodeComprehension returns the JSON-ready form of c.
func EncodeComprehension(c *Comprehension) map[string]any {
	steps := []any{}
	if c != nil {
		for _, s := range c.steps {
			steps = append(steps, encodeStep(s))
		}
	}
	return map[string]any{"from": steps}
}

func encodeExprs(es []Expr) []any {
	out := make([]any, len(es))
	for i, e := range es {
		out[i] = Encode(e)
	}
	return out
}

func encodeStep(s Step) map[string]any {
	switch st := s.(type) {
	case Scan:
		return map[string]any{"scan": EncodePattern(st.Pat), "in": Encode(st.Source), "join": st.Join}
	case Where:
		return map[string]any{"where": Encode(st.Cond)}
	case Order:
		keys := make([]any, len(st.Keys))
		for i, k := range st.Keys {
			keys[i] = map[string]any{"expr": Encode(k.Expr), "desc": k.Desc}
		}
		return map[string]any{"order": keys}
	case Group:
		keys := make([]any, len(st.Keys))
		for i, k := range st.Keys {
			keys[i] = map[string]any{"name": k.Name, "expr": Encode(k.Expr)}
		}
		aggs := make([]any, len(st.Aggs))
		for i, a := range st.Aggs {
			agg := map[string]any{"name": a.Name, "fn": a.Fn}
			if a.Arg != nil {
				agg["of"] = Encode(a.Arg)
			}
			aggs[i] = agg
		}
		return map[string]any{"group": keys, "compute": aggs}
	case Yield:
		return map[string]any{"yield": Encode(st.Expr)}
	case Unorder:
		return map[string]any{"unorder": true}
	default:
		panic(unknownNode("step", s))
	}
}

// EncodePattern returns the JSON-ready form of p.
func EncodePattern(p Pattern) map[string]any {
	switch pt := p.(type) {
	case IDPat:
		return map[string]any{"id": pt.Name}
	case WildcardPat:
		return map[string]any{"wildcard": true}
	case RecordPat:
		fields := make([]any, len(pt.Fields))
		for i, f := range pt.Fields {
			fields[i] = map[string]any{"label": f.Label, "pat": EncodePattern(f.Pat)}
		}
		return map[string]any{"record": fields}
	case TuplePat:
		elems := make([]any, len(pt.Elems))
		for i, e := range pt.Elems {
			elems[i] = EncodePattern(e)
		}
		return map[string]any{"tuple": elems}
	default:
		panic(unknownNode("pattern", p))
	}
}

// Fingerprint returns the content address of e: a domain-separated SHA-256
// over the canonical JSON of its encoding.
func Fingerprint(e Expr) (string, error) {
	domain := ir.DomainExpr
	if _, ok := e.(Query); ok {
		domain = ir.DomainComprehension
	}
	return ir.Fingerprint(domain, Encode(e))
}

// FingerprintComprehension returns the content address of c.
func FingerprintComprehension(c *Comprehension) (string, error) {
	return ir.Fingerprint(ir.DomainComprehension, EncodeComprehension(c))
}
