package eval

import (
	"math"
	"unicode/utf8"

	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/ir"
)

// Functions lists the operators and functions Apply supports.
var Functions = []string{
	"+", "-", "*", "div", "mod", "^",
	"=", "<>", "<", "<=", ">", ">=",
	"andalso", "orelse", "not", "~",
	"abs", "size", "length", "member",
}

// Aggregates lists the aggregate functions Group supports.
var Aggregates = []string{"count", "sum", "min", "max"}

func (ev *Evaluator) apply(a core.Apply, f frame) (ir.IRValue, error) {
	node := core.Render(a)

	// Short-circuit before evaluating the right operand.
	if (a.Fn == "andalso" || a.Fn == "orelse") && len(a.Args) == 2 {
		l, err := ev.truth(a.Args[0], f)
		if err != nil {
			return nil, err
		}
		if l == (a.Fn == "orelse") {
			return ir.IRBool(l), nil
		}
		r, err := ev.truth(a.Args[1], f)
		return ir.IRBool(r), err
	}

	args, err := ev.evalAll(a.Args, f)
	if err != nil {
		return nil, err
	}

	switch len(args) {
	case 1:
		return unary(a.Fn, args[0], node)
	case 2:
		return binary(a.Fn, args[0], args[1], node)
	default:
		return nil, newError(ErrCodeUnknownFunction, node, "no %s with %d arguments", a.Fn, len(args))
	}
}

func unary(fn string, v ir.IRValue, node string) (ir.IRValue, error) {
	switch fn {
	case "not":
		b, ok := v.(ir.IRBool)
		if !ok {
			return nil, typeError(node, fn, v)
		}
		return !b, nil
	case "~":
		n, ok := v.(ir.IRInt)
		if !ok {
			return nil, typeError(node, fn, v)
		}
		return -n, nil
	case "abs":
		n, ok := v.(ir.IRInt)
		if !ok {
			return nil, typeError(node, fn, v)
		}
		if n < 0 {
			return -n, nil
		}
		return n, nil
	case "size":
		s, ok := v.(ir.IRString)
		if !ok {
			return nil, typeError(node, fn, v)
		}
		return ir.IRInt(utf8.RuneCountInString(string(s))), nil
	case "length":
		l, ok := v.(ir.IRList)
		if !ok {
			return nil, typeError(node, fn, v)
		}
		return ir.IRInt(len(l)), nil
	default:
		return nil, newError(ErrCodeUnknownFunction, node, "unknown function %s/1", fn)
	}
}

func binary(fn string, l, r ir.IRValue, node string) (ir.IRValue, error) {
	switch fn {
	case "=":
		return ir.IRBool(ir.Compare(l, r) == 0), nil
	case "<>":
		return ir.IRBool(ir.Compare(l, r) != 0), nil
	case "<":
		return ir.IRBool(ir.Compare(l, r) < 0), nil
	case "<=":
		return ir.IRBool(ir.Compare(l, r) <= 0), nil
	case ">":
		return ir.IRBool(ir.Compare(l, r) > 0), nil
	case ">=":
		return ir.IRBool(ir.Compare(l, r) >= 0), nil
	case "^":
		ls, lok := l.(ir.IRString)
		rs, rok := r.(ir.IRString)
		if !lok || !rok {
			return nil, typeError(node, fn, l, r)
		}
		return ls + rs, nil
	case "member":
		list, ok := r.(ir.IRList)
		if !ok {
			return nil, typeError(node, fn, l, r)
		}
		for _, v := range list {
			if ir.Equal(l, v) {
				return ir.IRBool(true), nil
			}
		}
		return ir.IRBool(false), nil
	}

	x, xok := l.(ir.IRInt)
	y, yok := r.(ir.IRInt)
	if !xok || !yok {
		switch fn {
		case "+", "-", "*", "div", "mod":
			return nil, typeError(node, fn, l, r)
		}
		return nil, newError(ErrCodeUnknownFunction, node, "unknown function %s/2", fn)
	}
	switch fn {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "div":
		if y == 0 {
			return nil, newError(ErrCodeDivideByZero, node, "division by zero")
		}
		return ir.IRInt(floorDiv(int64(x), int64(y))), nil
	case "mod":
		if y == 0 {
			return nil, newError(ErrCodeDivideByZero, node, "modulo by zero")
		}
		return ir.IRInt(int64(x) - floorDiv(int64(x), int64(y))*int64(y)), nil
	default:
		return nil, newError(ErrCodeUnknownFunction, node, "unknown function %s/2", fn)
	}
}

// floorDiv rounds toward negative infinity, so mod takes the sign of the
// divisor.
func floorDiv(x, y int64) int64 {
	if x == math.MinInt64 && y == -1 {
		return x
	}
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func (ev *Evaluator) aggregate(a core.Aggregate, rows []ir.IRRecord, env Env) (ir.IRValue, error) {
	node := a.Name + " = " + a.Fn
	if a.Fn == "count" && a.Arg == nil {
		return ir.IRInt(len(rows)), nil
	}
	if a.Arg == nil {
		return nil, newError(ErrCodeUnknownFunction, node, "aggregate %s needs an argument", a.Fn)
	}

	vals := make([]ir.IRValue, len(rows))
	for i, r := range rows {
		v, err := ev.eval(a.Arg, frame{row: r, env: env})
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	switch a.Fn {
	case "count":
		return ir.IRInt(len(vals)), nil
	case "sum":
		var total ir.IRInt
		for _, v := range vals {
			n, ok := v.(ir.IRInt)
			if !ok {
				return nil, typeError(node, a.Fn, v)
			}
			total += n
		}
		return total, nil
	case "min", "max":
		if len(vals) == 0 {
			return ir.IRUnit{}, nil
		}
		best := vals[0]
		for _, v := range vals[1:] {
			c := ir.Compare(v, best)
			if (a.Fn == "min" && c < 0) || (a.Fn == "max" && c > 0) {
				best = v
			}
		}
		return best, nil
	default:
		return nil, newError(ErrCodeUnknownFunction, node, "unknown aggregate %s", a.Fn)
	}
}

func typeError(node, fn string, args ...ir.IRValue) *Error {
	kinds := make([]any, len(args))
	for i, a := range args {
		kinds[i] = ir.Kind(a)
	}
	if len(kinds) == 1 {
		return newError(ErrCodeType, node, "%s does not apply to %s", fn, kinds[0])
	}
	return newError(ErrCodeType, node, "%s does not apply to %s and %s", fn, kinds[0], kinds[1])
}
