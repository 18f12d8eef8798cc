package ir

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface over the runtime values of the query language.
// Only IRUnit, IRBool, IRInt, IRString, IRList, IRTuple and IRRecord implement it.
// There is no IRFloat: floats break deterministic ordering and hashing.
type IRValue interface {
	irValue() // Sealed - only these types implement it
	String() string
}

// IRUnit is the value of type unit, written "()".
type IRUnit struct{}

func (IRUnit) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRList is an ordered collection; comprehensions evaluate to lists.
type IRList []IRValue

func (IRList) irValue() {}

// IRTuple is a fixed-arity positional product.
type IRTuple []IRValue

func (IRTuple) irValue() {}

// IRField is one labelled component of an IRRecord.
type IRField struct {
	Name  string
	Value IRValue
}

// IRRecord is a labelled product. Field order is the construction order and is
// kept for rendering; equality and hashing look at labels only.
type IRRecord []IRField

func (IRRecord) irValue() {}

// F is a shorthand for IRField for ergonomic construction.
// Example: NewIRRecord(F("a", IRInt(1)), F("b", IRString("x")))
func F(name string, value IRValue) IRField {
	return IRField{Name: name, Value: value}
}

// NewIRRecord creates a record from fields in the given order.
func NewIRRecord(fields ...IRField) IRRecord {
	return IRRecord(fields)
}

// NewIRList creates a list from values.
func NewIRList(vals ...IRValue) IRList {
	return IRList(vals)
}

// Ints is a convenience constructor for a list of integers.
func Ints(ns ...int64) IRList {
	l := make(IRList, len(ns))
	for i, n := range ns {
		l[i] = IRInt(n)
	}
	return l
}

// Get returns the value of the named field.
func (r IRRecord) Get(name string) (IRValue, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the field labels in construction order.
func (r IRRecord) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Sorted returns a copy of the record with fields in RFC 8785 label order.
func (r IRRecord) Sorted() IRRecord {
	out := slices.Clone(r)
	slices.SortStableFunc(out, func(a, b IRField) int {
		return compareKeysRFC8785(a.Name, b.Name)
	})
	return out
}

// Kind returns a short name of the value's variant, for diagnostics.
func Kind(v IRValue) string {
	switch v.(type) {
	case IRUnit:
		return "unit"
	case IRBool:
		return "bool"
	case IRInt:
		return "int"
	case IRString:
		return "string"
	case IRList:
		return "list"
	case IRTuple:
		return "tuple"
	case IRRecord:
		return "record"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func (IRUnit) String() string { return "()" }

func (b IRBool) String() string { return strconv.FormatBool(bool(b)) }

func (n IRInt) String() string { return strconv.FormatInt(int64(n), 10) }

func (s IRString) String() string { return strconv.Quote(string(s)) }

func (l IRList) String() string { return "[" + joinValues(l) + "]" }

func (t IRTuple) String() string {
	if len(t) == 1 {
		return "(" + t[0].String() + ",)"
	}
	return "(" + joinValues(t) + ")"
}

func (r IRRecord) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(" = ")
		sb.WriteString(f.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func joinValues(vs []IRValue) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// rank orders the variants for Compare. Unit shares the record rank because
// unit is the empty record.
func rank(v IRValue) int {
	switch v.(type) {
	case IRBool:
		return 1
	case IRInt:
		return 2
	case IRString:
		return 3
	case IRTuple:
		return 4
	case IRUnit, IRRecord:
		return 5
	case IRList:
		return 6
	default:
		return 0
	}
}

// Compare defines a total order over IRValues: first by variant, then by
// content. Lists and tuples compare lexicographically; records compare by
// label-sorted fields.
func Compare(a, b IRValue) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	switch x := a.(type) {
	case IRBool:
		y := b.(IRBool)
		switch {
		case x == y:
			return 0
		case !bool(x):
			return -1
		default:
			return 1
		}
	case IRInt:
		y := b.(IRInt)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case IRString:
		return strings.Compare(string(x), string(b.(IRString)))
	case IRTuple:
		return compareSeq(x, b.(IRTuple))
	case IRList:
		return compareSeq(x, b.(IRList))
	case IRUnit, IRRecord:
		return compareRecords(asRecord(a), asRecord(b))
	default:
		return 0
	}
}

// Equal reports whether two values are equal under Compare.
func Equal(a, b IRValue) bool {
	return Compare(a, b) == 0
}

func asRecord(v IRValue) IRRecord {
	if r, ok := v.(IRRecord); ok {
		return r
	}
	return IRRecord{}
}

func compareSeq(a, b []IRValue) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareRecords(a, b IRRecord) int {
	sa, sb := a.Sorted(), b.Sorted()
	for i := 0; i < len(sa) && i < len(sb); i++ {
		if c := compareKeysRFC8785(sa[i].Name, sb[i].Name); c != 0 {
			return c
		}
		if c := Compare(sa[i].Value, sb[i].Value); c != 0 {
			return c
		}
	}
	return len(sa) - len(sb)
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
// Go's default string comparison uses UTF-8 which produces a different order
// for characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// FromGo converts a decoded Go value (from JSON, YAML, CUE or database/sql)
// into an IRValue.
//
// nil becomes unit, maps become records with sorted labels, and integral
// float64 values (as produced by generic decoders) become IRInt. Fractional
// numbers are rejected.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRUnit{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case []byte:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return IRInt(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("floats are forbidden in IR: %v", val)
		}
		if val > math.MaxInt64 || val < math.MinInt64 {
			return nil, fmt.Errorf("number out of int64 range: %v", val)
		}
		return IRInt(int64(val)), nil
	case []any:
		l := make(IRList, len(val))
		for i, elem := range val {
			iv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			l[i] = iv
		}
		return l, nil
	case map[string]any:
		r := make(IRRecord, 0, len(val))
		for k, elem := range val {
			iv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			r = append(r, IRField{Name: k, Value: iv})
		}
		return r.Sorted(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
