package core

// Pattern introduces zero or more names into scope.
//
// This is a sealed interface - only types in this package implement it.
//
// Pattern types:
//   - IDPat: binds the whole value to one name
//   - WildcardPat: binds nothing
//   - RecordPat: destructures a record by field label
//   - TuplePat: destructures a tuple by position
type Pattern interface {
	patternNode() // Marker method - seals interface to this package
}

// IDPat binds a value to Name.
type IDPat struct {
	Name string
}

func (IDPat) patternNode() {}

// WildcardPat matches anything and binds nothing. Renders as "_".
type WildcardPat struct{}

func (WildcardPat) patternNode() {}

// PatField matches the record field Label against Pat.
type PatField struct {
	Label string
	Pat   Pattern
}

// RecordPat destructures a record: {a = i, b = j} binds i to field a and j
// to field b of the source record.
type RecordPat struct {
	Fields []PatField
}

func (RecordPat) patternNode() {}

// TuplePat destructures a tuple by position.
type TuplePat struct {
	Elems []Pattern
}

func (TuplePat) patternNode() {}

// ID is a shorthand for IDPat.
func ID(name string) IDPat { return IDPat{Name: name} }

// RecPat returns a record pattern binding each label to an IDPat.
// Arguments alternate label, name: RecPat("a", "i", "b", "j") is {a = i, b = j}.
func RecPat(labelsAndNames ...string) RecordPat {
	fields := make([]PatField, 0, len(labelsAndNames)/2)
	for i := 0; i+1 < len(labelsAndNames); i += 2 {
		fields = append(fields, PatField{Label: labelsAndNames[i], Pat: ID(labelsAndNames[i+1])})
	}
	return RecordPat{Fields: fields}
}

// BoundNames returns the names bound by p in binding order. Duplicates are
// reported as they occur so callers can detect them.
func BoundNames(p Pattern) []string {
	var names []string
	collectBound(p, &names)
	return names
}

func collectBound(p Pattern, names *[]string) {
	switch pat := p.(type) {
	case IDPat:
		*names = append(*names, pat.Name)
	case WildcardPat:
	case RecordPat:
		for _, f := range pat.Fields {
			collectBound(f.Pat, names)
		}
	case TuplePat:
		for _, e := range pat.Elems {
			collectBound(e, names)
		}
	default:
		panic(unknownNode("pattern", p))
	}
}

// DuplicateName returns the first name bound twice in names, if any.
func DuplicateName(names []string) (string, bool) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n, true
		}
		seen[n] = true
	}
	return "", false
}
