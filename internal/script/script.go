// Package script loads query scripts: a recorded sequence of builder calls
// plus the renderings and rows they are expected to produce.
//
// Scripts are written in YAML or CUE. Both formats decode to the same
// document tree, so the two spellings below are equivalent:
//
//	name: filter
//	steps:
//	  - scan: i
//	    in: [1, 2, 3]
//	  - where: {">": [i, 1]}
//	expect:
//	  build: "from i in [1, 2, 3] where i > 1"
//
//	name: "filter"
//	steps: [{scan: "i", in: [1, 2, 3]}, {where: {">": ["i", 1]}}]
//	expect: build: "from i in [1, 2, 3] where i > 1"
//
// In expressions a bare string is a name reference, {str: "..."} is a
// string literal, null is unit, and a list is a list literal.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/relcomp/internal/ir"
)

// Script is one loaded query script.
type Script struct {
	Name        string
	Description string

	// Scope lists enclosing names visible to the steps without values.
	Scope []string

	// Env supplies values for enclosing names, in file order. Its names are
	// in scope too.
	Env []Binding

	// Steps are the builder calls, in order.
	Steps []Node

	Expect Expect

	// Path is the file the script was loaded from, if any.
	Path string
}

// Binding is a named environment value.
type Binding struct {
	Name  string
	Value ir.IRValue
}

// Expect holds the expected outcome of replaying a script. Empty fields are
// not checked.
type Expect struct {
	// Build is the canonical rendering of the built comprehension.
	Build string

	// Simplified is the canonical rendering after simplification.
	Simplified string

	// Error is the error code a builder call must fail with.
	Error string

	// Rows is the rendering of the evaluated elements.
	Rows string
}

// OuterScope returns the names visible to the script before its first step.
func (s *Script) OuterScope() []string {
	names := slices.Clone(s.Scope)
	for _, b := range s.Env {
		if !slices.Contains(names, b.Name) {
			names = append(names, b.Name)
		}
	}
	return names
}

// EnvMap returns the environment as a map.
func (s *Script) EnvMap() map[string]ir.IRValue {
	env := make(map[string]ir.IRValue, len(s.Env))
	for _, b := range s.Env {
		env[b.Name] = b.Value
	}
	return env
}

// Format is a script encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".cue":
		return FormatCUE, true
	default:
		return "", false
	}
}

// Load reads one script file.
func Load(path string) (*Script, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("%s: unknown script format (want .yaml, .yml, or .cue)", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

// LoadDir loads every script file under dir, sorted by path.
func LoadDir(dir string) ([]*Script, error) {
	paths, err := FindScripts(dir)
	if err != nil {
		return nil, err
	}
	scripts := make([]*Script, 0, len(paths))
	for _, p := range paths {
		s, err := Load(p)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// FindScripts returns the script files under dir, sorted by path.
func FindScripts(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := FormatOf(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}

// Parse decodes a script from data. filename is used in error positions.
func Parse(data []byte, format Format, filename string) (*Script, error) {
	var root Node
	var err error
	switch format {
	case FormatYAML:
		root, err = parseYAML(data, filename)
	case FormatCUE:
		root, err = parseCUE(data, filename)
	default:
		return nil, fmt.Errorf("unknown script format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return decodeScript(root)
}

func decodeScript(root Node) (*Script, error) {
	if root.Kind != MapNode {
		return nil, root.errorf("script", "script must be a map, got %s", root.Kind)
	}
	fields, err := root.mapping("script")
	if err != nil {
		return nil, err
	}

	s := &Script{Scope: []string{}, Steps: []Node{}}
	for _, f := range fields {
		v := f.Value
		switch f.Key {
		case "name":
			if s.Name, err = v.str("name"); err != nil {
				return nil, err
			}
		case "description":
			if s.Description, err = v.str("description"); err != nil {
				return nil, err
			}
		case "scope":
			items, err := v.list("scope")
			if err != nil {
				return nil, err
			}
			for i, item := range items {
				name, err := item.str(fmt.Sprintf("scope[%d]", i))
				if err != nil {
					return nil, err
				}
				s.Scope = append(s.Scope, name)
			}
		case "env":
			entries, err := v.mapping("env")
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				val, err := Value(e.Value, "env."+e.Key)
				if err != nil {
					return nil, err
				}
				s.Env = append(s.Env, Binding{Name: e.Key, Value: val})
			}
		case "steps":
			if s.Steps, err = v.list("steps"); err != nil {
				return nil, err
			}
			if s.Steps == nil {
				s.Steps = []Node{}
			}
		case "expect":
			if s.Expect, err = decodeExpect(v); err != nil {
				return nil, err
			}
		default:
			return nil, v.errorf(f.Key, "unknown script field")
		}
	}

	if s.Name == "" {
		return nil, root.errorf("name", "script name is required")
	}
	return s, nil
}

func decodeExpect(n Node) (Expect, error) {
	var e Expect
	fields, err := n.mapping("expect")
	if err != nil {
		return e, err
	}
	for _, f := range fields {
		path := "expect." + f.Key
		var target *string
		switch f.Key {
		case "build":
			target = &e.Build
		case "simplified":
			target = &e.Simplified
		case "error":
			target = &e.Error
		case "rows":
			target = &e.Rows
		default:
			return e, f.Value.errorf(path, "unknown expectation")
		}
		if *target, err = f.Value.str(path); err != nil {
			return e, err
		}
	}
	return e, nil
}

// Value converts a document node to a runtime value: maps become records in
// key order, lists become lists, and null becomes unit.
func Value(n Node, path string) (ir.IRValue, error) {
	switch n.Kind {
	case NullNode:
		return ir.IRUnit{}, nil
	case BoolNode:
		return ir.IRBool(n.Bool), nil
	case IntNode:
		return ir.IRInt(n.Int), nil
	case StringNode:
		return ir.IRString(n.Str), nil
	case ListNode:
		list := make(ir.IRList, len(n.Items))
		for i, item := range n.Items {
			v, err := Value(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case MapNode:
		rec := make(ir.IRRecord, len(n.Fields))
		for i, f := range n.Fields {
			v, err := Value(f.Value, path+"."+f.Key)
			if err != nil {
				return nil, err
			}
			rec[i] = ir.F(f.Key, v)
		}
		return rec, nil
	default:
		return nil, n.errorf(path, "unsupported value kind %s", n.Kind)
	}
}
