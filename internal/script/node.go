package script

import (
	"fmt"
	"strconv"
)

// NodeKind is the kind of a document node.
type NodeKind int

const (
	NullNode NodeKind = iota
	IntNode
	StringNode
	BoolNode
	ListNode
	MapNode
)

func (k NodeKind) String() string {
	switch k {
	case NullNode:
		return "null"
	case IntNode:
		return "int"
	case StringNode:
		return "string"
	case BoolNode:
		return "bool"
	case ListNode:
		return "list"
	case MapNode:
		return "map"
	default:
		return "NodeKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Node is a format-neutral document tree. Both front ends produce it, and
// mappings keep their source order.
type Node struct {
	Kind   NodeKind
	Int    int64
	Str    string
	Bool   bool
	Items  []Node
	Fields []NodeField

	// Pos is "file:line:col" when the front end knows it.
	Pos string
}

// NodeField is one key of a mapping node.
type NodeField struct {
	Key   string
	Value Node
}

// Lookup returns the value of key in a mapping node.
func (n Node) Lookup(key string) (Node, bool) {
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Node{}, false
}

// Keys returns the keys of a mapping node in order.
func (n Node) Keys() []string {
	keys := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		keys[i] = f.Key
	}
	return keys
}

func (n Node) errorf(path, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Message: fmt.Sprintf(format, args...), Pos: n.Pos}
}

func (n Node) str(path string) (string, error) {
	if n.Kind != StringNode {
		return "", n.errorf(path, "want string, got %s", n.Kind)
	}
	return n.Str, nil
}

func (n Node) list(path string) ([]Node, error) {
	switch n.Kind {
	case ListNode:
		return n.Items, nil
	case NullNode:
		return nil, nil
	default:
		return nil, n.errorf(path, "want list, got %s", n.Kind)
	}
}

func (n Node) mapping(path string) ([]NodeField, error) {
	switch n.Kind {
	case MapNode:
		return n.Fields, nil
	case NullNode:
		return nil, nil
	default:
		return nil, n.errorf(path, "want map, got %s", n.Kind)
	}
}

// ParseError reports a malformed script with its source position.
type ParseError struct {
	Path    string
	Message string
	Pos     string
}

func (e *ParseError) Error() string {
	if e.Pos != "" {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
