package script

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// parseYAML reads a YAML document into a Node. yaml.Node is used instead of
// map decoding so that mappings keep their order.
func parseYAML(data []byte, filename string) (Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Node{}, fmt.Errorf("%s: parse YAML: %w", filename, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return Node{}, fmt.Errorf("%s: empty YAML document", filename)
	}
	return fromYAML(doc.Content[0], filename)
}

func fromYAML(y *yaml.Node, filename string) (Node, error) {
	pos := fmt.Sprintf("%s:%d:%d", filename, y.Line, y.Column)

	switch y.Kind {
	case yaml.AliasNode:
		return fromYAML(y.Alias, filename)

	case yaml.SequenceNode:
		n := Node{Kind: ListNode, Pos: pos, Items: make([]Node, 0, len(y.Content))}
		for _, c := range y.Content {
			item, err := fromYAML(c, filename)
			if err != nil {
				return Node{}, err
			}
			n.Items = append(n.Items, item)
		}
		return n, nil

	case yaml.MappingNode:
		n := Node{Kind: MapNode, Pos: pos}
		seen := map[string]bool{}
		for i := 0; i+1 < len(y.Content); i += 2 {
			k, v := y.Content[i], y.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return Node{}, &ParseError{Path: "key", Message: "mapping keys must be scalars", Pos: pos}
			}
			if seen[k.Value] {
				return Node{}, &ParseError{Path: k.Value, Message: "duplicate key", Pos: fmt.Sprintf("%s:%d:%d", filename, k.Line, k.Column)}
			}
			seen[k.Value] = true
			val, err := fromYAML(v, filename)
			if err != nil {
				return Node{}, err
			}
			n.Fields = append(n.Fields, NodeField{Key: k.Value, Value: val})
		}
		return n, nil

	case yaml.ScalarNode:
		switch y.ShortTag() {
		case "!!null":
			return Node{Kind: NullNode, Pos: pos}, nil
		case "!!bool":
			var b bool
			if err := y.Decode(&b); err != nil {
				return Node{}, &ParseError{Path: y.Value, Message: err.Error(), Pos: pos}
			}
			return Node{Kind: BoolNode, Bool: b, Pos: pos}, nil
		case "!!int":
			i, err := strconv.ParseInt(y.Value, 0, 64)
			if err != nil {
				return Node{}, &ParseError{Path: y.Value, Message: "integer out of range", Pos: pos}
			}
			return Node{Kind: IntNode, Int: i, Pos: pos}, nil
		case "!!float":
			return Node{}, &ParseError{Path: y.Value, Message: "floats are not supported - use int instead", Pos: pos}
		default:
			return Node{Kind: StringNode, Str: y.Value, Pos: pos}, nil
		}

	default:
		return Node{}, &ParseError{Path: "document", Message: fmt.Sprintf("unsupported YAML node kind %d", y.Kind), Pos: pos}
	}
}
