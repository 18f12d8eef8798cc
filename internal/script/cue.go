package script

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// parseCUE evaluates a CUE file and reads the result into a Node. The value
// must be concrete; struct fields are visited in declaration order.
func parseCUE(data []byte, filename string) (Node, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Node{}, formatCUEError(err)
	}
	return fromCUE(v, "script")
}

func fromCUE(v cue.Value, path string) (Node, error) {
	pos := cuePos(v.Pos())

	if err := v.Err(); err != nil {
		return Node{}, formatCUEError(err)
	}
	if !v.IsConcrete() {
		return Node{}, &ParseError{Path: path, Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()), Pos: pos}
	}

	switch v.IncompleteKind() {
	case cue.NullKind:
		return Node{Kind: NullNode, Pos: pos}, nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return Node{}, formatCUEError(err)
		}
		return Node{Kind: BoolNode, Bool: b, Pos: pos}, nil

	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return Node{}, formatCUEError(err)
		}
		return Node{Kind: IntNode, Int: i, Pos: pos}, nil

	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return Node{}, formatCUEError(err)
		}
		return Node{Kind: StringNode, Str: s, Pos: pos}, nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return Node{}, formatCUEError(err)
		}
		n := Node{Kind: ListNode, Pos: pos, Items: []Node{}}
		for i := 0; iter.Next(); i++ {
			item, err := fromCUE(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return Node{}, err
			}
			n.Items = append(n.Items, item)
		}
		return n, nil

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return Node{}, formatCUEError(err)
		}
		n := Node{Kind: MapNode, Pos: pos}
		for iter.Next() {
			label := iter.Label()
			val, err := fromCUE(iter.Value(), path+"."+label)
			if err != nil {
				return Node{}, err
			}
			n.Fields = append(n.Fields, NodeField{Key: label, Value: val})
		}
		return n, nil

	case cue.FloatKind, cue.NumberKind:
		return Node{}, &ParseError{Path: path, Message: "floats are not supported - use int instead", Pos: pos}

	default:
		return Node{}, &ParseError{Path: path, Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()), Pos: pos}
	}
}

func cuePos(p token.Pos) string {
	if !p.IsValid() {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", p.Filename(), p.Line(), p.Column())
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &ParseError{Path: "cue", Message: first.Error(), Pos: cuePos(positions[0])}
	}
	return err
}
