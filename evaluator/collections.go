package evaluator

import (
	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/object"
)

func (e *Evaluator) evalHashLiteral(node *ast.HashLiteral, env *object.Environment) object.Object {
	pairs := make(map[object.HashKey]object.HashPair, len(node.Pairs))

	for _, p := range node.Pairs {
		key := e.Eval(p.Key, env)
		if object.IsError(key) {
			return key
		}

		hashable, ok := key.(object.Hashable)
		if !ok {
			return e.newError(node.Token, "unusable as hash key: %s", key.Type())
		}

		value := e.Eval(p.Value, env)
		if object.IsError(value) {
			return value
		}

		// Duplicate keys overwrite, matching map-literal order (spec.md §4.5).
		pairs[hashable.HashKey()] = object.HashPair{Key: key, Value: value}
	}

	return &object.Hash{Pairs: pairs}
}

// evalIndexExpression implements spec.md §4.5's tree-walk Index semantics:
// 1-based array indexing with negative-from-end, `0` and out-of-range are
// errors (the VM, by contrast, returns Null for both — the documented
// divergence of spec.md §8/§9).
func (e *Evaluator) evalIndexExpression(node *ast.IndexExpression, left, index object.Object) object.Object {
	switch {
	case left.Type() == object.ArrayObj:
		return e.evalArrayIndex(node, left.(*object.Array), index)
	case left.Type() == object.HashObj:
		return e.evalHashIndex(node, left.(*object.Hash), index)
	default:
		return e.newError(node.Token, "index operator not supported: %s", left.Type())
	}
}

func (e *Evaluator) evalArrayIndex(node *ast.IndexExpression, arr *object.Array, index object.Object) object.Object {
	idx, ok := index.(*object.Integer)
	if !ok {
		return e.newError(node.Token, "array index must be an integer, got %s", index.Type())
	}

	length := int64(len(arr.Elements))
	i := idx.Value

	var pos int64
	switch {
	case i > 0:
		pos = i - 1
	case i < 0:
		pos = length + i
	default:
		return e.newError(node.Token, "array index 0 is invalid (indices are 1-based)")
	}

	if pos < 0 || pos >= length {
		return e.newError(node.Token, "array index out of range: %d (length %d)", i, length)
	}
	return arr.Elements[pos]
}

func (e *Evaluator) evalHashIndex(node *ast.IndexExpression, hash *object.Hash, index object.Object) object.Object {
	hashable, ok := index.(object.Hashable)
	if !ok {
		return e.newError(node.Token, "unusable as hash key: %s", index.Type())
	}

	pair, ok := hash.Pairs[hashable.HashKey()]
	if !ok {
		return object.NULL
	}
	return pair.Value
}

// evalSliceExpression implements `arr[a:b]` (SUPPLEMENTED, see SPEC_FULL.md
// §3): a bounds-clamped sub-array, tree-walk only — the bytecode compiler
// rejects SliceExpression outright since the VM's Index opcode has no
// three-operand form.
func (e *Evaluator) evalSliceExpression(node *ast.SliceExpression, env *object.Environment) object.Object {
	left := e.Eval(node.Left, env)
	if object.IsError(left) {
		return left
	}
	arr, ok := left.(*object.Array)
	if !ok {
		return e.newError(node.Token, "slice operator not supported: %s", left.Type())
	}

	length := int64(len(arr.Elements))
	start, end := int64(0), length

	if node.Start != nil {
		s := e.Eval(node.Start, env)
		if object.IsError(s) {
			return s
		}
		si, ok := s.(*object.Integer)
		if !ok {
			return e.newError(node.Token, "slice start must be an integer, got %s", s.Type())
		}
		start = si.Value
	}
	if node.End != nil {
		v := e.Eval(node.End, env)
		if object.IsError(v) {
			return v
		}
		ei, ok := v.(*object.Integer)
		if !ok {
			return e.newError(node.Token, "slice end must be an integer, got %s", v.Type())
		}
		end = ei.Value
	}

	if start < 0 {
		start = 0
	}
	if end > length {
		end = length
	}
	if start >= end {
		return &object.Array{Elements: []object.Object{}}
	}

	elements := make([]object.Object, end-start)
	copy(elements, arr.Elements[start:end])
	return &object.Array{Elements: elements}
}
