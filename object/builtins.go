package object

import "fmt"

// Builtins lists every built-in function in the fixed order the compiler's
// symbol table assigns Builtin-scope indices in (see symtable.SymbolTable
// and compiler.New, which call DefineBuiltin(i, b.Name) over this slice in
// order). Appending to this list is safe; reordering it is not, since
// already-compiled bytecode references builtins by index.
var Builtins = []*Builtin{
	{Name: "len", Fn: builtinLen},
	{Name: "first", Fn: builtinFirst},
	{Name: "last", Fn: builtinLast},
	{Name: "rest", Fn: builtinRest},
	{Name: "push", Fn: builtinPush},
	{Name: "puts", Fn: builtinPuts},
	{Name: "quote", Fn: builtinQuote},
}

// PutsWriter receives each line the `puts` builtin prints; it defaults to
// fmt.Println. Replacing it redirects `puts` output for both back ends.
var PutsWriter = func(s string) { fmt.Println(s) }

func newError(line, col int, format string, a ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, a...), Line: line, Column: col}
}

func builtinLen(line, col int, args ...Object) Object {
	if len(args) != 1 {
		return newError(line, col, "wrong number of arguments: got=%d, want=1", len(args))
	}
	switch arg := args[0].(type) {
	case *Array:
		return IntValue(int64(len(arg.Elements)))
	case *String:
		return IntValue(int64(len(arg.Value)))
	case *Hash:
		return IntValue(int64(len(arg.Pairs)))
	default:
		return newError(line, col, "Invalid argument for len: got %s", args[0].Type())
	}
}

func builtinFirst(line, col int, args ...Object) Object {
	if len(args) != 1 {
		return newError(line, col, "wrong number of arguments: got=%d, want=1", len(args))
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return newError(line, col, "Invalid argument for first: got %s", args[0].Type())
	}
	if len(arr.Elements) == 0 {
		return newError(line, col, "Cannot get first element for empty array")
	}
	return arr.Elements[0]
}

func builtinLast(line, col int, args ...Object) Object {
	if len(args) != 1 {
		return newError(line, col, "wrong number of arguments: got=%d, want=1", len(args))
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return newError(line, col, "Invalid argument for last: got %s", args[0].Type())
	}
	if len(arr.Elements) == 0 {
		return newError(line, col, "Cannot get last element for empty array")
	}
	return arr.Elements[len(arr.Elements)-1]
}

func builtinRest(line, col int, args ...Object) Object {
	if len(args) != 1 {
		return newError(line, col, "wrong number of arguments: got=%d, want=1", len(args))
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return newError(line, col, "Invalid argument for rest: got %s", args[0].Type())
	}
	if len(arr.Elements) == 0 {
		return &Array{Elements: []Object{}}
	}
	rest := make([]Object, len(arr.Elements)-1)
	copy(rest, arr.Elements[1:])
	return &Array{Elements: rest}
}

func builtinPush(line, col int, args ...Object) Object {
	if len(args) != 2 {
		return newError(line, col, "wrong number of arguments: got=%d, want=2", len(args))
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return newError(line, col, "Invalid argument for push: got %s", args[0].Type())
	}
	newElems := make([]Object, len(arr.Elements)+1)
	copy(newElems, arr.Elements)
	newElems[len(arr.Elements)] = args[1]
	return &Array{Elements: newElems}
}

func builtinPuts(line, col int, args ...Object) Object {
	for _, a := range args {
		PutsWriter(">> " + a.Inspect())
	}
	return NULL
}

// builtinQuote is reserved: spec.md §4.4 notes `quote` is only valid via
// the tree-walk evaluator's special-form path (evaluator.go intercepts a
// Call to the identifier "quote" before it ever reaches the builtin
// registry). Invoking it through the ordinary builtin-call path — which is
// the only way the VM can ever reach it, since the compiler has no special
// form for quote — is always an error.
func builtinQuote(line, col int, args ...Object) Object {
	return newError(line, col, "quote is not callable outside the tree-walk evaluator")
}
