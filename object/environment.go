package object

// Environment is a lexical scope: a name->value map plus an optional
// pointer to the enclosing scope. Lookups walk outward through parents;
// new bindings always land in the innermost (current) scope. A function
// literal captures the Environment active at its definition, giving it a
// closure over every name visible there — including names defined after
// the closure if they live in a scope the closure doesn't own directly,
// since Environment.store is looked up at call time, not capture time.
type Environment struct {
	store  map[string]Object
	parent *Environment
}

// NewEnvironment creates a fresh, parentless (global) environment.
func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]Object)}
}

// NewEnclosedEnvironment creates a child scope of parent, used on each
// function call, for each for/foreach loop, and for macro expansion. Block
// statements do not get one.
func NewEnclosedEnvironment(parent *Environment) *Environment {
	env := NewEnvironment()
	env.parent = parent
	return env
}

// Get looks up name in this scope, then each enclosing scope in turn.
func (e *Environment) Get(name string) (Object, bool) {
	obj, ok := e.store[name]
	if !ok && e.parent != nil {
		return e.parent.Get(name)
	}
	return obj, ok
}

// Set binds name to val in this (the innermost) scope, shadowing any
// binding of the same name in an enclosing scope.
func (e *Environment) Set(name string, val Object) Object {
	e.store[name] = val
	return val
}

// Assign rebinds an already-declared name in whichever scope it was
// declared in (walking outward), returning false if name is unbound
// anywhere in the chain. Used for `name = expr` (see ast.AssignExpression),
// which must not silently create a new global.
func (e *Environment) Assign(name string, val Object) bool {
	if _, ok := e.store[name]; ok {
		e.store[name] = val
		return true
	}
	if e.parent != nil {
		return e.parent.Assign(name, val)
	}
	return false
}
