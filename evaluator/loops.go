package evaluator

import (
	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/object"
)

// evalWhileStatement and evalForStatement evaluate the SUPPLEMENTED loop
// statements (SPEC_FULL.md §3). A while body runs in the enclosing
// environment directly, matching the teacher's `eval_loops.go`, which lets
// its `let` rebind a variable declared just above the loop. A for loop
// creates one child scope for the whole loop (holding its init bindings)
// and runs every iteration in it; neither loop makes a per-iteration scope.
// Break/Continue propagate as object.Break/object.Continue signal values,
// the same short-circuit mechanism ReturnValue uses.
func (e *Evaluator) evalWhileStatement(node *ast.WhileStatement, env *object.Environment) object.Object {
	var result object.Object = object.NULL

	for {
		cond := e.Eval(node.Condition, env)
		if object.IsError(cond) {
			return cond
		}
		if !object.IsTruthy(cond) {
			break
		}

		result = e.Eval(node.Body, env)
		switch result.(type) {
		case *object.Error, *object.ReturnValue:
			return result
		case *object.Break:
			return object.NULL
		}
	}

	return object.NULL
}

func (e *Evaluator) evalForStatement(node *ast.ForStatement, env *object.Environment) object.Object {
	loopEnv := object.NewEnclosedEnvironment(env)

	if node.Init != nil {
		init := e.Eval(node.Init, loopEnv)
		if object.IsError(init) {
			return init
		}
	}

	for {
		if node.Condition != nil {
			cond := e.Eval(node.Condition, loopEnv)
			if object.IsError(cond) {
				return cond
			}
			if !object.IsTruthy(cond) {
				break
			}
		}

		result := e.Eval(node.Body, loopEnv)
		switch result.(type) {
		case *object.Error, *object.ReturnValue:
			return result
		case *object.Break:
			return object.NULL
		}

		if node.Post != nil {
			post := e.Eval(node.Post, loopEnv)
			if object.IsError(post) {
				return post
			}
		}
	}

	return object.NULL
}

// evalForeachStatement iterates an Array's elements or a Hash's values,
// binding each in turn to Name in a child scope created once per iteration
// (so a closure captured inside the body sees that iteration's value, not
// whichever element the loop landed on last).
func (e *Evaluator) evalForeachStatement(node *ast.ForeachStatement, env *object.Environment) object.Object {
	iterable := e.Eval(node.Iterable, env)
	if object.IsError(iterable) {
		return iterable
	}

	var values []object.Object
	switch it := iterable.(type) {
	case *object.Array:
		values = it.Elements
	case *object.Hash:
		for _, pair := range it.Pairs {
			values = append(values, pair.Value)
		}
	default:
		return e.newError(node.Token, "foreach operator not supported: %s", iterable.Type())
	}

	for _, v := range values {
		iterEnv := object.NewEnclosedEnvironment(env)
		iterEnv.Set(node.Name.Value, v)

		result := e.Eval(node.Body, iterEnv)
		switch result.(type) {
		case *object.Error, *object.ReturnValue:
			return result
		case *object.Break:
			return object.NULL
		}
	}

	return object.NULL
}
