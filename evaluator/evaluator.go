// Package evaluator is Ember's tree-walking back end: it interprets an
// *ast.Program directly against an *object.Environment, sharing the same
// value system (object.Object) and builtin registry the compiler+VM back
// end uses (see spec.md §4.5). It is the back end the REPL's `/back tree`
// mode drives and the one that implements quote/unquote macro expansion,
// which has no bytecode-VM equivalent (spec.md §9).
package evaluator

import (
	"fmt"

	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/object"
	"github.com/ember-lang/ember/token"
)

// Evaluator holds no state: error positions come from the token of the node
// being evaluated, and bindings live in the Environment passed to Eval. A
// zero-value Evaluator is usable.
type Evaluator struct{}

// New creates a ready-to-use Evaluator. It exists (rather than calling Eval
// as a bare package function) so the REPL and CLI can hang future
// configuration - an output writer override, a step budget - off one value,
// the way the teacher's eval.Evaluator does.
func New() *Evaluator {
	return &Evaluator{}
}

// Eval dispatches on node's concrete type and returns the resulting
// object.Object. Errors are ordinary return values (object.Error), never
// panics; Program unwraps a trailing ReturnValue before returning, per
// spec.md §4.5.
func (e *Evaluator) Eval(node ast.Node, env *object.Environment) object.Object {
	switch node := node.(type) {

	case *ast.Program:
		return e.evalProgram(node, env)

	case *ast.ExpressionStatement:
		return e.Eval(node.Expression, env)

	case *ast.BlockStatement:
		return e.evalBlockStatement(node, env)

	case *ast.LetStatement:
		val := e.Eval(node.Value, env)
		if object.IsError(val) {
			return val
		}
		env.Set(node.Name.Value, val)
		return val

	case *ast.ReturnStatement:
		var val object.Object = object.NULL
		if node.Value != nil {
			val = e.Eval(node.Value, env)
			if object.IsError(val) {
				return val
			}
		}
		return &object.ReturnValue{Value: val}

	case *ast.BreakStatement:
		return &object.Break{}

	case *ast.ContinueStatement:
		return &object.Continue{}

	case *ast.IntegerLiteral:
		return object.IntValue(node.Value)

	case *ast.FloatLiteral:
		return &object.Float{Value: node.Value}

	case *ast.StringLiteral:
		return &object.String{Value: node.Value}

	case *ast.Boolean:
		return object.NativeBool(node.Value)

	case *ast.Identifier:
		return e.evalIdentifier(node, env)

	case *ast.PrefixExpression:
		right := e.Eval(node.Right, env)
		if object.IsError(right) {
			return right
		}
		return e.evalPrefixExpression(node, right)

	case *ast.InfixExpression:
		return e.evalInfixExpression(node, env)

	case *ast.AssignExpression:
		val := e.Eval(node.Value, env)
		if object.IsError(val) {
			return val
		}
		if !env.Assign(node.Name.Value, val) {
			return e.newError(node.Token, "identifier '%s' not found", node.Name.Value)
		}
		return val

	case *ast.IfExpression:
		return e.evalIfExpression(node, env)

	case *ast.WhileStatement:
		return e.evalWhileStatement(node, env)

	case *ast.ForStatement:
		return e.evalForStatement(node, env)

	case *ast.ForeachStatement:
		return e.evalForeachStatement(node, env)

	case *ast.FunctionLiteral:
		return &object.Function{Name: node.Name, Parameters: node.Parameters, Body: node.Body, Env: env}

	case *ast.MacroLiteral:
		return e.newError(node.Token, "macro literals may only appear in a top-level let binding")

	case *ast.CallExpression:
		return e.evalCallExpression(node, env)

	case *ast.ArrayLiteral:
		elements := e.evalExpressions(node.Elements, env)
		if len(elements) == 1 && object.IsError(elements[0]) {
			return elements[0]
		}
		return &object.Array{Elements: elements}

	case *ast.HashLiteral:
		return e.evalHashLiteral(node, env)

	case *ast.IndexExpression:
		left := e.Eval(node.Left, env)
		if object.IsError(left) {
			return left
		}
		index := e.Eval(node.Index, env)
		if object.IsError(index) {
			return index
		}
		return e.evalIndexExpression(node, left, index)

	case *ast.SliceExpression:
		return e.evalSliceExpression(node, env)
	}

	return e.newErrorAt(0, 0, "no evaluation rule for %T", node)
}

func (e *Evaluator) evalProgram(program *ast.Program, env *object.Environment) object.Object {
	var result object.Object = object.NULL

	for _, stmt := range program.Statements {
		result = e.Eval(stmt, env)

		switch result := result.(type) {
		case *object.ReturnValue:
			return result.Value
		case *object.Error:
			return result
		}
	}

	return result
}

// evalBlockStatement does NOT unwrap a ReturnValue/Break/Continue: it lets
// them propagate as-is so the enclosing function call, loop, or program root
// can see the signal and act on it (spec.md §4.5's short-circuit rule).
func (e *Evaluator) evalBlockStatement(block *ast.BlockStatement, env *object.Environment) object.Object {
	var result object.Object = object.NULL

	for _, stmt := range block.Statements {
		result = e.Eval(stmt, env)

		if result != nil {
			rt := result.Type()
			if rt == object.ReturnValueObj || rt == object.ErrorObj ||
				rt == object.BreakObj || rt == object.ContinueObj {
				return result
			}
		}
	}

	return result
}

func (e *Evaluator) evalIdentifier(node *ast.Identifier, env *object.Environment) object.Object {
	if val, ok := env.Get(node.Value); ok {
		return val
	}
	for _, b := range object.Builtins {
		if b.Name == node.Value {
			return b
		}
	}
	return e.newError(node.Token, "identifier '%s' not found", node.Value)
}

func (e *Evaluator) evalExpressions(exps []ast.Expression, env *object.Environment) []object.Object {
	var result []object.Object

	for _, exp := range exps {
		evaluated := e.Eval(exp, env)
		if object.IsError(evaluated) {
			return []object.Object{evaluated}
		}
		result = append(result, evaluated)
	}

	return result
}

func (e *Evaluator) evalIfExpression(node *ast.IfExpression, env *object.Environment) object.Object {
	condition := e.Eval(node.Condition, env)
	if object.IsError(condition) {
		return condition
	}

	if object.IsTruthy(condition) {
		return e.Eval(node.Consequence, env)
	} else if node.Alternative != nil {
		return e.Eval(node.Alternative, env)
	}
	return object.NULL
}

func (e *Evaluator) evalCallExpression(node *ast.CallExpression, env *object.Environment) object.Object {
	if ident, ok := node.Function.(*ast.Identifier); ok && ident.Value == "quote" {
		if len(node.Arguments) != 1 {
			return e.newError(node.Token, "quote expects exactly 1 argument, got %d", len(node.Arguments))
		}
		return e.quote(node.Arguments[0], env)
	}

	function := e.Eval(node.Function, env)
	if object.IsError(function) {
		return function
	}

	args := e.evalExpressions(node.Arguments, env)
	if len(args) == 1 && object.IsError(args[0]) {
		return args[0]
	}

	return e.applyFunction(node.Token.Line, node.Token.Column, function, args)
}

func (e *Evaluator) applyFunction(line, col int, fn object.Object, args []object.Object) object.Object {
	switch fn := fn.(type) {
	case *object.Function:
		if len(args) != len(fn.Parameters) {
			return e.newErrorAt(line, col, "wrong number of arguments: want=%d, got=%d", len(fn.Parameters), len(args))
		}
		extendedEnv := object.NewEnclosedEnvironment(fn.Env)
		for i, param := range fn.Parameters {
			extendedEnv.Set(param.Value, args[i])
		}
		evaluated := e.Eval(fn.Body, extendedEnv)
		return unwrapReturnValue(evaluated)

	case *object.Builtin:
		return fn.Fn(line, col, args...)

	default:
		return e.newErrorAt(line, col, "not a function: %s", fn.Type())
	}
}

func unwrapReturnValue(obj object.Object) object.Object {
	if returnValue, ok := obj.(*object.ReturnValue); ok {
		return returnValue.Value
	}
	return obj
}

func (e *Evaluator) newError(tok token.Token, format string, a ...interface{}) *object.Error {
	return e.newErrorAt(tok.Line, tok.Column, format, a...)
}

func (e *Evaluator) newErrorAt(line, col int, format string, a ...interface{}) *object.Error {
	return &object.Error{Message: fmt.Sprintf(format, a...), Line: line, Column: col}
}
