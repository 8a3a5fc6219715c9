package evaluator

import (
	"fmt"

	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/object"
	"github.com/ember-lang/ember/token"
)

// quote implements the `quote(expr)` special form (spec.md §4.5): expr is
// never evaluated. Every `unquote(e)` sub-expression is replaced, bottom-up
// via ast.Modify, by the AST form of evaluate(e); the rest of expr is
// spliced in verbatim. The result is wrapped in an object.Quote.
func (e *Evaluator) quote(node ast.Expression, env *object.Environment) object.Object {
	var errObj *object.Error

	result := ast.Modify(node, func(n ast.Node) ast.Node {
		if errObj != nil {
			return n
		}
		call, ok := unquoteCall(n)
		if !ok {
			return n
		}

		evaluated := e.Eval(call.Arguments[0], env)
		if object.IsError(evaluated) {
			errObj = evaluated.(*object.Error)
			return n
		}

		replacement, err := objectToASTNode(evaluated, call.Token)
		if err != "" {
			errObj = e.newErrorAt(call.Token.Line, call.Token.Column, "%s", err)
			return n
		}
		return replacement
	})

	if errObj != nil {
		return errObj
	}
	return &object.Quote{Node: result}
}

// unquoteCall reports whether n is a call to the identifier "unquote" with
// exactly one argument, returning the call node itself when it is.
func unquoteCall(n ast.Node) (*ast.CallExpression, bool) {
	call, ok := n.(*ast.CallExpression)
	if !ok {
		return nil, false
	}
	ident, ok := call.Function.(*ast.Identifier)
	if !ok || ident.Value != "unquote" {
		return nil, false
	}
	if len(call.Arguments) != 1 {
		return nil, false
	}
	return call, true
}

// objectToASTNode converts an evaluated unquote(...) result back into the
// AST fragment that gets spliced into the quoted tree, per spec.md §4.5:
// non-negative integers become an IntegerLiteral, negative integers become
// a Prefix('-', IntegerLiteral) (tokens never carry a literal negative
// sign), booleans and strings become their literal node, and an already
// quoted value is spliced back in verbatim. Anything else is an error.
func objectToASTNode(obj object.Object, callTok token.Token) (ast.Node, string) {
	switch obj := obj.(type) {
	case *object.Integer:
		if obj.Value >= 0 {
			lit := fmt.Sprintf("%d", obj.Value)
			return &ast.IntegerLiteral{
				Token: token.New(token.INT, lit, callTok.Line, callTok.Column),
				Value: obj.Value,
			}, ""
		}
		lit := fmt.Sprintf("%d", -obj.Value)
		inner := &ast.IntegerLiteral{
			Token: token.New(token.INT, lit, callTok.Line, callTok.Column),
			Value: -obj.Value,
		}
		return &ast.PrefixExpression{
			Token:    token.New(token.MINUS, "-", callTok.Line, callTok.Column),
			Operator: "-",
			Right:    inner,
		}, ""

	case *object.Boolean:
		tokType := token.FALSE
		if obj.Value {
			tokType = token.TRUE
		}
		return &ast.Boolean{
			Token: token.New(tokType, fmt.Sprintf("%t", obj.Value), callTok.Line, callTok.Column),
			Value: obj.Value,
		}, ""

	case *object.String:
		return &ast.StringLiteral{
			Token: token.New(token.STRING, obj.Value, callTok.Line, callTok.Column),
			Value: obj.Value,
		}, ""

	case *object.Quote:
		return obj.Node, ""

	default:
		return nil, fmt.Sprintf("cannot unquote %s into an AST node", obj.Type())
	}
}
