package evaluator

import (
	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/object"
)

// DefineMacros implements the top-level pass spec.md §4.5 describes: every
// `let <name> = macro(<params>) { <body> }` statement at the top level of
// program is removed from the statement list and its Macro value is bound
// in macroEnv, so later ExpandMacros calls can resolve a call by that name
// back to its (unevaluated) body.
func DefineMacros(program *ast.Program, macroEnv *object.Environment) {
	var macroDefinitionIndexes []int

	for i, stmt := range program.Statements {
		if !isMacroDefinition(stmt) {
			continue
		}
		addMacro(stmt, macroEnv)
		macroDefinitionIndexes = append(macroDefinitionIndexes, i)
	}

	for i := len(macroDefinitionIndexes) - 1; i >= 0; i-- {
		idx := macroDefinitionIndexes[i]
		program.Statements = append(program.Statements[:idx], program.Statements[idx+1:]...)
	}
}

func isMacroDefinition(stmt ast.Statement) bool {
	letStmt, ok := stmt.(*ast.LetStatement)
	if !ok {
		return false
	}
	_, ok = letStmt.Value.(*ast.MacroLiteral)
	return ok
}

func addMacro(stmt ast.Statement, macroEnv *object.Environment) {
	letStmt := stmt.(*ast.LetStatement)
	macroLit := letStmt.Value.(*ast.MacroLiteral)

	macro := &object.Macro{
		Parameters: macroLit.Parameters,
		Env:        macroEnv,
		Body:       macroLit.Body,
	}
	macroEnv.Set(letStmt.Name.Value, macro)
}

// ExpandMacros walks program bottom-up (via ast.Modify) and replaces every
// CallExpression whose callee identifier resolves to a Macro in macroEnv
// with the result of evaluating the macro's body in a scope binding each
// parameter to the corresponding argument wrapped in object.Quote — the
// mechanism spec.md §4.5 describes for macro expansion. A macro body that
// does not evaluate to a Quote is left unexpanded (its call site is
// returned unchanged), which surfaces as an ordinary "identifier not found"
// at evaluation time rather than a panic.
func ExpandMacros(program ast.Node, macroEnv *object.Environment) ast.Node {
	return ast.Modify(program, func(node ast.Node) ast.Node {
		call, ok := node.(*ast.CallExpression)
		if !ok {
			return node
		}

		macro, ok := resolveMacro(call, macroEnv)
		if !ok {
			return node
		}

		args := make([]*object.Quote, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = &object.Quote{Node: a}
		}

		evalEnv := object.NewEnclosedEnvironment(macro.Env)
		for i, param := range macro.Parameters {
			if i < len(args) {
				evalEnv.Set(param.Value, args[i])
			}
		}

		evaluated := New().Eval(macro.Body, evalEnv)

		quote, ok := evaluated.(*object.Quote)
		if !ok {
			return node
		}
		return quote.Node
	})
}

func resolveMacro(call *ast.CallExpression, macroEnv *object.Environment) (*object.Macro, bool) {
	ident, ok := call.Function.(*ast.Identifier)
	if !ok {
		return nil, false
	}
	obj, ok := macroEnv.Get(ident.Value)
	if !ok {
		return nil, false
	}
	macro, ok := obj.(*object.Macro)
	return macro, ok
}
