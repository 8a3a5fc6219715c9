// Package compiler turns an ast.Node into Ember bytecode (see spec.md
// §4.7): an append-only constants pool plus a stack of per-function
// compilation scopes, each holding its own instruction buffer and
// symtable.SymbolTable.
package compiler

import (
	"fmt"
	"sort"

	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/code"
	"github.com/ember-lang/ember/object"
	"github.com/ember-lang/ember/symtable"
)

// ErrorKind names the class of a collected CompileError, per spec.md §4.7.
type ErrorKind string

const (
	UnknownOperator        ErrorKind = "UnknownOperator"
	WrongNumberOfArguments ErrorKind = "WrongNumberOfArguments"
	UnexpectedSymbol       ErrorKind = "UnexpectedSymbol"
	NotImplemented         ErrorKind = "NotImplemented"
)

// CompileError is a single collected compilation failure.
type CompileError struct {
	Kind    ErrorKind
	Message string
	Line    int
	Column  int
}

func (e CompileError) Error() string { return e.Message }

// EmittedInstruction records an opcode and the position it was written at,
// so the scope can tell whether the most recent emission was a Pop (needed
// to rewrite an expression-statement's trailing Pop into a function's
// implicit return) without re-scanning the instruction buffer.
type EmittedInstruction struct {
	Opcode   code.Opcode
	Position int
}

// CompilationScope is one function body's worth of in-progress bytecode:
// its own instruction buffer and the last two emitted instructions.
type CompilationScope struct {
	instructions        code.Instructions
	lastInstruction     EmittedInstruction
	previousInstruction EmittedInstruction
}

// Bytecode is the finished output of a Compile call: the main scope's
// instructions plus the completed constants pool.
type Bytecode struct {
	Instructions code.Instructions
	Constants    []object.Object
}

// Compiler walks an AST and emits bytecode into the current scope's
// instruction buffer, growing the shared constants pool as literals and
// compiled functions are encountered.
type Compiler struct {
	constants []object.Object

	symbolTable *symtable.SymbolTable

	scopes     []CompilationScope
	scopeIndex int

	loopStack []*loopContext

	errors []CompileError

	foreachCounter int
}

// New creates a Compiler with a fresh global symbol table pre-populated
// with every entry of object.Builtins, by index, matching spec.md §4.4's
// fixed builtin ordering.
func New() *Compiler {
	mainScope := CompilationScope{instructions: code.Instructions{}}

	symbolTable := symtable.NewGlobal()
	for i, b := range object.Builtins {
		symbolTable.DefineBuiltin(i, b.Name)
	}

	return &Compiler{
		constants:   []object.Object{},
		symbolTable: symbolTable,
		scopes:      []CompilationScope{mainScope},
		scopeIndex:  0,
		errors:      []CompileError{},
	}
}

// NewWithState creates a Compiler that shares an existing constants pool
// and global symbol table, for REPL sessions that compile one line at a
// time and need previously defined globals to stay resolvable.
func NewWithState(symbolTable *symtable.SymbolTable, constants []object.Object) *Compiler {
	c := New()
	c.symbolTable = symbolTable
	c.constants = constants
	return c
}

// Errors returns every CompileError collected so far.
func (c *Compiler) Errors() []CompileError { return c.errors }

func (c *Compiler) addError(kind ErrorKind, line, col int, format string, args ...interface{}) {
	c.errors = append(c.errors, CompileError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
		Column:  col,
	})
}

// Bytecode returns the main scope's finished instructions and the shared
// constants pool.
func (c *Compiler) Bytecode() *Bytecode {
	return &Bytecode{
		Instructions: c.currentInstructions(),
		Constants:    c.constants,
	}
}

func (c *Compiler) currentInstructions() code.Instructions {
	return c.scopes[c.scopeIndex].instructions
}

func (c *Compiler) addConstant(obj object.Object) int {
	c.constants = append(c.constants, obj)
	return len(c.constants) - 1
}

func (c *Compiler) emit(op code.Opcode, operands ...int) int {
	ins := code.Make(op, operands...)
	pos := c.addInstruction(ins)
	c.setLastInstruction(op, pos)
	return pos
}

func (c *Compiler) addInstruction(ins []byte) int {
	posNewInstruction := len(c.currentInstructions())
	updated := append(c.currentInstructions(), ins...)
	c.scopes[c.scopeIndex].instructions = updated
	return posNewInstruction
}

func (c *Compiler) setLastInstruction(op code.Opcode, pos int) {
	previous := c.scopes[c.scopeIndex].lastInstruction
	last := EmittedInstruction{Opcode: op, Position: pos}
	c.scopes[c.scopeIndex].previousInstruction = previous
	c.scopes[c.scopeIndex].lastInstruction = last
}

func (c *Compiler) lastInstructionIs(op code.Opcode) bool {
	if len(c.currentInstructions()) == 0 {
		return false
	}
	return c.scopes[c.scopeIndex].lastInstruction.Opcode == op
}

func (c *Compiler) removeLastPop() {
	last := c.scopes[c.scopeIndex].lastInstruction
	previous := c.scopes[c.scopeIndex].previousInstruction

	old := c.currentInstructions()
	newIns := old[:last.Position]

	c.scopes[c.scopeIndex].instructions = newIns
	c.scopes[c.scopeIndex].lastInstruction = previous
}

// replaceInstruction overwrites the bytes at pos in place; used to
// back-patch a jump target once it becomes known.
func (c *Compiler) replaceInstruction(pos int, newInstruction []byte) {
	ins := c.currentInstructions()
	for i := 0; i < len(newInstruction); i++ {
		ins[pos+i] = newInstruction[i]
	}
}

func (c *Compiler) changeOperand(opPos int, operand int) {
	op := code.Opcode(c.currentInstructions()[opPos])
	newInstruction := code.Make(op, operand)
	c.replaceInstruction(opPos, newInstruction)
}

// replaceLastPopWithReturn rewrites a trailing Pop into ReturnValue so a
// function body whose last statement is a bare expression yields that
// expression's value to the caller (spec.md §4.7's FunctionLiteral rule).
func (c *Compiler) replaceLastPopWithReturn() {
	lastPos := c.scopes[c.scopeIndex].lastInstruction.Position
	newInstruction := code.Make(code.OpReturnValue)
	c.replaceInstruction(lastPos, newInstruction)
	c.scopes[c.scopeIndex].lastInstruction.Opcode = code.OpReturnValue
}

func (c *Compiler) enterScope() {
	scope := CompilationScope{instructions: code.Instructions{}}
	c.scopes = append(c.scopes, scope)
	c.scopeIndex++
	c.symbolTable = symtable.NewEnclosed(c.symbolTable)
}

func (c *Compiler) leaveScope() code.Instructions {
	instructions := c.currentInstructions()

	c.scopes = c.scopes[:len(c.scopes)-1]
	c.scopeIndex--

	c.symbolTable = c.symbolTable.Outer

	return instructions
}

func (c *Compiler) loadSymbol(sym symtable.Symbol) {
	switch sym.Scope {
	case symtable.GlobalScope:
		c.emit(code.OpGetGlobal, sym.Index)
	case symtable.LocalScope:
		c.emit(code.OpGetLocal, sym.Index)
	case symtable.BuiltinScope:
		c.emit(code.OpGetBuiltin, sym.Index)
	case symtable.FreeScope:
		c.emit(code.OpGetFree, sym.Index)
	case symtable.FunctionScope:
		c.emit(code.OpCurrentClosure)
	}
}

// Compile dispatches on node's concrete type, emitting instructions (and
// growing the constants pool) into the current scope. Errors are collected
// via addError, not returned — callers check Errors() after Compile.
func (c *Compiler) Compile(node ast.Node) {
	switch node := node.(type) {
	case *ast.Program:
		for _, s := range node.Statements {
			c.Compile(s)
		}

	case *ast.ExpressionStatement:
		c.Compile(node.Expression)
		c.emit(code.OpPop)

	case *ast.BlockStatement:
		for _, s := range node.Statements {
			c.Compile(s)
		}

	case *ast.LetStatement:
		// Defined before compiling the value (not after) so a function
		// literal's own body can resolve its let-bound name for recursion.
		symbol := c.symbolTable.Define(node.Name.Value)
		c.Compile(node.Value)
		if symbol.Scope == symtable.GlobalScope {
			c.emit(code.OpSetGlobal, symbol.Index)
		} else {
			c.emit(code.OpSetLocal, symbol.Index)
		}

	case *ast.Identifier:
		symbol, ok := c.symbolTable.Resolve(node.Value)
		if !ok {
			c.addError(UnexpectedSymbol, node.Token.Line, node.Token.Column, "undefined variable %s", node.Value)
			return
		}
		c.loadSymbol(symbol)

	case *ast.AssignExpression:
		c.Compile(node.Value)
		symbol, ok := c.symbolTable.Resolve(node.Name.Value)
		if !ok {
			c.addError(UnexpectedSymbol, node.Token.Line, node.Token.Column, "undefined variable %s", node.Name.Value)
			return
		}
		switch symbol.Scope {
		case symtable.GlobalScope:
			c.emit(code.OpSetGlobal, symbol.Index)
		case symtable.LocalScope:
			c.emit(code.OpSetLocal, symbol.Index)
		default:
			c.addError(UnexpectedSymbol, node.Token.Line, node.Token.Column, "cannot assign to %s", node.Name.Value)
			return
		}
		c.loadSymbol(symbol)

	case *ast.IntegerLiteral:
		integer := object.IntValue(node.Value)
		c.emit(code.OpConstant, c.addConstant(integer))

	case *ast.FloatLiteral:
		c.emit(code.OpConstant, c.addConstant(&object.Float{Value: node.Value}))

	case *ast.StringLiteral:
		c.emit(code.OpConstant, c.addConstant(&object.String{Value: node.Value}))

	case *ast.Boolean:
		if node.Value {
			c.emit(code.OpTrue)
		} else {
			c.emit(code.OpFalse)
		}

	case *ast.PrefixExpression:
		c.Compile(node.Right)
		switch node.Operator {
		case "!":
			c.emit(code.OpBang)
		case "-":
			c.emit(code.OpMinus)
		case "~":
			c.emit(code.OpBitNot)
		default:
			c.addError(UnknownOperator, node.Token.Line, node.Token.Column, "unknown operator %s", node.Operator)
		}

	case *ast.InfixExpression:
		c.compileInfixExpression(node)

	case *ast.IfExpression:
		c.compileIfExpression(node)

	case *ast.WhileStatement:
		c.compileWhileStatement(node)

	case *ast.ForStatement:
		c.compileForStatement(node)

	case *ast.ForeachStatement:
		c.compileForeachStatement(node)

	case *ast.ReturnStatement:
		if node.Value != nil {
			c.Compile(node.Value)
		} else {
			c.emit(code.OpNull)
		}
		c.emit(code.OpReturnValue)

	case *ast.BreakStatement:
		c.compileBreak(node)

	case *ast.ContinueStatement:
		c.compileContinue(node)

	case *ast.FunctionLiteral:
		c.compileFunctionLiteral(node)

	case *ast.CallExpression:
		c.Compile(node.Function)
		for _, a := range node.Arguments {
			c.Compile(a)
		}
		c.emit(code.OpCall, len(node.Arguments))

	case *ast.ArrayLiteral:
		for _, el := range node.Elements {
			c.Compile(el)
		}
		c.emit(code.OpArray, len(node.Elements))

	case *ast.HashLiteral:
		keys := make([]ast.Expression, 0, len(node.Pairs))
		pairsByKeyString := make(map[string]ast.HashPair, len(node.Pairs))
		for _, p := range node.Pairs {
			keys = append(keys, p.Key)
			pairsByKeyString[p.Key.String()] = p
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

		for _, k := range keys {
			pair := pairsByKeyString[k.String()]
			c.Compile(pair.Key)
			c.Compile(pair.Value)
		}
		c.emit(code.OpHash, len(node.Pairs)*2)

	case *ast.IndexExpression:
		c.Compile(node.Left)
		c.Compile(node.Index)
		c.emit(code.OpIndex)

	case *ast.SliceExpression:
		// Slicing is tree-walk only (see SPEC_FULL.md §3 SUPPLEMENTED): the
		// VM's Index opcode has a fixed pop/pop/push shape and extending it
		// to three operands is out of scope for this backend.
		c.addError(NotImplemented, node.Token.Line, node.Token.Column, "slice expressions are not supported by the compiled backend")

	case *ast.MacroLiteral:
		// Macro literals are expanded away before compilation ever sees
		// them (evaluator.DefineMacros/ExpandMacros); reaching one here
		// means expansion was skipped.
		c.addError(NotImplemented, node.Token.Line, node.Token.Column, "macro literals must be expanded before compilation")

	default:
		c.addError(NotImplemented, 0, 0, "compilation not implemented for %T", node)
	}
}

func (c *Compiler) compileInfixExpression(node *ast.InfixExpression) {
	if node.Operator == "<" {
		c.Compile(node.Right)
		c.Compile(node.Left)
		c.emit(code.OpGreaterThan)
		return
	}
	if node.Operator == "<=" {
		// left <= right == !(left > right), natural operand order.
		c.Compile(node.Left)
		c.Compile(node.Right)
		c.emit(code.OpGreaterThan)
		c.emit(code.OpBang)
		return
	}
	if node.Operator == ">=" {
		// left >= right == !(left < right) == !(right > left), same swap
		// trick as "<".
		c.Compile(node.Right)
		c.Compile(node.Left)
		c.emit(code.OpGreaterThan)
		c.emit(code.OpBang)
		return
	}

	c.Compile(node.Left)
	c.Compile(node.Right)

	switch node.Operator {
	case "+":
		c.emit(code.OpAdd)
	case "-":
		c.emit(code.OpSub)
	case "*":
		c.emit(code.OpMul)
	case "/":
		c.emit(code.OpDiv)
	case "%":
		c.emit(code.OpMod)
	case ">":
		c.emit(code.OpGreaterThan)
	case "==":
		c.emit(code.OpEqual)
	case "!=":
		c.emit(code.OpNotEqual)
	case "&":
		c.emit(code.OpBitAnd)
	case "|":
		c.emit(code.OpBitOr)
	case "^":
		c.emit(code.OpBitXor)
	case "<<":
		c.emit(code.OpShl)
	case ">>":
		c.emit(code.OpShr)
	case "&&":
		c.emit(code.OpBitAnd)
	case "||":
		c.emit(code.OpBitOr)
	default:
		c.addError(UnknownOperator, node.Token.Line, node.Token.Column, "unknown operator %s", node.Operator)
	}
}

func (c *Compiler) compileIfExpression(node *ast.IfExpression) {
	c.Compile(node.Condition)

	jumpNotTruthyPos := c.emit(code.OpJumpNotTruthy, 9999)

	c.Compile(node.Consequence)
	if c.lastInstructionIs(code.OpPop) {
		c.removeLastPop()
	}

	jumpPos := c.emit(code.OpJump, 9999)

	afterConsequencePos := len(c.currentInstructions())
	c.changeOperand(jumpNotTruthyPos, afterConsequencePos)

	if node.Alternative == nil {
		c.emit(code.OpNull)
	} else {
		c.Compile(node.Alternative)
		if c.lastInstructionIs(code.OpPop) {
			c.removeLastPop()
		}
	}

	afterAlternativePos := len(c.currentInstructions())
	c.changeOperand(jumpPos, afterAlternativePos)
}

// compileWhileStatement reuses the same backpatched-jump shape as If (see
// SPEC_FULL.md §4.7): no new opcodes are needed for loops.
func (c *Compiler) compileWhileStatement(node *ast.WhileStatement) {
	conditionPos := len(c.currentInstructions())

	c.Compile(node.Condition)
	jumpNotTruthyPos := c.emit(code.OpJumpNotTruthy, 9999)

	loop := c.pushLoop(conditionPos)
	c.Compile(node.Body)

	c.emit(code.OpJump, conditionPos)

	afterBodyPos := len(c.currentInstructions())
	c.changeOperand(jumpNotTruthyPos, afterBodyPos)
	c.patchContinues(loop, conditionPos)
	c.popLoop(loop, afterBodyPos)
}

// compileForeachStatement desugars `foreach (name in iterable) { body }`
// into the equivalent counting while-loop and re-enters Compile on the
// synthesized AST, rather than emitting raw opcodes by hand:
//
//	let __foreach_iterN = iterable
//	let __foreach_idxN = 1
//	while (__foreach_idxN <= len(__foreach_iterN)) {
//	  let name = __foreach_iterN[__foreach_idxN]
//	  body
//	  __foreach_idxN = __foreach_idxN + 1
//	}
//
// This only supports Array iterables: the synthesized loop indexes with
// an integer, which is the Array indexing contract (spec.md §4.8), not
// the Hash one. Compiling a foreach over a Hash does not iterate its
// values: the loop runs len(hash) times and binds name to hash[1],
// hash[2], ..., which is Null for every integer key the hash lacks —
// the bytecode VM has no map-iteration opcode to do better, the
// same kind of VM-side restriction documented for slice expressions.
// The tree-walk evaluator, by contrast, iterates a Hash's values
// directly and has no such gap.
func (c *Compiler) compileForeachStatement(node *ast.ForeachStatement) {
	tok := node.Token
	c.foreachCounter++
	n := c.foreachCounter
	iterName := fmt.Sprintf("__foreach_iter%d", n)
	idxName := fmt.Sprintf("__foreach_idx%d", n)

	ident := func(name string) *ast.Identifier {
		return &ast.Identifier{Token: tok, Value: name}
	}
	intLit := func(v int64) *ast.IntegerLiteral {
		return &ast.IntegerLiteral{Token: tok, Value: v}
	}

	c.Compile(&ast.LetStatement{Token: tok, Name: ident(iterName), Value: node.Iterable})
	c.Compile(&ast.LetStatement{Token: tok, Name: ident(idxName), Value: intLit(1)})

	condition := &ast.InfixExpression{
		Token:    tok,
		Left:     ident(idxName),
		Operator: "<=",
		Right: &ast.CallExpression{
			Token:     tok,
			Function:  ident("len"),
			Arguments: []ast.Expression{ident(iterName)},
		},
	}

	bodyStatements := make([]ast.Statement, 0, len(node.Body.Statements)+2)
	bodyStatements = append(bodyStatements, &ast.LetStatement{
		Token: tok,
		Name:  node.Name,
		Value: &ast.IndexExpression{Token: tok, Left: ident(iterName), Index: ident(idxName)},
	})
	bodyStatements = append(bodyStatements, node.Body.Statements...)
	bodyStatements = append(bodyStatements, &ast.ExpressionStatement{
		Token: tok,
		Expression: &ast.AssignExpression{
			Token: tok,
			Name:  ident(idxName),
			Value: &ast.InfixExpression{Token: tok, Left: ident(idxName), Operator: "+", Right: intLit(1)},
		},
	})

	whileStmt := &ast.WhileStatement{
		Token:     tok,
		Condition: condition,
		Body:      &ast.BlockStatement{Token: tok, Statements: bodyStatements},
	}
	c.Compile(whileStmt)
}

func (c *Compiler) compileForStatement(node *ast.ForStatement) {
	if node.Init != nil {
		c.Compile(node.Init)
	}

	conditionPos := len(c.currentInstructions())
	var jumpNotTruthyPos int
	if node.Condition != nil {
		c.Compile(node.Condition)
		jumpNotTruthyPos = c.emit(code.OpJumpNotTruthy, 9999)
	}

	loop := c.pushLoop(conditionPos)
	c.Compile(node.Body)

	postPos := len(c.currentInstructions())
	if node.Post != nil {
		c.Compile(node.Post)
	}
	c.emit(code.OpJump, conditionPos)

	afterBodyPos := len(c.currentInstructions())
	if node.Condition != nil {
		c.changeOperand(jumpNotTruthyPos, afterBodyPos)
	}
	c.patchContinues(loop, postPos)
	c.popLoop(loop, afterBodyPos)
}

// loopContext tracks the jump-patch positions `break`/`continue` need while
// compiling the body of the loop they appear in.
type loopContext struct {
	conditionPos   int
	breakJumps     []int
	continueJumps  []int
}

func (c *Compiler) pushLoop(conditionPos int) *loopContext {
	loop := &loopContext{conditionPos: conditionPos}
	c.loopStack = append(c.loopStack, loop)
	return loop
}

func (c *Compiler) popLoop(loop *loopContext, breakTarget int) {
	c.loopStack = c.loopStack[:len(c.loopStack)-1]
	for _, pos := range loop.breakJumps {
		c.changeOperand(pos, breakTarget)
	}
}

// patchContinues points every `continue` seen in this loop at target
// (the loop's post-clause, or its condition check for a plain while).
func (c *Compiler) patchContinues(loop *loopContext, target int) {
	for _, pos := range loop.continueJumps {
		c.changeOperand(pos, target)
	}
}

func (c *Compiler) compileBreak(node *ast.BreakStatement) {
	if len(c.loopStack) == 0 {
		c.addError(UnexpectedSymbol, node.Token.Line, node.Token.Column, "break outside of a loop")
		return
	}
	loop := c.loopStack[len(c.loopStack)-1]
	pos := c.emit(code.OpJump, 9999)
	loop.breakJumps = append(loop.breakJumps, pos)
}

func (c *Compiler) compileContinue(node *ast.ContinueStatement) {
	if len(c.loopStack) == 0 {
		c.addError(UnexpectedSymbol, node.Token.Line, node.Token.Column, "continue outside of a loop")
		return
	}
	loop := c.loopStack[len(c.loopStack)-1]
	pos := c.emit(code.OpJump, 9999)
	loop.continueJumps = append(loop.continueJumps, pos)
}

func (c *Compiler) compileFunctionLiteral(node *ast.FunctionLiteral) {
	c.enterScope()

	if node.Name != "" {
		c.symbolTable.DefineFunctionName(node.Name)
	}

	for _, p := range node.Parameters {
		c.symbolTable.Define(p.Value)
	}

	c.Compile(node.Body)

	if c.lastInstructionIs(code.OpPop) {
		c.replaceLastPopWithReturn()
	}
	if !c.lastInstructionIs(code.OpReturnValue) {
		c.emit(code.OpReturnNone)
	}

	freeSymbols := c.symbolTable.FreeSymbols
	numLocals := c.symbolTable.NumDefinitions()
	instructions := c.leaveScope()

	for _, s := range freeSymbols {
		c.loadSymbol(s)
	}

	compiledFn := &object.CompiledFunction{
		Instructions:  instructions,
		NumLocals:     numLocals,
		NumParameters: len(node.Parameters),
	}
	fnIndex := c.addConstant(compiledFn)
	c.emit(code.OpClosure, fnIndex, len(freeSymbols))
}
