package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ember-lang/ember/lexer"
	"github.com/ember-lang/ember/object"
	"github.com/ember-lang/ember/parser"
)

func testEval(t *testing.T, input string) object.Object {
	t.Helper()
	p := parser.New(lexer.New(input))
	program := p.ParseProgram()
	require.Empty(t, p.Errors())

	env := object.NewEnvironment()
	return New().Eval(program, env)
}

func TestEvalIntegerExpression(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"5", 5},
		{"10", 10},
		{"-5", -5},
		{"5 + 5 + 5 - 10", 5},
		{"2 * (5 + 10)", 30},
		{"10 % 3", 1},
		{"5 & 3", 1},
		{"5 | 2", 7},
		{"1 << 4", 16},
	}
	for _, tt := range tests {
		result := testEval(t, tt.input)
		integer, ok := result.(*object.Integer)
		require.True(t, ok, "not an Integer: %T (%+v)", result, result)
		require.Equal(t, tt.expected, integer.Value)
	}
}

func TestEvalFloatExpression(t *testing.T) {
	result := testEval(t, "1.5 + 2.5")
	f, ok := result.(*object.Float)
	require.True(t, ok)
	require.InDelta(t, 4.0, f.Value, 0.0001)
}

func TestDivisionByZero(t *testing.T) {
	result := testEval(t, "1 / 0")
	errObj, ok := result.(*object.Error)
	require.True(t, ok)
	require.Contains(t, errObj.Message, "division by zero")
}

func TestBangOperator(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"!true", false},
		{"!false", true},
		{"!5", false},
		{"!!true", true},
		{"!\"\"", true},
		{"!\"hi\"", false},
	}
	for _, tt := range tests {
		result := testEval(t, tt.input)
		b, ok := result.(*object.Boolean)
		require.True(t, ok)
		require.Equal(t, tt.expected, b.Value)
	}
}

func TestIfElseExpressions(t *testing.T) {
	tests := []struct {
		input    string
		expected interface{}
	}{
		{"if (true) { 10 }", int64(10)},
		{"if (false) { 10 }", nil},
		{"if (1 < 2) { 10 } else { 20 }", int64(10)},
		{"if (1 > 2) { 10 } else { 20 }", int64(20)},
	}
	for _, tt := range tests {
		result := testEval(t, tt.input)
		if want, ok := tt.expected.(int64); ok {
			integer, ok := result.(*object.Integer)
			require.True(t, ok)
			require.Equal(t, want, integer.Value)
		} else {
			require.Equal(t, object.NULL, result)
		}
	}
}

func TestClosures(t *testing.T) {
	input := `
let closureFactory = fn(a) { fn() { a } };
let c = closureFactory(5);
c();
`
	result := testEval(t, input)
	integer, ok := result.(*object.Integer)
	require.True(t, ok)
	require.Equal(t, int64(5), integer.Value)
}

func TestRecursiveFunction(t *testing.T) {
	input := `
let fact = fn(n) { if (n < 2) { 1 } else { n * fact(n - 1) } };
fact(5);
`
	result := testEval(t, input)
	integer, ok := result.(*object.Integer)
	require.True(t, ok)
	require.Equal(t, int64(120), integer.Value)
}

func TestArrayIndexing(t *testing.T) {
	tests := []struct {
		input    string
		expected interface{}
	}{
		{"[1, 2, 3][1]", int64(1)},
		{"[1, 2, 3][3]", int64(3)},
		{"[1, 2, 3][-1]", int64(3)},
		{"[1, 2, 3][0]", "error"},
		{"[1, 2, 3][4]", "error"},
	}
	for _, tt := range tests {
		result := testEval(t, tt.input)
		if want, ok := tt.expected.(int64); ok {
			integer, ok := result.(*object.Integer)
			require.True(t, ok)
			require.Equal(t, want, integer.Value)
		} else {
			_, ok := result.(*object.Error)
			require.True(t, ok, "expected an error, got %T (%+v)", result, result)
		}
	}
}

func TestHashIndexing(t *testing.T) {
	result := testEval(t, `let m = {1: 10, 2: 20}; m[2]`)
	integer, ok := result.(*object.Integer)
	require.True(t, ok)
	require.Equal(t, int64(20), integer.Value)

	missing := testEval(t, `let m = {1: 10}; m[99]`)
	require.Equal(t, object.NULL, missing)
}

func TestSliceExpression(t *testing.T) {
	result := testEval(t, `[1, 2, 3, 4][1:3]`)
	arr, ok := result.(*object.Array)
	require.True(t, ok)
	require.Len(t, arr.Elements, 2)
}

func TestWhileLoop(t *testing.T) {
	input := `
let i = 0;
let sum = 0;
while (i < 5) {
  sum = sum + i;
  i = i + 1;
}
sum;
`
	result := testEval(t, input)
	integer, ok := result.(*object.Integer)
	require.True(t, ok)
	require.Equal(t, int64(10), integer.Value)
}

func TestForLoopWithBreakAndContinue(t *testing.T) {
	input := `
let sum = 0;
for (let i = 0; i < 10; i = i + 1) {
  if (i == 5) { break; }
  if (i % 2 == 0) { continue; }
  sum = sum + i;
}
sum;
`
	result := testEval(t, input)
	integer, ok := result.(*object.Integer)
	require.True(t, ok)
	require.Equal(t, int64(4), integer.Value) // 1 + 3
}

func TestForeachLoop(t *testing.T) {
	input := `
let sum = 0;
foreach (x in [1, 2, 3, 4]) {
  sum = sum + x;
}
sum;
`
	result := testEval(t, input)
	integer, ok := result.(*object.Integer)
	require.True(t, ok)
	require.Equal(t, int64(10), integer.Value)
}

func TestBuiltinFunctions(t *testing.T) {
	tests := []struct {
		input    string
		expected interface{}
	}{
		{`len("hello")`, int64(5)},
		{`len([1, 2, 3])`, int64(3)},
		{`len(1)`, "error"},
		{`first([1, 2, 3])`, int64(1)},
		{`last([1, 2, 3])`, int64(3)},
		{`len(rest([1, 2, 3]))`, int64(2)},
		{`len(push([1, 2], 3))`, int64(3)},
	}
	for _, tt := range tests {
		result := testEval(t, tt.input)
		if want, ok := tt.expected.(int64); ok {
			integer, ok := result.(*object.Integer)
			require.True(t, ok, "not Integer for %q: %T", tt.input, result)
			require.Equal(t, want, integer.Value)
		} else {
			_, ok := result.(*object.Error)
			require.True(t, ok, "expected error for %q, got %T", tt.input, result)
		}
	}
}

func TestErrorHandling(t *testing.T) {
	tests := []string{
		"5 + true;",
		`foobar;`,
		`fn(a) { a }(1, 2);`,
	}
	for _, input := range tests {
		result := testEval(t, input)
		_, ok := result.(*object.Error)
		require.True(t, ok, "expected an Error for %q, got %T (%+v)", input, result, result)
	}
}

func TestQuoteUnquote(t *testing.T) {
	result := testEval(t, `quote(4 + unquote(2 + 2))`)
	quote, ok := result.(*object.Quote)
	require.True(t, ok)
	require.Equal(t, "(4 + 4)", quote.Node.String())
}

func TestMacroExpansion(t *testing.T) {
	input := `
let unless = macro(condition, consequence, alternative) {
  quote(if (!(unquote(condition))) { unquote(consequence); } else { unquote(alternative); });
};

unless(10 > 5, puts("not greater"), puts("greater"));
`
	p := parser.New(lexer.New(input))
	program := p.ParseProgram()
	require.Empty(t, p.Errors())

	macroEnv := object.NewEnvironment()
	DefineMacros(program, macroEnv)
	expanded := ExpandMacros(program, macroEnv)

	require.Contains(t, expanded.String(), "if")
	require.NotContains(t, expanded.String(), "unless(")
}
