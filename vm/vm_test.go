package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/compiler"
	"github.com/ember-lang/ember/lexer"
	"github.com/ember-lang/ember/object"
	"github.com/ember-lang/ember/parser"
)

func parse(input string) *ast.Program {
	p := parser.New(lexer.New(input))
	return p.ParseProgram()
}

type vmTestCase struct {
	input    string
	expected interface{}
}

func runVmTests(t *testing.T, tests []vmTestCase) {
	t.Helper()
	for _, tt := range tests {
		program := parse(tt.input)

		comp := compiler.New()
		comp.Compile(program)
		require.Empty(t, comp.Errors(), "input %q", tt.input)

		machine := New(comp.Bytecode())
		err := machine.Run()
		require.NoError(t, err, "input %q", tt.input)

		testExpectedObject(t, tt.input, tt.expected, machine.LastPoppedStackElem())
	}
}

func testExpectedObject(t *testing.T, input string, expected interface{}, actual object.Object) {
	t.Helper()
	switch expected := expected.(type) {
	case int:
		integer, ok := actual.(*object.Integer)
		require.True(t, ok, "input %q: got %T", input, actual)
		require.Equal(t, int64(expected), integer.Value)
	case float64:
		f, ok := actual.(*object.Float)
		require.True(t, ok, "input %q: got %T", input, actual)
		require.InDelta(t, expected, f.Value, 0.0001)
	case bool:
		b, ok := actual.(*object.Boolean)
		require.True(t, ok, "input %q: got %T", input, actual)
		require.Equal(t, expected, b.Value)
	case string:
		s, ok := actual.(*object.String)
		require.True(t, ok, "input %q: got %T", input, actual)
		require.Equal(t, expected, s.Value)
	case []int:
		arr, ok := actual.(*object.Array)
		require.True(t, ok, "input %q: got %T", input, actual)
		require.Len(t, arr.Elements, len(expected))
		for i, e := range expected {
			testExpectedObject(t, input, e, arr.Elements[i])
		}
	case *object.Null:
		require.Equal(t, object.NULL, actual, "input %q", input)
	}
}

func TestIntegerArithmetic(t *testing.T) {
	tests := []vmTestCase{
		{"1", 1},
		{"2", 2},
		{"1 + 2", 3},
		{"1 - 2", -1},
		{"1 * 2", 2},
		{"4 / 2", 2},
		{"7 % 3", 1},
		{"50 / 2 * 2 + 10 - 5", 55},
		{"5 * (2 + 10)", 60},
		{"-5", -5},
		{"-10 + 100 + -100", -10},
		{"5 & 3", 1},
		{"5 | 2", 7},
		{"5 ^ 1", 4},
		{"~0", -1},
		{"1 << 4", 16},
		{"256 >> 4", 16},
	}
	runVmTests(t, tests)
}

func TestFloatArithmetic(t *testing.T) {
	tests := []vmTestCase{
		{"1.5 + 2.5", 4.0},
		{"1.5 * 2.0", 3.0},
		{"5 / 2.0", 2.5},
	}
	runVmTests(t, tests)
}

func TestBooleanExpressions(t *testing.T) {
	tests := []vmTestCase{
		{"true", true},
		{"false", false},
		{"1 < 2", true},
		{"1 > 2", false},
		{"1 <= 1", true},
		{"1 >= 2", false},
		{"1 == 1", true},
		{"1 != 1", false},
		{"true == true", true},
		{"true == false", false},
		{"!true", false},
		{"!false", true},
		{"!5", false},
		{"!!5", true},
		{"true && false", false},
		{"true || false", true},
	}
	runVmTests(t, tests)
}

func TestStringExpressions(t *testing.T) {
	tests := []vmTestCase{
		{`"mon" + "key"`, "monkey"},
		{`"ab" * 3`, "ababab"},
	}
	runVmTests(t, tests)
}

func TestConditionals(t *testing.T) {
	tests := []vmTestCase{
		{"if (true) { 10 }", 10},
		{"if (true) { 10 } else { 20 }", 10},
		{"if (false) { 10 } else { 20 }", 20},
		{"if (1 < 2) { 10 }", 10},
		{"if (1 > 2) { 10 }", object.NULL},
		{"if (false) { 10 }", object.NULL},
	}
	runVmTests(t, tests)
}

func TestGlobalLetStatements(t *testing.T) {
	tests := []vmTestCase{
		{"let one = 1; one", 1},
		{"let one = 1; let two = one + one; one + two", 3},
	}
	runVmTests(t, tests)
}

func TestAssignExpression(t *testing.T) {
	tests := []vmTestCase{
		{"let x = 1; x = 2; x", 2},
		{"let x = 1; x += 4; x", 5},
	}
	runVmTests(t, tests)
}

func TestArrayLiterals(t *testing.T) {
	tests := []vmTestCase{
		{"[]", []int{}},
		{"[1, 2, 3]", []int{1, 2, 3}},
		{"[1 + 2, 3 * 4, 5 + 6]", []int{3, 12, 11}},
	}
	runVmTests(t, tests)
}

func TestIndexExpressions(t *testing.T) {
	tests := []vmTestCase{
		{"[1, 2, 3][1]", 1},
		{"[1, 2, 3][3]", 3},
		{"[1, 2, 3][-1]", 3},
		{"[1, 2, 3][0]", object.NULL},
		{"[1, 2, 3][4]", object.NULL},
		{"{1: 2}[1]", 2},
		{"{1: 2}[2]", object.NULL},
	}
	runVmTests(t, tests)
}

func TestCallingFunctions(t *testing.T) {
	tests := []vmTestCase{
		{
			`let fivePlusTen = fn() { 5 + 10; }; fivePlusTen();`,
			15,
		},
		{
			`let earlyExit = fn() { return 99; 100; }; earlyExit();`,
			99,
		},
		{
			`let noReturn = fn() { }; noReturn();`,
			object.NULL,
		},
		{
			`
			let identity = fn(a) { a; };
			identity(4);
			`,
			4,
		},
		{
			`
			let sum = fn(a, b) { a + b; };
			sum(1, 2);
			`,
			3,
		},
		{
			`
			let globalSeed = 50;
			let minusOne = fn() {
				let num = 1;
				globalSeed - num;
			};
			let minusTwo = fn() {
				let num = 2;
				globalSeed - num;
			};
			minusOne() + minusTwo();
			`,
			97,
		},
	}
	runVmTests(t, tests)
}

func TestClosures(t *testing.T) {
	tests := []vmTestCase{
		{
			`
			let newAdder = fn(a, b) {
				fn(c) { a + b + c };
			};
			let adder = newAdder(1, 2);
			adder(8);
			`,
			11,
		},
		{
			`
			let newClosure = fn(a) {
				fn() { a; };
			};
			let closure = newClosure(99);
			closure();
			`,
			99,
		},
	}
	runVmTests(t, tests)
}

func TestRecursiveFunctions(t *testing.T) {
	tests := []vmTestCase{
		{
			`
			let countDown = fn(x) {
				if (x == 0) {
					return 0;
				} else {
					countDown(x - 1);
				}
			};
			countDown(5);
			`,
			0,
		},
		{
			`
			let wrapper = fn() {
				let countDown = fn(x) {
					if (x == 0) {
						return 0;
					} else {
						countDown(x - 1);
					}
				};
				countDown(1);
			};
			wrapper();
			`,
			0,
		},
	}
	runVmTests(t, tests)
}

func TestBuiltinFunctions(t *testing.T) {
	tests := []vmTestCase{
		{`len("")`, 0},
		{`len("four")`, 4},
		{`len([1, 2, 3])`, 3},
		{`len([])`, 0},
		{`first([1, 2, 3])`, 1},
		{`last([1, 2, 3])`, 3},
		{`rest([1, 2, 3])`, []int{2, 3}},
		{`push([1, 2], 3)`, []int{1, 2, 3}},
	}
	runVmTests(t, tests)
}

func TestWhileLoop(t *testing.T) {
	tests := []vmTestCase{
		{
			`
			let i = 0;
			let sum = 0;
			while (i < 5) {
				sum = sum + i;
				i = i + 1;
			}
			sum;
			`,
			10,
		},
		{
			`
			let i = 0;
			let sum = 0;
			while (i < 10) {
				i = i + 1;
				if (i > 5) {
					break;
				}
				sum = sum + i;
			}
			sum;
			`,
			15,
		},
	}
	runVmTests(t, tests)
}

func TestForLoop(t *testing.T) {
	tests := []vmTestCase{
		{
			`
			let sum = 0;
			for (let i = 0; i < 5; i = i + 1) {
				sum = sum + i;
			}
			sum;
			`,
			10,
		},
		{
			`
			let sum = 0;
			for (let i = 0; i < 10; i = i + 1) {
				if (i == 3) {
					continue;
				}
				sum = sum + i;
			}
			sum;
			`,
			42,
		},
	}
	runVmTests(t, tests)
}

func TestVmErrors(t *testing.T) {
	tests := []struct {
		input string
	}{
		{"5 / 0"},
		{"fn(a) { a }(1, 2)"},
		{"1 + true"},
	}

	for _, tt := range tests {
		program := parse(tt.input)
		comp := compiler.New()
		comp.Compile(program)
		require.Empty(t, comp.Errors(), "input %q", tt.input)

		machine := New(comp.Bytecode())
		err := machine.Run()
		require.Error(t, err, "input %q", tt.input)
	}
}
