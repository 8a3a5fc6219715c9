package symtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefine(t *testing.T) {
	expected := map[string]Symbol{
		"a": {Name: "a", Scope: GlobalScope, Index: 0},
		"b": {Name: "b", Scope: GlobalScope, Index: 1},
		"c": {Name: "c", Scope: LocalScope, Index: 0},
		"d": {Name: "d", Scope: LocalScope, Index: 1},
		"e": {Name: "e", Scope: LocalScope, Index: 0},
		"f": {Name: "f", Scope: LocalScope, Index: 1},
	}

	global := NewGlobal()
	require.Equal(t, expected["a"], global.Define("a"))
	require.Equal(t, expected["b"], global.Define("b"))

	firstLocal := NewEnclosed(global)
	require.Equal(t, expected["c"], firstLocal.Define("c"))
	require.Equal(t, expected["d"], firstLocal.Define("d"))

	secondLocal := NewEnclosed(firstLocal)
	require.Equal(t, expected["e"], secondLocal.Define("e"))
	require.Equal(t, expected["f"], secondLocal.Define("f"))
}

func TestResolveGlobal(t *testing.T) {
	global := NewGlobal()
	global.Define("a")
	global.Define("b")

	for _, sym := range []Symbol{
		{Name: "a", Scope: GlobalScope, Index: 0},
		{Name: "b", Scope: GlobalScope, Index: 1},
	} {
		got, ok := global.Resolve(sym.Name)
		require.True(t, ok)
		require.Equal(t, sym, got)
	}
}

func TestResolveLocal(t *testing.T) {
	global := NewGlobal()
	global.Define("a")
	global.Define("b")

	local := NewEnclosed(global)
	local.Define("c")
	local.Define("d")

	for _, sym := range []Symbol{
		{Name: "a", Scope: GlobalScope, Index: 0},
		{Name: "b", Scope: GlobalScope, Index: 1},
		{Name: "c", Scope: LocalScope, Index: 0},
		{Name: "d", Scope: LocalScope, Index: 1},
	} {
		got, ok := local.Resolve(sym.Name)
		require.True(t, ok)
		require.Equal(t, sym, got)
	}
}

func TestResolveNestedLocal(t *testing.T) {
	global := NewGlobal()
	global.Define("a")
	global.Define("b")

	firstLocal := NewEnclosed(global)
	firstLocal.Define("c")
	firstLocal.Define("d")

	secondLocal := NewEnclosed(firstLocal)
	secondLocal.Define("e")
	secondLocal.Define("f")

	tests := []struct {
		table    *SymbolTable
		expected []Symbol
	}{
		{
			firstLocal,
			[]Symbol{
				{Name: "a", Scope: GlobalScope, Index: 0},
				{Name: "b", Scope: GlobalScope, Index: 1},
				{Name: "c", Scope: LocalScope, Index: 0},
				{Name: "d", Scope: LocalScope, Index: 1},
			},
		},
		{
			secondLocal,
			[]Symbol{
				{Name: "a", Scope: GlobalScope, Index: 0},
				{Name: "b", Scope: GlobalScope, Index: 1},
				{Name: "e", Scope: LocalScope, Index: 0},
				{Name: "f", Scope: LocalScope, Index: 1},
			},
		},
	}

	for _, tt := range tests {
		for _, sym := range tt.expected {
			got, ok := tt.table.Resolve(sym.Name)
			require.True(t, ok)
			require.Equal(t, sym, got)
		}
	}
}

func TestDefineResolveBuiltins(t *testing.T) {
	global := NewGlobal()
	firstLocal := NewEnclosed(global)
	secondLocal := NewEnclosed(firstLocal)

	expected := []Symbol{
		{Name: "a", Scope: BuiltinScope, Index: 0},
		{Name: "c", Scope: BuiltinScope, Index: 1},
		{Name: "e", Scope: BuiltinScope, Index: 2},
		{Name: "f", Scope: BuiltinScope, Index: 3},
	}

	for i, sym := range expected {
		global.DefineBuiltin(i, sym.Name)
	}

	for _, table := range []*SymbolTable{global, firstLocal, secondLocal} {
		for _, sym := range expected {
			got, ok := table.Resolve(sym.Name)
			require.True(t, ok)
			require.Equal(t, sym, got)
		}
	}
}

func TestResolveFree(t *testing.T) {
	global := NewGlobal()
	global.Define("a")
	global.Define("b")

	firstLocal := NewEnclosed(global)
	firstLocal.Define("c")
	firstLocal.Define("d")

	secondLocal := NewEnclosed(firstLocal)
	secondLocal.Define("e")
	secondLocal.Define("f")

	tests := []struct {
		table       *SymbolTable
		expected    []Symbol
		expectedFree []Symbol
	}{
		{
			firstLocal,
			[]Symbol{
				{Name: "a", Scope: GlobalScope, Index: 0},
				{Name: "b", Scope: GlobalScope, Index: 1},
				{Name: "c", Scope: LocalScope, Index: 0},
				{Name: "d", Scope: LocalScope, Index: 1},
			},
			[]Symbol{},
		},
		{
			secondLocal,
			[]Symbol{
				{Name: "a", Scope: GlobalScope, Index: 0},
				{Name: "b", Scope: GlobalScope, Index: 1},
				{Name: "c", Scope: FreeScope, Index: 0},
				{Name: "d", Scope: FreeScope, Index: 1},
				{Name: "e", Scope: LocalScope, Index: 0},
				{Name: "f", Scope: LocalScope, Index: 1},
			},
			[]Symbol{
				{Name: "c", Scope: LocalScope, Index: 0},
				{Name: "d", Scope: LocalScope, Index: 1},
			},
		},
	}

	for _, tt := range tests {
		for _, sym := range tt.expected {
			got, ok := tt.table.Resolve(sym.Name)
			require.True(t, ok)
			require.Equal(t, sym, got)
		}
		require.Equal(t, tt.expectedFree, tt.table.FreeSymbols)
	}
}

func TestResolveUnresolvableFree(t *testing.T) {
	global := NewGlobal()
	global.Define("a")

	firstLocal := NewEnclosed(global)
	firstLocal.Define("c")

	secondLocal := NewEnclosed(firstLocal)
	secondLocal.Define("e")
	secondLocal.Define("f")

	expected := []Symbol{
		{Name: "a", Scope: GlobalScope, Index: 0},
		{Name: "c", Scope: FreeScope, Index: 0},
		{Name: "e", Scope: LocalScope, Index: 0},
		{Name: "f", Scope: LocalScope, Index: 1},
	}

	for _, sym := range expected {
		got, ok := secondLocal.Resolve(sym.Name)
		require.True(t, ok)
		require.Equal(t, sym, got)
	}

	for _, name := range []string{"b", "d"} {
		_, ok := secondLocal.Resolve(name)
		require.False(t, ok)
	}
}

func TestDefineAndResolveFunctionName(t *testing.T) {
	global := NewGlobal()
	global.DefineFunctionName("a")

	expected := Symbol{Name: "a", Scope: FunctionScope, Index: 0}
	got, ok := global.Resolve("a")
	require.True(t, ok)
	require.Equal(t, expected, got)
}

func TestShadowingFunctionName(t *testing.T) {
	global := NewGlobal()
	global.DefineFunctionName("a")
	global.Define("a")

	expected := Symbol{Name: "a", Scope: GlobalScope, Index: 0}
	got, ok := global.Resolve("a")
	require.True(t, ok)
	require.Equal(t, expected, got)
}
