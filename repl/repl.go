// Package repl implements Ember's interactive Read-Eval-Print Loop,
// grounded on the teacher's repl.Repl (banner, readline-backed prompt,
// colored error/result output) and extended with a `/back` command that
// switches which back end evaluates each line: the tree-walking
// evaluator or the compiler+VM pipeline (see SPEC_FULL.md §6). Each back
// end keeps its own state across lines (the tree-walk environment; the
// VM's symbol table, globals slice and constants pool), so a `let` is
// visible on later lines run by the same back end but not by the other.
// Macro definitions are shared by both.
package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/compiler"
	"github.com/ember-lang/ember/evaluator"
	"github.com/ember-lang/ember/lexer"
	"github.com/ember-lang/ember/object"
	"github.com/ember-lang/ember/parser"
	"github.com/ember-lang/ember/symtable"
	"github.com/ember-lang/ember/vm"
)

// Backend selects which pipeline evaluates a REPL line.
type Backend string

const (
	BackendTree Backend = "tree"
	BackendVM   Backend = "vm"
)

var (
	blueColor   = color.New(color.FgBlue)
	yellowColor = color.New(color.FgYellow)
	redColor    = color.New(color.FgRed)
	greenColor  = color.New(color.FgGreen)
	cyanColor   = color.New(color.FgCyan)
)

const (
	banner = `
  ______           _
 |  ____|         | |
 | |__   _ __ ___ | |__   ___ _ __
 |  __| | '_ ' _ \| '_ \ / _ \ '__|
 | |____| | | | | | |_) |  __/ |
 |______|_| |_| |_|_.__/ \___|_|
`
	line = "----------------------------------------------------------------"
)

// Repl is a configured interactive session. Its zero value is not usable;
// construct one with New.
type Repl struct {
	Version string
	Prompt  string

	backend Backend

	// Tree-walk state, carried across lines.
	env      *object.Environment
	macroEnv *object.Environment
	ev       *evaluator.Evaluator

	// Compiler+VM state, carried across lines the way the teacher's
	// monkey-lang-style REPL threads symbolTable/constants/globals.
	symbolTable *symtable.SymbolTable
	constants   []object.Object
	globals     []object.Object

	historyPath string
}

// New creates a Repl defaulting to the tree-walking back end.
func New(version, prompt string) *Repl {
	symbolTable := symtable.NewGlobal()
	for i, b := range object.Builtins {
		symbolTable.DefineBuiltin(i, b.Name)
	}

	home, err := os.UserHomeDir()
	historyPath := ".ember_history.yaml"
	if err == nil {
		historyPath = filepath.Join(home, ".ember_history.yaml")
	}

	return &Repl{
		Version:     version,
		Prompt:      prompt,
		backend:     BackendTree,
		env:         object.NewEnvironment(),
		macroEnv:    object.NewEnvironment(),
		ev:          evaluator.New(),
		symbolTable: symbolTable,
		constants:   []object.Object{},
		globals:     make([]object.Object, vm.GlobalsSize),
		historyPath: historyPath,
	}
}

func (r *Repl) printBanner(w io.Writer) {
	blueColor.Fprintln(w, line)
	greenColor.Fprintln(w, banner)
	blueColor.Fprintln(w, line)
	yellowColor.Fprintf(w, "Ember %s | back end: %s\n", r.Version, r.backend)
	blueColor.Fprintln(w, line)
	cyanColor.Fprintln(w, "Type an expression and press enter.")
	cyanColor.Fprintln(w, "Commands: /back tree | /back vm | /exit")
	blueColor.Fprintln(w, line)
}

// historyFile is the on-disk shape persisted to ~/.ember_history.yaml.
type historyFile struct {
	Lines []string `yaml:"lines"`
}

func (r *Repl) loadHistory() []string {
	data, err := os.ReadFile(r.historyPath)
	if err != nil {
		return nil
	}
	var hf historyFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return nil
	}
	return hf.Lines
}

func (r *Repl) saveHistory(lines []string) {
	data, err := yaml.Marshal(historyFile{Lines: lines})
	if err != nil {
		return
	}
	_ = os.WriteFile(r.historyPath, data, 0o644)
}

// Start runs the read-eval-print loop against in/out until EOF or /exit.
func (r *Repl) Start(in io.Reader, out io.Writer) {
	r.printBanner(out)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      r.Prompt,
		Stdin:       io.NopCloser(in),
		Stdout:      out,
		HistoryFile: r.historyPath + ".readline",
	})
	if err != nil {
		fmt.Fprintf(out, "could not start line editor: %v\n", err)
		return
	}
	defer rl.Close()

	var history []string
	for _, l := range r.loadHistory() {
		rl.SaveHistory(l)
		history = append(history, l)
	}

	for {
		input, err := rl.Readline()
		if err != nil {
			fmt.Fprintln(out, "Good bye!")
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/exit" {
			fmt.Fprintln(out, "Good bye!")
			break
		}
		if strings.HasPrefix(input, "/back") {
			r.handleBackCommand(out, input)
			continue
		}

		history = append(history, input)
		rl.SaveHistory(input)
		r.saveHistory(history)

		r.evalLine(out, input)
	}
}

func (r *Repl) handleBackCommand(out io.Writer, input string) {
	fields := strings.Fields(input)
	if len(fields) != 2 {
		redColor.Fprintf(out, "usage: /back tree|vm\n")
		return
	}
	switch fields[1] {
	case "tree":
		r.backend = BackendTree
	case "vm":
		r.backend = BackendVM
	default:
		redColor.Fprintf(out, "unknown back end %q (want tree or vm)\n", fields[1])
		return
	}
	cyanColor.Fprintf(out, "switched to %s back end\n", r.backend)
}

func (r *Repl) evalLine(out io.Writer, input string) {
	p := parser.New(lexer.New(input))
	program := p.ParseProgram()
	if len(p.Errors()) != 0 {
		for _, e := range p.Errors() {
			redColor.Fprintf(out, "parse error (%d:%d): %s\n", e.Line, e.Column, e.Message)
		}
		return
	}

	evaluator.DefineMacros(program, r.macroEnv)
	expanded := evaluator.ExpandMacros(program, r.macroEnv)

	switch r.backend {
	case BackendTree:
		r.evalTree(out, expanded)
	case BackendVM:
		r.evalVM(out, expanded)
	}
}

func (r *Repl) evalTree(out io.Writer, node ast.Node) {
	result := r.ev.Eval(node, r.env)
	if err, ok := result.(*object.Error); ok {
		redColor.Fprintln(out, err.Inspect())
		return
	}
	if result != nil && result != object.NULL {
		yellowColor.Fprintln(out, result.Inspect())
	}
}

func (r *Repl) evalVM(out io.Writer, node ast.Node) {
	comp := compiler.NewWithState(r.symbolTable, r.constants)
	comp.Compile(node)
	if errs := comp.Errors(); len(errs) != 0 {
		for _, e := range errs {
			redColor.Fprintf(out, "compile error (%d:%d): %s\n", e.Line, e.Column, e.Message)
		}
		return
	}

	bytecode := comp.Bytecode()
	r.constants = bytecode.Constants

	machine := vm.NewWithGlobalsStore(bytecode, r.globals)
	if err := machine.Run(); err != nil {
		redColor.Fprintf(out, "vm error: %v\n", err)
		return
	}

	result := machine.LastPoppedStackElem()
	if result != nil && result != object.NULL {
		yellowColor.Fprintln(out, result.Inspect())
	}
}
