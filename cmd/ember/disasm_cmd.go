package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ember-lang/ember/archive"
	"github.com/ember-lang/ember/compiler"
	"github.com/ember-lang/ember/evaluator"
	"github.com/ember-lang/ember/lexer"
	"github.com/ember-lang/ember/object"
	"github.com/ember-lang/ember/parser"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file>",
		Short: "Print the bytecode disassembly of an .ember source file or .emberc archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disasm(args[0])
		},
	}
}

func disasm(path string) error {
	if strings.HasSuffix(path, ".emberc") {
		return disasmArchive(path)
	}
	return disasmSource(path)
}

func disasmArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return oops.Code("FILE_READ_FAILED").With("path", path).Wrap(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return oops.Code("FILE_STAT_FAILED").With("path", path).Wrap(err)
	}

	bundle, err := archive.Read(f, info.Size())
	if err != nil {
		return oops.Code("ARCHIVE_READ_FAILED").Wrap(err)
	}

	fmt.Printf("; build %s\n", bundle.BuildID)
	fmt.Print(bundle.Bytecode.Instructions.String())
	return nil
}

func disasmSource(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return oops.Code("FILE_READ_FAILED").With("path", path).Wrap(err)
	}

	p := parser.New(lexer.New(string(source)))
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) != 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "parse error (%d:%d): %s\n", e.Line, e.Column, e.Message)
		}
		return oops.Code("PARSE_FAILED").Errorf("%d parse error(s) in %s", len(errs), path)
	}

	macroEnv := object.NewEnvironment()
	evaluator.DefineMacros(program, macroEnv)
	expanded := evaluator.ExpandMacros(program, macroEnv)

	comp := compiler.New()
	comp.Compile(expanded)
	if errs := comp.Errors(); len(errs) != 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "compile error (%d:%d): %s\n", e.Line, e.Column, e.Message)
		}
		return oops.Code("COMPILE_FAILED").Errorf("%d compile error(s)", len(errs))
	}

	fmt.Print(comp.Bytecode().Instructions.String())
	return nil
}
