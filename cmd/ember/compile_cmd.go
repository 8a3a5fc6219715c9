package main

import (
	"crypto/rand"
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

func newCompileCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile an Ember source file to a bytecode archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			out := outPath
			if out == "" {
				out = strings.TrimSuffix(in, ".ember") + ".emberc"
			}
			return compileFile(in, out)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output archive path (default: <input> with .emberc extension)")
	return cmd
}

func compileFile(inPath, outPath string) error {
	source, err := os.ReadFile(inPath)
	if err != nil {
		return oops.Code("FILE_READ_FAILED").With("path", inPath).Wrap(err)
	}

	p := parser.New(lexer.New(string(source)))
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) != 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "parse error (%d:%d): %s\n", e.Line, e.Column, e.Message)
		}
		return oops.Code("PARSE_FAILED").Errorf("%d parse error(s) in %s", len(errs), inPath)
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

	f, err := os.Create(outPath)
	if err != nil {
		return oops.Code("ARCHIVE_CREATE_FAILED").With("path", outPath).Wrap(err)
	}
	defer f.Close()

	buildID, err := archive.Write(f, comp.Bytecode(), rand.Reader)
	if err != nil {
		return oops.Code("ARCHIVE_WRITE_FAILED").Wrap(err)
	}

	fmt.Printf("wrote %s (build %s)\n", outPath, buildID)
	return nil
}
