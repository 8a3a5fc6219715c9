// Package main is the entry point for the ember CLI binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.1.0"

// newRootCmd builds the ember command tree (SPEC_FULL.md §6): repl, run,
// compile, disasm, and serve, following the teacher's cobra.Command-per-file
// layout (root.go wires subcommands built by newXCmd in their own files).
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ember",
		Short:   "Ember - a small dynamically-typed scripting language",
		Version: version,
		Long: `Ember is a small dynamically-typed scripting language with two
interchangeable back ends: a tree-walking evaluator and a compiler+bytecode
VM pipeline, sharing one runtime value system.`,
	}

	cmd.AddCommand(newReplCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCompileCmd())
	cmd.AddCommand(newDisasmCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
