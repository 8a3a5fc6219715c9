package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ember-lang/ember/ast"
	"github.com/ember-lang/ember/compiler"
	"github.com/ember-lang/ember/evaluator"
	"github.com/ember-lang/ember/internal/metrics"
	"github.com/ember-lang/ember/lexer"
	"github.com/ember-lang/ember/object"
	"github.com/ember-lang/ember/parser"
	"github.com/ember-lang/ember/vm"
)

func newRunCmd() *cobra.Command {
	var (
		backend     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute an Ember source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0], backend, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&backend, "back", "vm", "execution back end: vm or tree")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve VM execution counters on this address (e.g. :9400) after running")

	return cmd
}

func runFile(path, backend, metricsAddr string) error {
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

	switch backend {
	case "tree":
		env := object.NewEnvironment()
		result := evaluator.New().Eval(expanded, env)
		if errObj, ok := result.(*object.Error); ok {
			return oops.Code("EVAL_FAILED").Errorf("%s", errObj.Inspect())
		}
		return nil

	case "vm":
		return runVM(expanded, metricsAddr)

	default:
		return oops.Code("BAD_FLAG").Errorf("unknown --back %q (want vm or tree)", backend)
	}
}

func runVM(node ast.Node, metricsAddr string) error {
	comp := compiler.New()
	comp.Compile(node)
	if errs := comp.Errors(); len(errs) != 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "compile error (%d:%d): %s\n", e.Line, e.Column, e.Message)
		}
		return oops.Code("COMPILE_FAILED").Errorf("%d compile error(s)", len(errs))
	}

	machine := vm.New(comp.Bytecode())

	var collector *metrics.VMCollector
	var server *metrics.Server
	if metricsAddr != "" {
		collector = metrics.NewVMCollector()
		machine.SetMetrics(collector)
		server = metrics.NewServer(metricsAddr, collector)
		if err := server.Start(); err != nil {
			return oops.Code("METRICS_SERVER_FAILED").Wrap(err)
		}
		fmt.Printf("serving VM metrics on %s/metrics\n", metricsAddr)
	}

	if err := machine.Run(); err != nil {
		return oops.Code("VM_RUN_FAILED").Wrap(err)
	}

	if collector != nil {
		fmt.Printf("max stack depth: %d\n", collector.MaxStackDepthSeen())
		fmt.Println("press Ctrl+C to stop the metrics server")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
	}

	return nil
}
