package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ember-lang/ember/repl"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive Ember session",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := repl.New(version, "ember >> ")
			r.Start(os.Stdin, os.Stdout)
			return nil
		},
	}
}
