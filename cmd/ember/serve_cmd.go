package main

import (
	"fmt"
	"net"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ember-lang/ember/repl"
)

// newServeCmd mirrors the teacher's `go-mix server <port>` mode: each
// accepted connection gets its own goroutine and its own Repl instance, so
// clients never share evaluator/VM state (SPEC_FULL.md §5's
// one-goroutine-per-connection, no-shared-memory server model).
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve <addr>",
		Short: "Run an Ember REPL server; one independent session per connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(args[0])
		},
	}
}

func serve(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return oops.Code("SERVER_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	defer listener.Close()

	fmt.Printf("ember REPL server listening on %s\n", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "accept error: %v\n", err)
			continue
		}
		go handleConn(conn)
	}
}

func handleConn(conn net.Conn) {
	defer conn.Close()
	fmt.Printf("client connected: %s\n", conn.RemoteAddr())
	r := repl.New(version, "ember >> ")
	r.Start(conn, conn)
	fmt.Printf("client disconnected: %s\n", conn.RemoteAddr())
}
