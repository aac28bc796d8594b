// Command memoryd is the embedded hybrid memory-and-code retrieval server
// (spec.md overview): a long-lived process exposing a line-delimited
// JSON-RPC-like stdio protocol (spec.md §6), plus CLI utilities for
// indexing a project and inspecting its state without starting the server.
package main

import (
	"fmt"
	"os"

	"github.com/amanmcp-labs/memoryd/cmd/memoryd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
