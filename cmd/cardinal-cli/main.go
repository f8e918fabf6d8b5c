// Package main provides the entry point for cardinal-cli.
//
// cardinal-cli is a command-line client for cardinal-server.
package main

import (
	"fmt"
	"os"

	"github.com/cardinalkv/cardinal/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
