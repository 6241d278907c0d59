// Package main provides the entry point for the eventrouter CLI.
package main

import (
	"fmt"
	"os"

	"github.com/telnet2/eventrouter/cmd/eventrouter/commands"
	"github.com/telnet2/eventrouter/internal/logging"
)

func main() {
	err := commands.Execute()
	logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
