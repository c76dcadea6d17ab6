// Package main provides the entry point for the agentctl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/agentctl/agentctl/cmd/agentctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
