// Package main provides the entry point for the agentboard CLI.
package main

import (
	"os"

	"github.com/agentboard/agentboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
