// Package main is the entry point of the shopflow CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/shopflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
