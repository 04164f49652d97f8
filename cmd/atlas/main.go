// Package main provides the atlas command.
package main

import (
	"os"

	"github.com/leapstack-labs/atlas/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
