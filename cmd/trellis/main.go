// Package main provides the entry point for the trellis CLI.
package main

import (
	"os"

	"github.com/trellis-io/trellis/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
