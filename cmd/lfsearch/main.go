// Package main provides the entry point for the lfsearch CLI.
package main

import (
	"os"

	"github.com/M6saw0/local-file-search-and-monitoring/cmd/lfsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
