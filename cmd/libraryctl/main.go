// Package main provides the entry point for the libraryctl CLI.
package main

import (
	"os"

	"github.com/libraryengine/stacks/cmd/libraryctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
