// Package main provides the entry point for the indexmirror CLI.
package main

import (
	"os"

	"github.com/meridianhq/indexmirror/cmd/indexmirror/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
