// Package main is the entry point for the corpclaw CLI.
package main

import (
	"os"

	"github.com/CorpClaw/CorpClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
