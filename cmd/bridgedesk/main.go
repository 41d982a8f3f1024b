// Package main is the entry point for the bridgedesk CLI.
package main

import (
	"os"

	"github.com/bridgedesk/bridgedesk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
