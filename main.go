// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Keymaster CA.
//
// Usage:
//
//	go run . [flags]
//	./keymaster-ca [flags]
//
// Without a subcommand the interactive TUI starts. See --help for options.
package main

import (
	"os"

	"github.com/toeirei/keymaster-ca/internal/logging"
	"github.com/toeirei/keymaster-ca/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logging.Errorf("Keymaster CA error: %v", err)
		os.Exit(1)
	}
}
