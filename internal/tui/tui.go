// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// package tui provides the terminal user interface for Keymaster CA.
// This file, tui.go, is the entry point for the TUI. The top-level model is
// the authority list, which owns one detail card per authority.
package tui // import "github.com/toeirei/keymaster-ca/internal/tui"

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/toeirei/keymaster-ca/internal/actions"
	"github.com/toeirei/keymaster-ca/internal/logging"
)

// Options configures a TUI session.
type Options struct {
	// PublicURL is the base of the public key download links.
	PublicURL string
	// MessageTTL is how long the saved banner stays up. Zero uses the card default.
	MessageTTL time.Duration
	// AltScreen runs the program in the terminal's alternate screen.
	AltScreen bool
}

// Run is the main entrypoint for the TUI. It blocks until the user quits.
func Run(disp *actions.Dispatcher, opts Options) error {
	m := newAuthoritiesModel(disp, opts)
	defer m.Close()

	var progOpts []tea.ProgramOption
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	if _, err := tea.NewProgram(m, progOpts...).Run(); err != nil {
		logging.Errorf("TUI run error: %v", err)
		return err
	}
	return nil
}
