// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the command-line interface for Keymaster CA using
// Cobra. Every write goes through the same action dispatcher the TUI uses,
// against either the local database or a remote API server.
package cli
