// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package authority

import "github.com/charmbracelet/lipgloss"

const (
	colorSubtle    = lipgloss.Color("240") // Muted gray
	colorHighlight = lipgloss.Color("81")  // Teal
	colorSpecial   = lipgloss.Color("208") // Orange
	colorError     = lipgloss.Color("196") // Red
	colorSuccess   = lipgloss.Color("40")  // Green
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(0, 1).
			MarginBottom(1)
	focusedCardStyle = cardStyle.BorderForeground(colorHighlight)

	titleStyle    = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true)
	labelStyle    = lipgloss.NewStyle().Width(22).Foreground(colorSubtle)
	cursorStyle   = lipgloss.NewStyle().Foreground(colorHighlight)
	helpStyle     = lipgloss.NewStyle().Foreground(colorSubtle)
	warnStyle     = lipgloss.NewStyle().Foreground(colorSpecial)
	errorStyle    = lipgloss.NewStyle().Foreground(colorError)
	successStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	busyStyle     = lipgloss.NewStyle().Foreground(colorSpecial).Italic(true)
	readOnlyStyle = lipgloss.NewStyle().Foreground(colorSubtle)

	tagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("25")).
			Padding(0, 1)
	selectedTagStyle = tagStyle.Background(colorHighlight).Foreground(lipgloss.Color("0"))

	saveBarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(colorSubtle)
)
