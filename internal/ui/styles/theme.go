// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the chat window.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER AND LABELS
	// ==========================================================================

	Header lipgloss.Style
	Label  lipgloss.Style

	// ==========================================================================
	// CHAT HISTORY
	// ==========================================================================

	History       lipgloss.Style
	UserLine      lipgloss.Style
	AssistantLine lipgloss.Style
	FailedLine    lipgloss.Style

	// ==========================================================================
	// INPUT AND BUTTONS
	// ==========================================================================

	Input         lipgloss.Style
	InputFocused  lipgloss.Style
	Button        lipgloss.Style
	ButtonFocused lipgloss.Style
	ButtonBusy    lipgloss.Style

	// ==========================================================================
	// STATUS BAR
	// ==========================================================================

	StatusBar   lipgloss.Style
	StatusReady lipgloss.Style
	StatusBusy  lipgloss.Style
	StatusError lipgloss.Style
	Spinner     lipgloss.Style
	Help        lipgloss.Style
}

// NewTheme creates a new theme with all styles configured.
func NewTheme() *Theme {
	colorProfile := termenv.ColorProfile()
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Padding(0, 1)

	t.Label = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)

	t.History = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay)

	t.UserLine = lipgloss.NewStyle().Foreground(Cyan)
	t.AssistantLine = lipgloss.NewStyle().Foreground(TextPrimary)
	t.FailedLine = lipgloss.NewStyle().Foreground(Rose).Italic(true)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay)

	t.InputFocused = t.Input.
		BorderForeground(Purple)

	t.Button = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.ButtonFocused = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Purple).
		Bold(true)

	t.ButtonBusy = lipgloss.NewStyle().
		Foreground(TextMuted).
		Faint(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusReady = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.StatusBusy = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
}

// GlamourStyle returns the glamour standard style name matching the
// terminal background.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}
