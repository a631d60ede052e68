// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ClaytonHin/localchat/internal/ui/styles"
)

// newRenderer binds line-mode styles to the detected color profile. The
// window does its own detection through styles.NewTheme.
func newRenderer() *lipgloss.Renderer {
	r := lipgloss.DefaultRenderer()
	r.SetColorProfile(GetColorProfile())
	return r
}

// lineStyles are the styles used by the REPL.
type lineStyles struct {
	title     lipgloss.Style
	dim       lipgloss.Style
	prompt    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	failed    lipgloss.Style
}

func newLineStyles(r *lipgloss.Renderer) lineStyles {
	return lineStyles{
		title:     r.NewStyle().Bold(true).Foreground(styles.Cyan),
		dim:       r.NewStyle().Foreground(styles.TextMuted),
		prompt:    r.NewStyle().Foreground(styles.Cyan).Bold(true),
		user:      r.NewStyle().Foreground(styles.Cyan),
		assistant: r.NewStyle().Foreground(styles.TextPrimary),
		failed:    r.NewStyle().Foreground(styles.Rose).Italic(true),
	}
}
