// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ClaytonHin/localchat/internal/model"
	"github.com/ClaytonHin/localchat/internal/util"
)

const failedPrefix = "(generation failed:"

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	l := m.layout
	inputBox := m.theme.Input
	if m.focus == focusInput {
		inputBox = m.theme.InputFocused
	}

	rows := []string{
		m.theme.Header.Render(util.TruncateWidth(m.opts.Title, m.width-2)),
		m.theme.Label.Render("Chat History:"),
		m.theme.History.Render(m.viewport.View()),
		m.theme.Label.Render("Input:"),
		inputBox.Width(l.innerWidth).Render(m.input.View()),
		m.renderButtons(),
		m.renderStatus(),
	}
	return strings.Join(rows, "\n")
}

// renderHistory renders the conversation log for the viewport.
func (m Model) renderHistory() string {
	log := m.ctrl.Log()
	if log.Len() == 0 {
		return ""
	}

	if m.markdown != nil {
		if out, err := m.markdown.Render(log.String()); err == nil {
			return strings.Trim(out, "\n")
		}
	}

	segments := log.Segments()
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		style := m.theme.AssistantLine
		switch {
		case seg.Role == model.RoleUser:
			style = m.theme.UserLine
		case strings.HasPrefix(seg.Content, failedPrefix):
			style = m.theme.FailedLine
		}
		text := strings.TrimRight(seg.Text, "\n")
		parts = append(parts, style.Width(m.layout.innerWidth).Render(text))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderButtons() string {
	l := m.layout
	send := m.buttonStyle(focusSend).Render(sendLabel)
	exit := m.buttonStyle(focusExit).Render(exitLabel)

	row := strings.Repeat(" ", l.send.from) + send +
		strings.Repeat(" ", l.exit.from-l.send.to) + exit

	room := m.width - l.exit.to - 3
	if helpText := m.help.ShortHelpView(m.keys.ShortHelp()); room > 0 && lipgloss.Width(helpText) <= room {
		row += "   " + m.theme.Help.Render(helpText)
	}
	return row
}

func (m Model) buttonStyle(f focus) lipgloss.Style {
	switch {
	case f == focusSend && m.ctrl.Busy():
		return m.theme.ButtonBusy
	case m.focus == f:
		return m.theme.ButtonFocused
	default:
		return m.theme.Button
	}
}

func (m Model) renderStatus() string {
	width := m.width - 2
	if width < 1 {
		width = 1
	}

	var left string
	style := m.theme.StatusReady
	switch {
	case m.ctrl.Busy():
		left = m.spinner.View() + " generating..."
		style = m.theme.StatusBusy
	case m.lastErr != nil:
		left = "error: " + util.FirstLine(m.lastErr.Error())
		style = m.theme.StatusError
	default:
		left = "ready"
	}

	right := m.opts.ModelName
	if m.last != nil && m.last.TokensPerSecond() > 0 {
		right = strings.TrimSpace(fmt.Sprintf("%s  %d tok  %.1f tok/s", right, m.last.CompletionTokens, m.last.TokensPerSecond()))
	}

	rightWidth := util.StringWidth(right)
	if rightWidth+2 > width {
		right, rightWidth = "", 0
	}
	left = util.PadWidth(left, width-rightWidth)

	return m.theme.StatusBar.Render(style.Render(left) + right)
}
