// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/ClaytonHin/localchat/internal/chat"
	"github.com/ClaytonHin/localchat/internal/inference"
	"github.com/ClaytonHin/localchat/internal/ui/styles"
)

// Options configures the window.
type Options struct {
	Title     string
	ModelName string // shown in the status bar
	Markdown  bool   // render the history through glamour
}

// scrollState is set by the controller's scroll callback and consumed by
// the next Update. Both run on the update loop.
type scrollState struct {
	bottom bool
}

func (s *scrollState) request() { s.bottom = true }

func (s *scrollState) take() bool {
	b := s.bottom
	s.bottom = false
	return b
}

// Model is the Bubble Tea model for the chat window.
type Model struct {
	ctx   context.Context
	ctrl  *chat.Controller
	theme *styles.Theme
	opts  Options
	keys  KeyMap

	// Dimensions
	width  int
	height int
	layout layout

	// Widgets
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	focus    focus

	markdown *glamour.TermRenderer
	scroll   *scrollState

	// Last finished turn, for the status bar.
	last    *inference.Result
	lastErr error

	quitting bool
}

// New creates the window for ctrl. ctx bounds every generation started from
// the window.
func New(ctx context.Context, ctrl *chat.Controller, theme *styles.Theme, opts Options) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}
	if opts.Title == "" {
		opts.Title = "Custom LLM Assistant"
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message"
	ti.SetValue(ctrl.Input())
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(styles.LineSpinner.Bubble()))

	scroll := &scrollState{}
	ctrl.OnScroll(scroll.request)

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		theme:    theme,
		opts:     opts,
		keys:     DefaultKeyMap(),
		viewport: viewport.New(minInnerWidth, minHistoryRows),
		input:    ti,
		spinner:  sp,
		help:     help.New(),
		scroll:   scroll,
	}
	m.resize(80, 24)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case generatedMsg:
		return m.handleGenerated(msg)

	case spinner.TickMsg:
		if !m.ctrl.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.focus == focusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.layout = computeLayout(width, height)

	m.viewport.Width = m.layout.innerWidth
	m.viewport.Height = m.layout.historyHeight
	m.input.Width = m.layout.inputWidth
	m.help.Width = width

	if m.opts.Markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.GlamourStyle()),
			glamour.WithWordWrap(m.layout.innerWidth),
		)
		if err == nil {
			m.markdown = r
		}
	}

	atBottom := m.viewport.AtBottom()
	m.refresh()
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// refresh re-renders the conversation into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Focus):
		m.setFocus((m.focus + 1) % focusCount)
		return m, nil

	case key.Matches(msg, m.keys.FocusBack):
		m.setFocus((m.focus + focusCount - 1) % focusCount)
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if m.focus == focusExit {
			return m.quit()
		}
		return m.submit()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil
	}

	if m.focus != focusInput {
		switch {
		case key.Matches(msg, m.keys.Up):
			m.viewport.LineUp(1)
		case key.Matches(msg, m.keys.Down):
			m.viewport.LineDown(1)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.ctrl.SetInput(m.input.Value())
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.MouseWheelUp:
		m.viewport.LineUp(3)
	case tea.MouseWheelDown:
		m.viewport.LineDown(3)
	case tea.MouseLeft:
		switch {
		case msg.Y == m.layout.buttonRow && m.layout.send.contains(msg.X):
			m.setFocus(focusInput)
			return m.submit()
		case msg.Y == m.layout.buttonRow && m.layout.exit.contains(msg.X):
			return m.quit()
		case msg.Y == m.layout.inputRow:
			m.setFocus(focusInput)
		}
	}
	return m, nil
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// submit opens a turn for the entry text and starts generation. Blank
// input and submits while busy are dropped.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	m.ctrl.SetInput(text)

	turn, err := m.ctrl.Begin(text)
	switch {
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, chat.ErrBusy):
		return m, nil
	case err != nil:
		m.lastErr = err
		return m, nil
	}

	m.input.Reset()
	m.lastErr = nil
	m.refresh()
	m.viewport.GotoBottom()

	return m, tea.Batch(m.generate(turn), m.spinner.Tick)
}

func (m Model) generate(turn *chat.Turn) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		res, err := ctrl.Generate(ctx, turn)
		return generatedMsg{turn: turn, result: res, err: err}
	}
}

func (m Model) handleGenerated(msg generatedMsg) (tea.Model, tea.Cmd) {
	m.lastErr = m.ctrl.Finish(msg.turn, msg.result, msg.err)
	if msg.result != nil {
		m.last = msg.result
	}
	m.refresh()
	if m.scroll.take() {
		m.viewport.GotoBottom()
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Quit
}

// Run shows the window until the user exits. The caller releases the
// session afterwards.
func Run(ctx context.Context, m Model, altScreen, mouse bool) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if mouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	_, err := tea.NewProgram(m, opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
