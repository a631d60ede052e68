// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaytonHin/localchat/internal/chat"
	"github.com/ClaytonHin/localchat/internal/inference"
	"github.com/ClaytonHin/localchat/internal/ui/styles"
)

type fakeSession struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeSession) Complete(ctx context.Context, req inference.Request) (*inference.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &inference.Result{Text: f.reply}, nil
}

func newWindow(t *testing.T, sess *fakeSession, opts Options) (Model, *chat.Controller) {
	t.Helper()
	ctrl := chat.New(sess)
	m := New(context.Background(), ctrl, styles.NewTheme(), opts)
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
	return m, ctrl
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func updateCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// collect runs cmd and any batched commands, returning their messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func findGenerated(t *testing.T, cmd tea.Cmd) generatedMsg {
	t.Helper()
	for _, msg := range collect(cmd) {
		if g, ok := msg.(generatedMsg); ok {
			return g
		}
	}
	t.Fatal("no generation was started")
	return generatedMsg{}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func typeText(t *testing.T, m Model, s string) Model {
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestWindow_SubmitWithEnter(t *testing.T) {
	sess := &fakeSession{reply: "Hi, I am Dolphin."}
	m, ctrl := newWindow(t, sess, Options{})

	m = typeText(t, m, "Hello")
	assert.Equal(t, "Hello", ctrl.Input())

	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	// the user line and the cleared entry show before the reply arrives
	assert.Equal(t, "", m.input.Value())
	assert.Equal(t, "", ctrl.Input())
	assert.True(t, ctrl.Busy())
	assert.Contains(t, m.View(), "User: Hello")
	assert.Contains(t, m.View(), "generating...")

	m = update(t, m, findGenerated(t, cmd))

	assert.False(t, ctrl.Busy())
	assert.Equal(t, "User: Hello\n\nAssistant: \nHi, I am Dolphin.\n\n", ctrl.Log().String())
	assert.Contains(t, m.View(), "Hi, I am Dolphin.")
	assert.Contains(t, m.View(), "ready")
	assert.Equal(t, []string{"User: Hello\nAssistant: \n"}, sess.prompts)
}

func TestWindow_BlankInputIgnored(t *testing.T) {
	sess := &fakeSession{reply: "x"}
	m, ctrl := newWindow(t, sess, Options{})

	m = typeText(t, m, "   ")
	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Equal(t, 0, ctrl.Log().Len())
	assert.Equal(t, "   ", m.input.Value())
	assert.Empty(t, sess.prompts)
}

func TestWindow_SubmitWhileBusyIgnored(t *testing.T) {
	sess := &fakeSession{reply: "first reply"}
	m, ctrl := newWindow(t, sess, Options{})

	m = typeText(t, m, "one")
	m, first := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m = typeText(t, m, "two")
	m, second := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, second)
	assert.Equal(t, "two", m.input.Value())
	assert.Equal(t, 1, ctrl.Log().Len())

	m = update(t, m, findGenerated(t, first))
	assert.Equal(t, 2, ctrl.Log().Len())

	// the kept text can be sent once the reply is in
	m, third := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	_ = update(t, m, findGenerated(t, third))
	assert.Equal(t, 4, ctrl.Log().Len())
}

func TestWindow_GenerationFailure(t *testing.T) {
	sess := &fakeSession{err: errors.New("server crashed")}
	m, ctrl := newWindow(t, sess, Options{})

	m = typeText(t, m, "Hello")
	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = update(t, m, findGenerated(t, cmd))

	assert.Contains(t, ctrl.Log().String(), "(generation failed: server crashed)")
	assert.Contains(t, m.View(), "error: server crashed")
	assert.False(t, ctrl.Busy())
}

func TestWindow_FocusCycle(t *testing.T) {
	sess := &fakeSession{reply: "ok"}
	m, ctrl := newWindow(t, sess, Options{})
	m = typeText(t, m, "via button")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, focusSend, m.focus)

	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = update(t, m, findGenerated(t, cmd))
	assert.Equal(t, 2, ctrl.Log().Len())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, focusExit, m.focus)

	m, cmd = updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, isQuit(cmd))
	assert.True(t, m.quitting)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, focusSend, m.focus)
}

func TestWindow_QuitKeys(t *testing.T) {
	for _, k := range []tea.KeyType{tea.KeyEsc, tea.KeyCtrlC} {
		m, _ := newWindow(t, &fakeSession{}, Options{})
		m, cmd := updateCmd(t, m, tea.KeyMsg{Type: k})
		assert.True(t, isQuit(cmd))
		assert.Equal(t, "", m.View())
	}
}

func TestWindow_MouseButtons(t *testing.T) {
	sess := &fakeSession{reply: "clicked"}
	m, ctrl := newWindow(t, sess, Options{})
	l := m.layout

	m = typeText(t, m, "Hello")
	m, cmd := updateCmd(t, m, tea.MouseMsg{X: l.send.from + 1, Y: l.buttonRow, Type: tea.MouseLeft})
	m = update(t, m, findGenerated(t, cmd))
	assert.Contains(t, ctrl.Log().String(), "clicked")

	// between the buttons
	_, cmd = updateCmd(t, m, tea.MouseMsg{X: l.send.to, Y: l.buttonRow, Type: tea.MouseLeft})
	assert.Nil(t, cmd)

	_, cmd = updateCmd(t, m, tea.MouseMsg{X: l.exit.from, Y: l.buttonRow, Type: tea.MouseLeft})
	assert.True(t, isQuit(cmd))
}

func TestWindow_ButtonsDrawnWhereClicked(t *testing.T) {
	m, _ := newWindow(t, &fakeSession{}, Options{})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab}) // blur the entry so its cursor is plain

	lines := strings.Split(m.View(), "\n")
	require.Greater(t, len(lines), m.layout.buttonRow)

	row := lines[m.layout.buttonRow]
	assert.Equal(t, sendLabel, row[m.layout.send.from:m.layout.send.to])
	assert.Equal(t, exitLabel, row[m.layout.exit.from:m.layout.exit.to])
}

func TestWindow_ViewHeight(t *testing.T) {
	m, _ := newWindow(t, &fakeSession{}, Options{Title: "Custom LLM Assistant"})

	view := m.View()
	assert.Len(t, strings.Split(view, "\n"), 30)
	assert.Contains(t, view, "Custom LLM Assistant")
	assert.Contains(t, view, "Chat History:")
	assert.Contains(t, view, "Input:")
}

func TestWindow_Markdown(t *testing.T) {
	sess := &fakeSession{reply: "**bold** answer"}
	m, _ := newWindow(t, sess, Options{Markdown: true})
	require.NotNil(t, m.markdown)

	m = typeText(t, m, "Hello")
	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = update(t, m, findGenerated(t, cmd))

	view := m.View()
	assert.Contains(t, view, "Hello")
	assert.Contains(t, view, "answer")
}

func TestWindow_ClosedController(t *testing.T) {
	sess := &fakeSession{}
	m, ctrl := newWindow(t, sess, Options{})
	require.NoError(t, ctrl.Shutdown())

	m = typeText(t, m, "late")
	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.True(t, inference.IsClosed(m.lastErr))
}

func TestComputeLayout(t *testing.T) {
	l := computeLayout(80, 30)
	assert.Equal(t, 78, l.innerWidth)
	assert.Equal(t, 30-fixedRows, l.historyHeight)
	assert.Equal(t, 30, l.rows())
	assert.Equal(t, l.historyHeight+8, l.buttonRow)
	assert.Equal(t, span{1, 9}, l.send)
	assert.Equal(t, span{11, 19}, l.exit)

	tiny := computeLayout(5, 5)
	assert.Equal(t, minInnerWidth, tiny.innerWidth)
	assert.Equal(t, minHistoryRows, tiny.historyHeight)
}
