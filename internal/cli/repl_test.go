// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaytonHin/localchat/internal/chat"
	"github.com/ClaytonHin/localchat/internal/inference"
)

// scriptedReader returns lines in order, then end.
type scriptedReader struct {
	lines   []string
	end     error
	history []string
	closed  bool
}

func (s *scriptedReader) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		if s.end != nil {
			return "", s.end
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedReader) AppendHistory(item string) { s.history = append(s.history, item) }

func (s *scriptedReader) Close() error {
	s.closed = true
	return nil
}

type echoSession struct {
	prompts []string
	err     error
}

func (e *echoSession) Complete(ctx context.Context, req inference.Request) (*inference.Result, error) {
	e.prompts = append(e.prompts, req.Prompt)
	if e.err != nil {
		return nil, e.err
	}
	return &inference.Result{Text: "reply " + req.Prompt[len("User: "):len(req.Prompt)-len("\nAssistant: \n")]}, nil
}

func TestREPL_Exchange(t *testing.T) {
	sess := &echoSession{}
	ctrl := chat.New(sess)
	in := &scriptedReader{lines: []string{"Hello", "   ", "again"}}
	var out bytes.Buffer

	repl := NewREPL(ctrl, in, &out)
	require.NoError(t, repl.Run(context.Background()))

	assert.Equal(t, []string{"User: Hello\nAssistant: \n", "User: again\nAssistant: \n"}, sess.prompts)
	assert.Equal(t, []string{"Hello", "again"}, in.history)
	assert.Contains(t, out.String(), "Assistant: \nreply Hello\n\n")
	assert.Contains(t, out.String(), "Assistant: \nreply again\n\n")
	assert.Equal(t, "User: Hello\n\nAssistant: \nreply Hello\n\nUser: again\n\nAssistant: \nreply again\n\n", ctrl.Log().String())

	require.NoError(t, repl.Close())
	assert.True(t, in.closed)
}

func TestREPL_ExitCommand(t *testing.T) {
	sess := &echoSession{}
	in := &scriptedReader{lines: []string{"/exit", "never sent"}}
	var out bytes.Buffer

	require.NoError(t, NewREPL(chat.New(sess), in, &out).Run(context.Background()))
	assert.Empty(t, sess.prompts)
	assert.Equal(t, []string{"never sent"}, in.lines)
}

func TestREPL_CtrlC(t *testing.T) {
	in := &scriptedReader{end: liner.ErrPromptAborted}
	assert.NoError(t, NewREPL(chat.New(&echoSession{}), in, io.Discard).Run(context.Background()))
}

func TestREPL_ReadError(t *testing.T) {
	boom := errors.New("tty gone")
	in := &scriptedReader{end: boom}
	assert.ErrorIs(t, NewREPL(chat.New(&echoSession{}), in, io.Discard).Run(context.Background()), boom)
}

func TestREPL_EchoInput(t *testing.T) {
	in := &scriptedReader{lines: []string{"piped"}}
	var out bytes.Buffer

	repl := NewREPL(chat.New(&echoSession{}), in, &out)
	repl.EchoInput = true
	require.NoError(t, repl.Run(context.Background()))

	assert.Contains(t, out.String(), "User: piped\n\nAssistant: \nreply piped\n\n")
}

func TestREPL_GenerationFailureContinues(t *testing.T) {
	sess := &echoSession{err: errors.New("out of memory")}
	in := &scriptedReader{lines: []string{"one", "two"}}
	var out bytes.Buffer

	require.NoError(t, NewREPL(chat.New(sess), in, &out).Run(context.Background()))
	assert.Len(t, sess.prompts, 2)
	assert.Contains(t, out.String(), "(generation failed: out of memory)")
}

func TestREPL_ClosedController(t *testing.T) {
	ctrl := chat.New(&echoSession{})
	require.NoError(t, ctrl.Shutdown())

	in := &scriptedReader{lines: []string{"late"}}
	err := NewREPL(ctrl, in, io.Discard).Run(context.Background())
	assert.True(t, inference.IsClosed(err))
}

func TestREPL_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := &echoSession{}
	in := &scriptedReader{lines: []string{"Hello"}}
	require.NoError(t, NewREPL(chat.New(sess), in, io.Discard).Run(ctx))
	assert.Empty(t, sess.prompts)
}
