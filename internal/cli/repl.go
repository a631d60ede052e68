// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/ClaytonHin/localchat/internal/chat"
	"github.com/ClaytonHin/localchat/internal/model"
)

const promptText = "> "

// LineReader reads edited input lines. *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// NewLiner returns a liner-backed reader with in-memory history.
// Ctrl+C aborts the prompt.
func NewLiner() LineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return line
}

// REPL is the line-mode chat loop.
type REPL struct {
	ctrl   *chat.Controller
	in     LineReader
	out    io.Writer
	styles lineStyles

	// Title and ModelName are printed in the banner.
	Title     string
	ModelName string
	// EchoInput prints the user line, for input that is not typed at a
	// terminal.
	EchoInput bool
}

// NewREPL creates a REPL reading from in and writing replies to out.
func NewREPL(ctrl *chat.Controller, in LineReader, out io.Writer) *REPL {
	return &REPL{
		ctrl:   ctrl,
		in:     in,
		out:    out,
		styles: newLineStyles(newRenderer()),
		Title:  "Custom LLM Assistant",
	}
}

// Close releases the line reader.
func (r *REPL) Close() error {
	return r.in.Close()
}

// Run reads and submits lines until /exit, end of input, Ctrl+C, or ctx
// is done. Submit blocks, so no prompt is shown while the model works.
func (r *REPL) Run(ctx context.Context) error {
	r.printBanner()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.in.Prompt(promptText)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		switch strings.TrimSpace(line) {
		case "/exit", "/quit":
			return nil
		case "/help":
			r.printHelp()
			continue
		case "":
			continue
		}
		r.in.AppendHistory(line)

		if r.EchoInput {
			fmt.Fprint(r.out, r.render(r.styles.user, model.UserText(line)))
		}

		turn, err := r.ctrl.Submit(ctx, line)
		if turn == nil {
			if errors.Is(err, chat.ErrEmptyInput) {
				continue
			}
			return err
		}
		r.printReply(turn)
	}
}

func (r *REPL) printReply(turn *chat.Turn) {
	style := r.styles.assistant
	if turn.Err != nil {
		style = r.styles.failed
	}
	text := model.AssistantText(turn.Reply)
	if seg, ok := r.ctrl.Log().Last(); ok && seg.Role == model.RoleAssistant {
		text = seg.Text
	}
	fmt.Fprint(r.out, r.render(style, text))
}

// render styles text without its trailing blank line and puts it back, so
// styling does not pad the separator.
func (r *REPL) render(style lipgloss.Style, text string) string {
	body := strings.TrimRight(text, "\n")
	return style.Render(body) + text[len(body):]
}

func (r *REPL) printBanner() {
	fmt.Fprintln(r.out, r.styles.title.Render(r.Title))
	if r.ModelName != "" {
		fmt.Fprintln(r.out, r.styles.dim.Render("model: "+r.ModelName))
	}
	fmt.Fprintln(r.out, r.styles.dim.Render(strings.Repeat("-", min(GetTerminalWidth(), 60))))
	fmt.Fprintln(r.out, r.styles.dim.Render("Type a message and press Enter. /exit to quit."))
	fmt.Fprintln(r.out)
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, r.styles.dim.Render("/help  show this help"))
	fmt.Fprintln(r.out, r.styles.dim.Render("/exit  leave (also Ctrl+D, Ctrl+C)"))
}
