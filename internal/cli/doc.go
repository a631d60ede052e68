// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the line-mode front end for localchat.
//
// It is used with --plain or when stdin is not a terminal. Each line is
// sent through chat.Controller.Submit, which blocks until the reply is
// complete; the prompt comes back only after the reply is printed.
//
// # Usage
//
//	repl := cli.NewREPL(ctrl, cli.NewLiner(), os.Stdout)
//	defer repl.Close()
//	err := repl.Run(ctx)
//
// Type /exit (or press Ctrl+D / Ctrl+C) to leave.
package cli
