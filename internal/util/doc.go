// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the window and the REPL.
//
// # Key Functions
//
//   - TruncateWidth: display-width aware truncation with ellipsis
//   - PadWidth: right-pad a string to a display width
//   - LastLines: tail of a multi-line string
//
// Width calculations use github.com/mattn/go-runewidth so CJK and other
// wide characters take two columns.
package util
