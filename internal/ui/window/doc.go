// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package window provides the full-screen chat window.
//
// The layout, top to bottom:
//
//	title
//	Chat History:
//	+--------------------------+
//	| scrollable conversation  |
//	+--------------------------+
//	Input:
//	+--------------------------+
//	| > text entry             |
//	+--------------------------+
//	 [ Send ]  [ Exit ]   help
//	status bar
//
// Submissions go through chat.Controller. Begin and Finish run on the
// Bubble Tea update loop; the blocking Generate call runs as a tea.Cmd so
// the window keeps redrawing while the model works.
package window
