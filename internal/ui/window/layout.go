// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import "github.com/ClaytonHin/localchat/internal/util"

// Row budget. View must render exactly these rows around the history box.
const (
	headerRows = 1
	labelRows  = 1
	borderRows = 2
	inputRows  = 3 // entry line plus its border
	buttonRows = 1
	statusRows = 1

	fixedRows = headerRows + labelRows + borderRows + labelRows + inputRows + buttonRows + statusRows

	minHistoryRows = 3
	minInnerWidth  = 10
)

const (
	sendLabel    = "[ Send ]"
	exitLabel    = "[ Exit ]"
	buttonIndent = 1
	buttonGap    = 2
)

// span is a half-open column range [from, to).
type span struct {
	from, to int
}

func (s span) contains(x int) bool {
	return x >= s.from && x < s.to
}

// layout is shared by View and mouse hit-testing so clicks land where the
// buttons are drawn.
type layout struct {
	innerWidth    int // inside the box borders
	historyHeight int
	inputWidth    int // textinput.Width, excluding prompt and cursor
	inputRow      int // row of the entry line
	buttonRow     int
	send, exit    span
}

func computeLayout(width, height int) layout {
	l := layout{
		innerWidth:    width - 2,
		historyHeight: height - fixedRows,
	}
	if l.innerWidth < minInnerWidth {
		l.innerWidth = minInnerWidth
	}
	if l.historyHeight < minHistoryRows {
		l.historyHeight = minHistoryRows
	}
	l.inputWidth = l.innerWidth - 4

	top := headerRows + labelRows + borderRows + l.historyHeight + labelRows
	l.inputRow = top + 1
	l.buttonRow = top + inputRows

	sendEnd := buttonIndent + util.StringWidth(sendLabel)
	l.send = span{from: buttonIndent, to: sendEnd}
	exitStart := sendEnd + buttonGap
	l.exit = span{from: exitStart, to: exitStart + util.StringWidth(exitLabel)}
	return l
}

// rows is the total height View renders for this layout.
func (l layout) rows() int {
	return fixedRows + l.historyHeight
}
