// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package window

import (
	"github.com/ClaytonHin/localchat/internal/chat"
	"github.com/ClaytonHin/localchat/internal/inference"
)

// generatedMsg carries the outcome of Controller.Generate back to the
// update loop.
type generatedMsg struct {
	turn   *chat.Turn
	result *inference.Result
	err    error
}

// focus identifies the widget that receives Enter.
type focus int

const (
	focusInput focus = iota
	focusSend
	focusExit
	focusCount
)
