// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the chat controller that sits between the user
// interface and the inference session.
//
// A submission runs in three steps so a UI can keep its event loop free
// while the model generates:
//
//	turn, err := ctrl.Begin(text)      // on the UI goroutine
//	res, err := ctrl.Generate(ctx, turn) // anywhere, blocks
//	ctrl.Finish(turn, res, err)        // back on the UI goroutine
//
// Submit runs all three in sequence for line-mode front ends. Only one turn
// may be open at a time; Begin returns ErrBusy otherwise.
package chat
