// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation log shown in the chat display.
//
// The log is append-only. Each exchange adds a user segment followed by an
// assistant segment, and segments are never edited or removed.
//
// # Key Types
//
//   - Log: ordered, concurrency-safe list of segments
//   - Segment: one rendered turn with its role and timestamp
//   - Role: user or assistant
//
// # Usage
//
//	log := model.NewLog()
//	log.AppendUser("Hello")
//	log.AppendAssistant("Hi there.")
//	fmt.Print(log.String())
//	// User: Hello
//	//
//	// Assistant:
//	// Hi there.
package model
