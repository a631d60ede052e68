// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a segment.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns the speaker label used in the rendered log.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// SEGMENT TYPE
// =============================================================================

// Segment is one entry of the conversation log.
type Segment struct {
	Role Role
	// Content is what the speaker said, unmodified.
	Content string
	// Text is the exact string appended to the display.
	Text string
	At   time.Time
}

// UserText renders a user turn. The raw input is kept verbatim, including
// any surrounding whitespace.
func UserText(raw string) string {
	return fmt.Sprintf("%s: %s\n\n", RoleUser.DisplayName(), raw)
}

// AssistantText renders an assistant turn. The reply starts on its own line.
func AssistantText(reply string) string {
	return fmt.Sprintf("%s: \n%s\n\n", RoleAssistant.DisplayName(), reply)
}

// NewUserSegment creates a user segment stamped with the current time.
func NewUserSegment(raw string) Segment {
	return Segment{Role: RoleUser, Content: raw, Text: UserText(raw), At: time.Now()}
}

// NewAssistantSegment creates an assistant segment stamped with the current time.
func NewAssistantSegment(reply string) Segment {
	return Segment{Role: RoleAssistant, Content: reply, Text: AssistantText(reply), At: time.Now()}
}
