// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"sync"
)

// ErrOutOfOrder is returned when an append would break the user/assistant
// alternation.
var ErrOutOfOrder = errors.New("conversation turn out of order")

// =============================================================================
// LOG TYPE
// =============================================================================

// Log is the append-only conversation log. It is safe for concurrent use;
// the renderer reads while the controller appends.
type Log struct {
	mu       sync.RWMutex
	segments []Segment
	text     strings.Builder
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// AppendUser opens a turn. It fails if the previous turn has no reply yet.
func (l *Log) AppendUser(raw string) (Segment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pendingLocked() {
		return Segment{}, ErrOutOfOrder
	}
	seg := NewUserSegment(raw)
	l.appendLocked(seg)
	return seg, nil
}

// AppendAssistant closes the open turn with the model's reply.
func (l *Log) AppendAssistant(reply string) (Segment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pendingLocked() {
		return Segment{}, ErrOutOfOrder
	}
	seg := NewAssistantSegment(reply)
	l.appendLocked(seg)
	return seg, nil
}

func (l *Log) appendLocked(seg Segment) {
	l.segments = append(l.segments, seg)
	l.text.WriteString(seg.Text)
}

func (l *Log) pendingLocked() bool {
	n := len(l.segments)
	return n > 0 && l.segments[n-1].Role == RoleUser
}

// Pending reports whether a user turn is waiting for its reply.
func (l *Log) Pending() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pendingLocked()
}

// Segments returns a copy of all segments in order.
func (l *Log) Segments() []Segment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Segment, len(l.segments))
	copy(out, l.segments)
	return out
}

// Last returns the newest segment.
func (l *Log) Last() (Segment, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.segments) == 0 {
		return Segment{}, false
	}
	return l.segments[len(l.segments)-1], true
}

// Len returns the number of segments.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.segments)
}

// String returns the full display text.
func (l *Log) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.text.String()
}
