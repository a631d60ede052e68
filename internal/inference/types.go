// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"time"
)

// Request is a single completion request.
type Request struct {
	Prompt    string
	MaxTokens int      // tokens to generate; <= 0 lets the backend decide
	Stop      []string // generation ends before any of these strings
	Echo      bool     // prepend the prompt to the returned text
}

// StopReason says why generation ended.
type StopReason string

const (
	StopWord   StopReason = "stop"   // hit a stop string
	StopLength StopReason = "length" // hit MaxTokens or the context limit
	StopEOS    StopReason = "eos"    // model emitted end-of-sequence
)

// Result is the outcome of a completion.
type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	StopReason       StopReason
	Duration         time.Duration
}

// TokensPerSecond returns the generation speed, or 0 when unknown.
func (r *Result) TokensPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.CompletionTokens) / r.Duration.Seconds()
}

// Completer produces text completions. Complete blocks until the model
// stops; there is no streaming.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// Session is a Completer that holds model resources until Close.
// Complete must not be called after Close.
type Session interface {
	Completer
	Close() error
}

// ApplyEcho returns text with the prompt prepended when req.Echo is set.
// Backends call it because none of them echo natively.
func ApplyEcho(req Request, text string) string {
	if req.Echo {
		return req.Prompt + text
	}
	return text
}
