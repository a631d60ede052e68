// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llamacpp

// completionRequest is the body of POST /completion.
type completionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Temperature float64  `json:"temperature"`
	Stream      bool     `json:"stream"`
	CachePrompt bool     `json:"cache_prompt"`
}

// completionResponse is the non-streaming reply of POST /completion.
type completionResponse struct {
	Content         string  `json:"content"`
	TokensPredicted int     `json:"tokens_predicted"`
	TokensEvaluated int     `json:"tokens_evaluated"`
	StoppedEOS      bool    `json:"stopped_eos"`
	StoppedWord     bool    `json:"stopped_word"`
	StoppedLimit    bool    `json:"stopped_limit"`
	StoppingWord    string  `json:"stopping_word"`
	StopType        string  `json:"stop_type"` // newer servers: "eos", "word", "limit"
	Timings         timings `json:"timings"`
}

type timings struct {
	PromptMS    float64 `json:"prompt_ms"`
	PredictedMS float64 `json:"predicted_ms"`
}

// healthResponse is the reply of GET /health.
type healthResponse struct {
	Status string `json:"status"`
}

// errorResponse is the body llama-server sends with non-2xx statuses.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
