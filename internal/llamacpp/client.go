// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ClaytonHin/localchat/internal/inference"
)

// Client talks to a running llama-server.
// The Client is safe for concurrent use.
type Client struct {
	baseURL     string
	temperature float64
	httpClient  *http.Client
}

// NewClient returns a client for the server at baseURL
// (e.g. "http://127.0.0.1:8080"). temperature is sent with every request.
func NewClient(baseURL string, temperature float64) *Client {
	return &Client{
		baseURL:     baseURL,
		temperature: temperature,
		// no client timeout: generation is bounded by n_predict and the
		// caller's context
		httpClient: &http.Client{},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health reports nil once the model is loaded. A loading server answers
// 503, which is returned as a NotRunning error.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return inference.NewError(inference.KindInvalidResponse, err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return inference.NewError(inference.KindTimeout, err, "health check timed out")
		}
		return inference.NewError(inference.KindNotRunning, err, "llama-server is not reachable")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return inference.NewError(inference.KindNotRunning, nil, "llama-server not ready: "+resp.Status)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.Status != "" && health.Status != "ok" {
		return inference.NewError(inference.KindNotRunning, nil, "llama-server status: "+health.Status)
	}
	return nil
}

// Complete sends a blocking completion request.
func (c *Client) Complete(ctx context.Context, r inference.Request) (*inference.Result, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:      r.Prompt,
		NPredict:    r.MaxTokens,
		Stop:        r.Stop,
		Temperature: c.temperature,
		Stream:      false,
	})
	if err != nil {
		return nil, inference.NewError(inference.KindInvalidResponse, err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, inference.NewError(inference.KindInvalidResponse, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, inference.NewError(inference.KindTimeout, err, "completion timed out")
		}
		return nil, inference.NewError(inference.KindNotRunning, err, "llama-server is not reachable")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, inference.NewError(inference.KindInvalidResponse, nil,
				fmt.Sprintf("completion failed (%s): %s", resp.Status, apiErr.Error.Message))
		}
		return nil, inference.NewError(inference.KindInvalidResponse, nil, "completion failed: "+resp.Status)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, inference.NewError(inference.KindInvalidResponse, err, "failed to decode response")
	}

	elapsed := time.Since(start)
	if out.Timings.PredictedMS > 0 {
		elapsed = time.Duration(out.Timings.PredictedMS * float64(time.Millisecond))
	}

	return &inference.Result{
		Text:             inference.ApplyEcho(r, out.Content),
		PromptTokens:     out.TokensEvaluated,
		CompletionTokens: out.TokensPredicted,
		StopReason:       out.stopReason(),
		Duration:         elapsed,
	}, nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (r *completionResponse) stopReason() inference.StopReason {
	switch {
	case r.StopType == "word" || r.StoppedWord:
		return inference.StopWord
	case r.StopType == "limit" || r.StoppedLimit:
		return inference.StopLength
	case r.StopType == "eos" || r.StoppedEOS:
		return inference.StopEOS
	default:
		return ""
	}
}

func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, r)
	r.Close()
}
