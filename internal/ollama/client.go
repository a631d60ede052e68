// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ClaytonHin/localchat/internal/inference"
)

// DefaultURL is where a local Ollama listens.
// Uses an explicit IPv4 address to avoid IPv6 resolution issues on Windows.
const DefaultURL = "http://127.0.0.1:11434"

// Client handles communication with the Ollama API.
// The Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// StartupTimeout bounds how long EnsureRunning waits for `ollama serve`.
	StartupTimeout time.Duration
	// PollInterval paces the readiness checks after a start.
	PollInterval time.Duration
}

// NewClient creates a client for baseURL. An empty URL means DefaultURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		// no client timeout: generation is bounded by num_predict and the
		// caller's context
		httpClient:     &http.Client{},
		logger:         logger,
		StartupTimeout: 10 * time.Second,
		PollInterval:   500 * time.Millisecond,
	}
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return inference.NewError(inference.KindInvalidResponse, err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return inference.NewError(inference.KindNotRunning, nil, "unexpected status from Ollama: "+resp.Status)
	}
	return nil
}

// EnsureRunning checks if Ollama is running, and starts it if not.
func (c *Client) EnsureRunning(ctx context.Context) error {
	if err := c.CheckRunning(ctx); err == nil {
		return nil
	}
	return c.startOllamaProcess(ctx)
}

// startOllamaProcess runs `ollama serve` detached and polls until it answers.
func (c *Client) startOllamaProcess(ctx context.Context) error {
	ollamaPath, err := findOllamaExecutable()
	if err != nil {
		return inference.NewError(inference.KindStartup, err, "failed to find Ollama executable")
	}

	cmd := exec.Command(ollamaPath, "serve")
	// GPU-related variables (OLLAMA_*, CUDA_*) must reach the server
	cmd.Env = os.Environ()
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return inference.NewError(inference.KindStartup, err,
			fmt.Sprintf("failed to start Ollama (path: %s)", ollamaPath))
	}
	// the server outlives us; it is shared with other clients
	_ = cmd.Process.Release()

	c.logger.Info("starting ollama", zap.String("path", ollamaPath))

	if err := c.waitRunning(ctx, c.StartupTimeout, c.PollInterval); err != nil {
		if inference.KindOf(err) == inference.KindTimeout {
			return inference.NewError(inference.KindStartup, errors.Unwrap(err),
				fmt.Sprintf("Ollama started but not responding after %s (path: %s)", c.StartupTimeout, ollamaPath))
		}
		return err
	}
	return nil
}

// waitRunning polls the server until it answers, the timeout elapses or ctx
// is cancelled.
func (c *Client) waitRunning(ctx context.Context, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	start := time.Now()
	var lastErr error

	for {
		// Wait fails early when the next tick would pass the deadline.
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return inference.NewError(inference.KindStartup, ctx.Err(), "Ollama startup cancelled")
			}
			return inference.NewError(inference.KindTimeout, lastErr,
				fmt.Sprintf("Ollama not responding after %s", timeout))
		}

		checkCtx, checkCancel := context.WithTimeout(ctx, interval)
		lastErr = c.CheckRunning(checkCtx)
		checkCancel()
		if lastErr == nil {
			c.logger.Info("ollama started", zap.Duration("elapsed", time.Since(start)))
			return nil
		}
	}
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally available models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var result ListModelsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// GetModel retrieves information about a specific model.
func (c *Client) GetModel(ctx context.Context, name string) (*ShowModelResponse, error) {
	var result ShowModelResponse
	if err := c.do(ctx, http.MethodPost, "/api/show", ShowModelRequest{Name: name}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate sends a non-streaming /api/generate request.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false
	var result GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/generate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Unload asks Ollama to drop the model from memory right away.
func (c *Client) Unload(ctx context.Context, model string) error {
	zero := 0
	return c.do(ctx, http.MethodPost, "/api/generate", GenerateRequest{Model: model, KeepAlive: &zero}, nil)
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// do performs a JSON request. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return inference.NewError(inference.KindInvalidResponse, err, "failed to marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return inference.NewError(inference.KindInvalidResponse, err, "failed to create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		var apiErr apiError
		msg := "model not found"
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return inference.NewError(inference.KindModelNotFound, nil, msg)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return inference.NewError(inference.KindInvalidResponse, nil, apiErr.Error)
		}
		return inference.NewError(inference.KindInvalidResponse, nil, path+" request failed: "+resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return inference.NewError(inference.KindInvalidResponse, err, "failed to decode response")
	}
	return nil
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return inference.NewError(inference.KindTimeout, err, "request timed out")
	}
	return inference.NewError(inference.KindNotRunning, err, "Ollama is not running")
}

func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, r)
	r.Close()
}
