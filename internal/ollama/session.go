// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ClaytonHin/localchat/internal/inference"
)

// SessionOptions are the model parameters sent with every request.
type SessionOptions struct {
	ContextSize int
	BatchSize   int
	GPULayers   int
	Temperature float64
	AutoStart   bool // run `ollama serve` when nothing answers
}

// Session is an inference.Session bound to one Ollama model.
type Session struct {
	client *Client
	model  string
	opts   SessionOptions

	mu     sync.RWMutex
	closed bool
}

var _ inference.Session = (*Session)(nil)

// NewSession makes sure the server is up and the model exists.
func NewSession(ctx context.Context, client *Client, model string, opts SessionOptions) (*Session, error) {
	if opts.AutoStart {
		if err := client.EnsureRunning(ctx); err != nil {
			return nil, err
		}
	} else if err := client.CheckRunning(ctx); err != nil {
		return nil, err
	}

	if _, err := client.GetModel(ctx, model); err != nil {
		if inference.IsModelNotFound(err) {
			return nil, missingModel(ctx, client, model, err)
		}
		return nil, err
	}

	client.logger.Info("ollama session ready",
		zap.String("url", client.BaseURL()),
		zap.String("model", model))

	return &Session{client: client, model: model, opts: opts}, nil
}

// missingModel names the locally pulled models so a typo in the tag is easy
// to spot. The original error is kept when the list is unavailable.
func missingModel(ctx context.Context, client *Client, model string, err error) error {
	models, listErr := client.ListModels(ctx)
	if listErr != nil || len(models) == 0 {
		return err
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return inference.NewError(inference.KindModelNotFound, nil,
		fmt.Sprintf("model %q not found (available: %s)", model, strings.Join(names, ", ")))
}

// Complete implements inference.Completer.
func (s *Session) Complete(ctx context.Context, req inference.Request) (*inference.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, inference.Closed()
	}

	resp, err := s.client.Generate(ctx, GenerateRequest{
		Model:  s.model,
		Prompt: req.Prompt,
		Raw:    true,
		Options: &Options{
			Temperature: s.opts.Temperature,
			NumCtx:      s.opts.ContextSize,
			NumBatch:    s.opts.BatchSize,
			NumGPU:      numGPU(s.opts.GPULayers),
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		},
	})
	if err != nil {
		return nil, err
	}

	return &inference.Result{
		Text:             inference.ApplyEcho(req, resp.Response),
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		StopReason:       stopReason(resp.DoneReason),
		Duration:         time.Duration(resp.EvalDuration),
	}, nil
}

// Close unloads the model. The Ollama server itself keeps running.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Unload(ctx, s.model); err != nil {
		s.client.logger.Warn("failed to unload model", zap.String("model", s.model), zap.Error(err))
		return err
	}
	s.client.logger.Info("model unloaded", zap.String("model", s.model))
	return nil
}

// allLayers makes Ollama offload every layer; its own -1 means "decide".
const allLayers = 999

// numGPU maps a configured layer count to num_gpu. Negative means all.
func numGPU(layers int) int {
	if layers < 0 {
		return allLayers
	}
	return layers
}

func stopReason(doneReason string) inference.StopReason {
	switch doneReason {
	case "stop":
		return inference.StopWord
	case "length":
		return inference.StopLength
	default:
		return ""
	}
}
