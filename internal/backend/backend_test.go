// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaytonHin/localchat/internal/config"
	"github.com/ClaytonHin/localchat/internal/inference"
)

func TestLlamaCppOptions_Defaults(t *testing.T) {
	opts := LlamaCppOptions(config.Default())

	assert.Equal(t, "Dolphin3.0-Llama3.1-8B_Q5_K_M.gguf", opts.ModelPath)
	assert.Equal(t, 2048, opts.ContextSize)
	assert.Equal(t, 1024, opts.BatchSize)
	assert.Equal(t, 1024, opts.MicroBatchSize)
	assert.Equal(t, -1, opts.GPULayers)
	assert.InDelta(t, 0.4, opts.Temperature, 1e-9)
	assert.True(t, opts.Verbose)
	assert.Equal(t, 2*time.Minute, opts.StartupTimeout)
}

func TestOllamaOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Ollama.AutoStart = false

	opts := OllamaOptions(cfg)
	assert.Equal(t, 2048, opts.ContextSize)
	assert.Equal(t, 1024, opts.BatchSize)
	assert.Equal(t, -1, opts.GPULayers)
	assert.False(t, opts.AutoStart)
}

func TestOpen_MissingModel(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Path = filepath.Join(t.TempDir(), "absent.gguf")

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, inference.IsModelNotFound(err))
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Inference.Backend = "vllm"

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vllm")
}
