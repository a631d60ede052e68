// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend opens the inference session selected by configuration.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ClaytonHin/localchat/internal/config"
	"github.com/ClaytonHin/localchat/internal/inference"
	"github.com/ClaytonHin/localchat/internal/llamacpp"
	"github.com/ClaytonHin/localchat/internal/ollama"
)

// Open loads the configured model and returns a ready session. The caller
// owns the session and must Close it exactly once.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (inference.Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Inference.Backend {
	case config.BackendLlamaCpp, "":
		logger.Info("starting llama.cpp backend", zap.String("model", cfg.Model.Path))
		return llamacpp.Start(ctx, LlamaCppOptions(cfg), logger.Named("llamacpp"))

	case config.BackendOllama:
		logger.Info("connecting to ollama", zap.String("url", cfg.Ollama.URL), zap.String("model", cfg.Model.Name))
		client := ollama.NewClient(cfg.Ollama.URL, logger.Named("ollama"))
		return ollama.NewSession(ctx, client, cfg.Model.Name, OllamaOptions(cfg))

	default:
		return nil, fmt.Errorf("unknown inference backend %q", cfg.Inference.Backend)
	}
}

// LlamaCppOptions maps configuration onto llama-server options.
func LlamaCppOptions(cfg *config.Config) llamacpp.Options {
	return llamacpp.Options{
		ModelPath:      cfg.Model.Path,
		ServerPath:     cfg.LlamaCpp.ServerPath,
		Host:           cfg.LlamaCpp.Host,
		Port:           cfg.LlamaCpp.Port,
		ContextSize:    cfg.Inference.ContextSize,
		BatchSize:      cfg.Inference.BatchSize,
		MicroBatchSize: cfg.Inference.MicroBatchSize,
		GPULayers:      cfg.Inference.GPULayers,
		Temperature:    cfg.Inference.Temperature,
		Verbose:        cfg.Inference.Verbose,
		ExtraArgs:      cfg.LlamaCpp.ExtraArgs,
		StartupTimeout: cfg.LlamaCpp.StartupTimeout.Duration,
		ShutdownGrace:  cfg.LlamaCpp.ShutdownGrace.Duration,
	}
}

// OllamaOptions maps configuration onto Ollama model options.
func OllamaOptions(cfg *config.Config) ollama.SessionOptions {
	return ollama.SessionOptions{
		ContextSize: cfg.Inference.ContextSize,
		BatchSize:   cfg.Inference.BatchSize,
		GPULayers:   cfg.Inference.GPULayers,
		Temperature: cfg.Inference.Temperature,
		AutoStart:   cfg.Ollama.AutoStart,
	}
}
