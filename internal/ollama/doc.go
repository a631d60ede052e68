// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the Ollama local LLM server
// and an inference.Session on top of it.
//
// Completions use /api/generate with raw=true so the chat prompt template
// reaches the model untouched, and stream=false so the call blocks until
// the model stops.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - GenerateRequest / GenerateResponse: /api/generate bodies
//   - Options: model parameters (temperature, num_ctx, num_batch, num_gpu)
//   - Session: inference.Session bound to one model
//
// # Usage
//
//	client := ollama.NewClient("http://127.0.0.1:11434", logger)
//	sess, err := ollama.NewSession(ctx, client, "dolphin3:8b", opts)
//	res, err := sess.Complete(ctx, inference.Request{Prompt: "User: hi\nAssistant: \n"})
//	sess.Close() // unloads the model
package ollama
