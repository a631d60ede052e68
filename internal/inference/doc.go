// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inference defines the Inference Session consumed by the chat
// controller.
//
// A Session owns a loaded model and exposes a single blocking operation,
// Complete. Two backends implement it: internal/llamacpp, which runs a
// llama-server process over a local GGUF file, and internal/ollama, which
// talks to an Ollama server. Open picks one from the configuration.
//
// # Usage
//
//	sess, err := inference.Open(ctx, cfg, logger)
//	if err != nil {
//	    return err // startup failures are fatal
//	}
//	defer sess.Close()
//
//	res, err := sess.Complete(ctx, inference.Request{
//	    Prompt:    "User: Hello\nAssistant: \n",
//	    MaxTokens: 1024,
//	    Stop:      []string{"User:"},
//	})
package inference
