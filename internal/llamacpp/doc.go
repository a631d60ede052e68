// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llamacpp runs a llama.cpp server over a local GGUF model and
// exposes it as an inference.Session.
//
// Start launches llama-server as a child process with the session
// parameters (context size, batch sizes, GPU layers, verbosity), waits for
// the model to finish loading, and returns a Session. Completions are
// plain blocking POSTs to /completion. Close terminates the server, which
// releases the model weights and any allocated context.
//
// # Key Types
//
//   - Options: server and model parameters
//   - Server: the child process
//   - Client: HTTP client for a running server
//   - Session: Client + Server, implements inference.Session
package llamacpp
