// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides the Session Configuration for localchat.
//
// The configuration is built once at startup and never mutated afterwards.
// Built-in defaults describe a llama.cpp session over a local GGUF file;
// a TOML file and a handful of environment variables may override them.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command line flags (applied by main)
//   - Environment variables (LOCALCHAT_*)
//   - --config <path> or ~/.localchat/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Model.Path, cfg.Inference.ContextSize)
package config
