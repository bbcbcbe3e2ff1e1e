// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates triage-router configuration.
//
// # Configuration Precedence
//
// Later sources override earlier ones:
//   - Built-in defaults
//   - ~/.triage-router/config.toml (or the file given with --config)
//   - .env in the working directory or the config directory
//   - Environment variables (GROQ_*, OLLAMA_*, TRIAGE_*)
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Watch reloads the file on change, which lets a long-running chat session
// pick up new keyword lists without restarting.
package config
