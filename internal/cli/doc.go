// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the triage command-line driver.
//
// It wires configuration, logging, the record store, the triage tools, the
// two model clients and the router together, then exposes them as cobra
// commands.
//
// # Commands
//
//   - ask: route one question and print the answer
//   - chat: interactive session with history and config hot reload
//   - classify: show which tier a question would go to
//   - tools: list the triage tools
//   - stats: show or reset routing statistics
//   - config: show, get and set configuration values
//   - version: build information
//
// All commands accept --config, --log-level and --json.
package cli
