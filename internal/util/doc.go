// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the router, the model clients
// and the telemetry writer.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync
//   - TruncateRunes: UTF-8 safe truncation for log lines
//   - CalculateBackoff: exponential retry delay with jitter
//
// # Usage
//
//	logger.Debug("routing", "query", util.TruncateRunes(text, 80))
//
//	for attempt := 0; attempt <= retries; attempt++ {
//		time.Sleep(util.CalculateBackoff(base, attempt))
//	}
package util
