// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the local Ollama server, the
// lightweight model path of the triage router.
//
// Two operations are used:
//
//   - Complete: one-shot /api/generate call, used by the fallback tier
//     classifier
//   - StreamChat: streaming /api/chat call with tool calling, used to answer
//     Basic-tier queries
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{DefaultModel: "llama3.2:3b"})
//	answer, err := client.Complete(ctx, prompt)
//
//	err = client.StreamChat(ctx, model.ChatRequest{Messages: msgs}, func(d model.Delta) error {
//	    fmt.Print(d.Text)
//	    return nil
//	})
//
// Errors are *ClientError values; Timeout and Malformed report how the
// request failed.
package ollama
