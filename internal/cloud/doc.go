// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the capable model path of the triage router: an
// OpenAI-compatible chat client, Groq by default.
//
// The client wraps github.com/sashabaranov/go-openai with:
//   - client-side rate limiting (golang.org/x/time/rate)
//   - retries with exponential backoff for 429 and 5xx responses, only
//     before the first token is delivered
//   - reassembly of streamed tool-call fragments into complete calls
//   - typed errors that report timeouts and malformed provider output
//
// # Usage
//
//	client, err := cloud.NewClient(cloud.Config{APIKey: key})
//	err = client.StreamChat(ctx, model.ChatRequest{Messages: msgs}, func(d model.Delta) error {
//	    fmt.Print(d.Text)
//	    return nil
//	})
package cloud
