// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the provider-neutral data structures shared by the
// router, the tool executor and the model clients.
//
// # Key Types
//
//   - Utterance: the user's latest text plus the conversation before it
//   - Message: single chat message with role, content and optional tool calls
//   - ToolCall / ToolSpec: tool invocations requested by a model and the
//     schemas advertised to it
//   - ChatRequest / Delta: one streaming chat request and its increments
//
// # Usage
//
//	u := model.NewUtterance("I have chest pain", history)
//	window := u.Window(model.DefaultHistoryWindow)
//	prompt := model.FormatWindow(window)
package model
