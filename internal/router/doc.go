// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router routes triage queries to one of two model tiers.
//
// An utterance passes through three stages:
//
//	intent short-circuit -> tier classification -> responder dispatch
//
// Known literal requests ("what's the wait time?") go straight to a tool.
// Everything else is classified as Basic or Advanced by a keyword cascade,
// with a lightweight model as the fallback, and is answered by that tier's
// model as a stream of chunks.
//
// # Key Types
//
//   - Router: runs the whole pipeline and reports to an Observer
//   - Classifier: keyword cascade plus fallback model
//   - Dispatcher: streams a tier's answer, running tool calls with a nesting guard
//   - Tier: Basic or Advanced
//   - Decision: the tier and the rule that produced it
//   - Chunk, Failure: the streamed output and its terminal error form
//
// # Usage
//
//	r := router.New(classifier, dispatcher, router.WithIntents(matcher))
//	out := r.Route(ctx, model.NewUtterance(text, history))
//	answer, failure := router.Collect(out.Chunks)
//
// # Failures
//
// Nothing in this package panics or returns an error past Route. Responder
// and tool errors become a single terminal Chunk carrying a Failure. A
// fallback classifier error resolves to TierBasic and is kept on the
// Decision.
package router
