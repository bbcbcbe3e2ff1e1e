// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/triage-router/internal/intent"
	"github.com/jeranaias/triage-router/internal/model"
	"github.com/jeranaias/triage-router/internal/tools"
)

var quiet = log.New(io.Discard)

type fakeCompleter struct {
	out     string
	err     error
	calls   atomic.Int32
	prompts []string
	mu      sync.Mutex
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.out, f.err
}

// turn is one scripted model reply.
type turn struct {
	deltas []model.Delta
	err    error
}

// scriptedModel replays turns in order; the last turn repeats.
type scriptedModel struct {
	mu       sync.Mutex
	turns    []turn
	requests []model.ChatRequest
}

func (m *scriptedModel) StreamChat(_ context.Context, req model.ChatRequest, fn func(model.Delta) error) error {
	m.mu.Lock()
	i := min(len(m.requests), len(m.turns)-1)
	m.requests = append(m.requests, req)
	t := m.turns[i]
	m.mu.Unlock()

	for _, d := range t.deltas {
		if err := fn(d); err != nil {
			return err
		}
	}
	return t.err
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func textTurn(parts ...string) turn {
	t := turn{}
	for _, p := range parts {
		t.deltas = append(t.deltas, model.Delta{Text: p})
	}
	return t
}

func toolTurn(name string, args map[string]any) turn {
	return turn{deltas: []model.Delta{{ToolCalls: []model.ToolCall{{Name: name, Arguments: args}}}}}
}

// endlessModel streams until the callback refuses.
type endlessModel struct{}

func (endlessModel) StreamChat(ctx context.Context, _ model.ChatRequest, fn func(model.Delta) error) error {
	for {
		if err := fn(model.Delta{Text: "."}); err != nil {
			return err
		}
	}
}

// stalledModel streams one delta and then waits for ctx.
type stalledModel struct{}

func (stalledModel) StreamChat(ctx context.Context, _ model.ChatRequest, fn func(model.Delta) error) error {
	if err := fn(model.Delta{Text: "partial "}); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// stalledRunner blocks every tool call until ctx is done.
type stalledRunner struct{}

func (stalledRunner) Execute(ctx context.Context, _ tools.Call) tools.Result {
	<-ctx.Done()
	return tools.Result{Status: tools.StatusTimeout, Error: ctx.Err().Error()}
}

func (stalledRunner) Specs() []model.ToolSpec {
	return []model.ToolSpec{{Name: "estimate_wait_time"}}
}

type fakeRunner struct {
	mu     sync.Mutex
	result tools.Result
	calls  []tools.Call
}

func (r *fakeRunner) Execute(_ context.Context, call tools.Call) tools.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.result
}

func (r *fakeRunner) Specs() []model.ToolSpec {
	return []model.ToolSpec{{Name: "estimate_wait_time"}}
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingObserver struct {
	mu        sync.Mutex
	intents   []string
	decisions []Decision
	failures  []FailureKind
}

func (o *recordingObserver) ObserveIntent(m intent.Match, _ tools.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.intents = append(o.intents, m.Intent)
}

func (o *recordingObserver) ObserveDecision(d Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d)
}

func (o *recordingObserver) ObserveFailure(f *Failure) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, f.Kind)
}

type malformedErr struct{}

func (malformedErr) Error() string   { return "bad json" }
func (malformedErr) Malformed() bool { return true }

type timeoutErr struct{}

func (timeoutErr) Error() string { return "stream idle" }
func (timeoutErr) Timeout() bool { return true }
