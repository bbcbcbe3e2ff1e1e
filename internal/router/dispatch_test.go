// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/triage-router/internal/model"
	"github.com/jeranaias/triage-router/internal/tools"
)

func drain(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("stream did not close")
			return nil
		}
	}
}

func TestDispatchStreamsInOrder(t *testing.T) {
	basic := &scriptedModel{turns: []turn{textTurn("Our ", "office ", "opens at 8.")}}
	advanced := &scriptedModel{turns: []turn{textTurn("wrong model")}}
	d := NewDispatcher(Responder{Model: basic, Name: "small"}, Responder{Model: advanced, Name: "big"},
		WithDispatcherLogger(quiet))

	chunks := drain(t, d.Dispatch(context.Background(), TierBasic, model.NewUtterance("hours?", nil)))

	require.Len(t, chunks, 3)
	assert.Equal(t, "Our ", chunks[0].Text)
	assert.Equal(t, "office ", chunks[1].Text)
	assert.Equal(t, "opens at 8.", chunks[2].Text)
	assert.Equal(t, 1, basic.calls())
	assert.Zero(t, advanced.calls())
	assert.Equal(t, "small", basic.requests[0].Model)
	assert.Empty(t, basic.requests[0].Tools, "no tools without a runner")
}

func TestDispatchSystemMessage(t *testing.T) {
	m := &scriptedModel{turns: []turn{textTurn("ok")}}
	fixed := time.Date(2025, 3, 2, 15, 4, 0, 0, time.UTC)
	d := NewDispatcher(Responder{}, Responder{Model: m},
		WithSystemPrompt("You are a triage assistant."),
		WithDispatchClock(func() time.Time { return fixed }, time.UTC),
		WithDispatcherLogger(quiet))

	history := []model.Message{model.NewUserMessage("earlier")}
	drain(t, d.Dispatch(context.Background(), TierAdvanced, model.NewUtterance("now", history)))

	msgs := m.requests[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are a triage assistant.\n\nCurrent date and time: 2025-03-02 15:04 UTC", msgs[0].Content)
	assert.Equal(t, "earlier", msgs[1].Content)
	assert.Equal(t, "now", msgs[2].Content)
}

func TestDispatchRunsToolsThenFollowsUp(t *testing.T) {
	m := &scriptedModel{turns: []turn{
		toolTurn(tools.EstimateWaitTime, map[string]any{"urgency_level": "urgent"}),
		textTurn("About 30-45 minutes."),
	}}
	runner := &fakeRunner{result: tools.Result{Status: tools.StatusOK, Output: `{"estimated_wait":"30-45 minutes"}`}}
	d := NewDispatcher(Responder{Model: m}, Responder{}, WithTools(runner), WithDispatcherLogger(quiet))

	chunks := drain(t, d.Dispatch(context.Background(), TierBasic, model.NewUtterance("how long?", nil)))

	require.Len(t, chunks, 1)
	assert.Equal(t, "About 30-45 minutes.", chunks[0].Text)
	require.Equal(t, 1, runner.count())
	assert.Equal(t, "urgent", runner.calls[0].Params["urgency_level"])

	require.Equal(t, 2, m.calls())
	follow := m.requests[1].Messages
	require.Len(t, follow, 3)
	assert.Equal(t, model.RoleAssistant, follow[1].Role)
	require.Len(t, follow[1].ToolCalls, 1)
	assert.NotEmpty(t, follow[1].ToolCalls[0].ID)
	assert.Equal(t, model.RoleTool, follow[2].Role)
	assert.Equal(t, follow[1].ToolCalls[0].ID, follow[2].ToolCallID)
	assert.Contains(t, follow[2].Content, "30-45 minutes")
	assert.NotEmpty(t, m.requests[0].Tools)
}

func TestNestingGuard(t *testing.T) {
	tests := []struct {
		maxNested int
		wantCalls int
	}{
		{maxNested: 3, wantCalls: 4},
		{maxNested: 0, wantCalls: 1},
		{maxNested: 1, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("max_%d", tt.maxNested), func(t *testing.T) {
			// The model asks for a tool every time.
			m := &scriptedModel{turns: []turn{{
				deltas: []model.Delta{
					{Text: "checking. "},
					{ToolCalls: []model.ToolCall{{Name: "estimate_wait_time"}}},
				},
			}}}
			runner := &fakeRunner{result: tools.Result{Status: tools.StatusOK, Output: "x"}}
			d := NewDispatcher(Responder{Model: m}, Responder{}, WithTools(runner),
				WithMaxNested(tt.maxNested), WithDispatcherLogger(quiet))

			chunks := drain(t, d.Dispatch(context.Background(), TierBasic, model.NewUtterance("q", nil)))

			require.NotEmpty(t, chunks)
			last := chunks[len(chunks)-1]
			require.True(t, last.Terminal())
			assert.Equal(t, FailureTooManyNestedCalls, last.Failure.Kind)
			for _, c := range chunks[:len(chunks)-1] {
				assert.False(t, c.Terminal())
			}
			assert.Equal(t, tt.wantCalls, m.calls())
			assert.Equal(t, tt.wantCalls, runner.count())
			assert.Len(t, chunks, tt.wantCalls+1)
		})
	}
}

func TestDispatchAtDepthPastLimit(t *testing.T) {
	m := &scriptedModel{turns: []turn{textTurn("never")}}
	d := NewDispatcher(Responder{Model: m}, Responder{}, WithDispatcherLogger(quiet))

	chunks := drain(t, d.DispatchAt(context.Background(), TierBasic, nil, 4))
	require.Len(t, chunks, 1)
	assert.Equal(t, FailureTooManyNestedCalls, chunks[0].Failure.Kind)
	assert.Zero(t, m.calls())
}

func TestDispatchFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"deadline", fmt.Errorf("read body: %w", context.DeadlineExceeded), FailureTimeout},
		{"client timeout", timeoutErr{}, FailureTimeout},
		{"malformed", fmt.Errorf("decode: %w", malformedErr{}), FailureMalformedOutput},
		{"connection", errors.New("dial tcp: connection refused"), FailureProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{turns: []turn{{deltas: []model.Delta{{Text: "partial"}}, err: tt.err}}}
			d := NewDispatcher(Responder{}, Responder{Model: m}, WithDispatcherLogger(quiet))

			chunks := drain(t, d.Dispatch(context.Background(), TierAdvanced, model.NewUtterance("q", nil)))

			require.Len(t, chunks, 2)
			assert.Equal(t, "partial", chunks[0].Text)
			require.True(t, chunks[1].Terminal())
			assert.Equal(t, tt.want, chunks[1].Failure.Kind)
			assert.ErrorIs(t, chunks[1].Failure, tt.err)
		})
	}
}

func TestDispatchDeadlineMidStream(t *testing.T) {
	d := NewDispatcher(Responder{Model: stalledModel{}}, Responder{}, WithDispatcherLogger(quiet))

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		chunks := drain(t, d.Dispatch(ctx, TierBasic, model.NewUtterance("q", nil)))
		cancel()

		require.NotEmpty(t, chunks, "run %d", i)
		last := chunks[len(chunks)-1]
		require.True(t, last.Terminal(), "run %d ended without a failure", i)
		assert.Equal(t, FailureTimeout, last.Failure.Kind, "run %d", i)
	}
}

func TestDispatchDeadlineDuringToolCall(t *testing.T) {
	m := &scriptedModel{turns: []turn{toolTurn("estimate_wait_time", nil), textTurn("never")}}
	d := NewDispatcher(Responder{Model: m}, Responder{},
		WithDispatcherLogger(quiet), WithTools(stalledRunner{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	chunks := drain(t, d.Dispatch(ctx, TierBasic, model.NewUtterance("q", nil)))

	require.Len(t, chunks, 1)
	require.True(t, chunks[0].Terminal())
	assert.Equal(t, FailureTimeout, chunks[0].Failure.Kind)
	assert.Equal(t, 1, m.calls())
}

func TestDispatchMissingModel(t *testing.T) {
	d := NewDispatcher(Responder{}, Responder{}, WithDispatcherLogger(quiet))
	chunks := drain(t, d.Dispatch(context.Background(), TierAdvanced, model.NewUtterance("q", nil)))
	require.Len(t, chunks, 1)
	assert.Equal(t, FailureProviderUnavailable, chunks[0].Failure.Kind)
}

func TestDispatchToolsWithoutRunner(t *testing.T) {
	m := &scriptedModel{turns: []turn{toolTurn("estimate_wait_time", nil)}}
	d := NewDispatcher(Responder{Model: m}, Responder{}, WithDispatcherLogger(quiet))
	chunks := drain(t, d.Dispatch(context.Background(), TierBasic, model.NewUtterance("q", nil)))
	require.Len(t, chunks, 1)
	assert.Equal(t, FailureProviderUnavailable, chunks[0].Failure.Kind)
}

func TestDispatchCancellation(t *testing.T) {
	d := NewDispatcher(Responder{Model: endlessModel{}}, Responder{}, WithDispatcherLogger(quiet))
	ctx, cancel := context.WithCancel(context.Background())
	ch := d.Dispatch(ctx, TierBasic, model.NewUtterance("q", nil))

	first := <-ch
	assert.Equal(t, ".", first.Text)
	cancel()

	for _, c := range drain(t, ch) {
		assert.False(t, c.Terminal(), "cancellation is not reported as a failure")
	}
}
