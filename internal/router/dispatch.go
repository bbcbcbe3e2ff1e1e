// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jeranaias/triage-router/internal/model"
	"github.com/jeranaias/triage-router/internal/tools"
)

// DefaultMaxNested is how many tool follow-up rounds one utterance may
// trigger.
const DefaultMaxNested = 3

// ChatModel streams a chat completion. ollama.Client and cloud.Client both
// satisfy it.
type ChatModel interface {
	StreamChat(ctx context.Context, req model.ChatRequest, fn func(model.Delta) error) error
}

// ToolRunner runs tool calls for the model. *tools.Executor satisfies it.
type ToolRunner interface {
	Execute(ctx context.Context, call tools.Call) tools.Result
	Specs() []model.ToolSpec
}

// Responder is one tier's model.
type Responder struct {
	Model ChatModel
	// Name is passed through as the request's model name.
	Name string
}

// Chunk is one piece of a streamed answer. A chunk with a Failure is the
// last one on its channel.
type Chunk struct {
	Text    string   `json:"text,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Terminal reports whether c ends the stream with an error.
func (c Chunk) Terminal() bool {
	return c.Failure != nil
}

func failureChunk(kind FailureKind, msg string, cause error) Chunk {
	return Chunk{Failure: &Failure{Kind: kind, Message: msg, Cause: cause}}
}

// Dispatcher streams answers from the model of a given tier.
type Dispatcher struct {
	responders map[Tier]Responder
	tools      ToolRunner
	system     string
	maxNested  int
	now        func() time.Time
	loc        *time.Location
	logger     *log.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTools lets models call tools.
func WithTools(t ToolRunner) DispatcherOption {
	return func(d *Dispatcher) { d.tools = t }
}

// WithSystemPrompt sets the system message sent ahead of the conversation.
// The current date and time is appended when the message is built.
func WithSystemPrompt(prompt string) DispatcherOption {
	return func(d *Dispatcher) { d.system = strings.TrimSpace(prompt) }
}

// WithMaxNested bounds tool follow-up rounds. n < 0 is treated as 0.
func WithMaxNested(n int) DispatcherOption {
	return func(d *Dispatcher) { d.maxNested = max(n, 0) }
}

// WithDispatchClock sets the clock and time zone used in the system message.
func WithDispatchClock(now func() time.Time, loc *time.Location) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *log.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher. A responder with a nil Model makes
// its tier answer with a provider_unavailable failure.
func NewDispatcher(basic, advanced Responder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		responders: map[Tier]Responder{TierBasic: basic, TierAdvanced: advanced},
		maxNested:  DefaultMaxNested,
		now:        time.Now,
		loc:        time.Local,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxNested returns the nesting bound.
func (d *Dispatcher) MaxNested() int {
	return d.maxNested
}

// Dispatch answers u on tier's model. Chunks arrive in order on the
// returned channel, which is closed when the answer is complete, after a
// terminal failure chunk, or once ctx is cancelled. A ctx whose deadline
// passes still ends with a timeout chunk, so callers read to the close.
func (d *Dispatcher) Dispatch(ctx context.Context, tier Tier, u model.Utterance) <-chan Chunk {
	return d.DispatchAt(ctx, tier, d.conversation(u), 0)
}

// DispatchAt continues a conversation that is already depth tool rounds
// deep. It ends with too_many_nested_calls when depth exceeds MaxNested.
func (d *Dispatcher) DispatchAt(ctx context.Context, tier Tier, msgs []model.Message, depth int) <-chan Chunk {
	ch := make(chan Chunk, 1)
	msgs = append([]model.Message(nil), msgs...)

	go func() {
		defer close(ch)
		d.run(ctx, tier, msgs, depth, ch)
	}()
	return ch
}

func (d *Dispatcher) conversation(u model.Utterance) []model.Message {
	var msgs []model.Message
	if d.system != "" {
		msgs = append(msgs, model.NewSystemMessage(d.systemMessage()))
	}
	return append(msgs, u.Messages()...)
}

func (d *Dispatcher) systemMessage() string {
	return fmt.Sprintf("%s\n\nCurrent date and time: %s",
		d.system, d.now().In(d.loc).Format("2006-01-02 15:04 MST"))
}

func (d *Dispatcher) run(ctx context.Context, tier Tier, msgs []model.Message, depth int, ch chan<- Chunk) {
	if depth > d.maxNested {
		d.logger.Warn("nesting guard tripped", "tier", tier, "depth", depth, "max", d.maxNested)
		finish(ctx, ch, failureChunk(FailureTooManyNestedCalls,
			fmt.Sprintf("%d nested calls exceeds the limit of %d", depth, d.maxNested), nil))
		return
	}

	resp, ok := d.responders[tier]
	if !ok || resp.Model == nil {
		finish(ctx, ch, failureChunk(FailureProviderUnavailable,
			fmt.Sprintf("no model configured for %s tier", tier), nil))
		return
	}

	req := model.ChatRequest{Model: resp.Name, Messages: msgs}
	if d.tools != nil {
		req.Tools = d.tools.Specs()
	}

	var (
		text  strings.Builder
		calls []model.ToolCall
	)
	err := resp.Model.StreamChat(ctx, req, func(delta model.Delta) error {
		if delta.Text != "" {
			text.WriteString(delta.Text)
			if !send(ctx, ch, Chunk{Text: delta.Text}) {
				return ctx.Err()
			}
		}
		calls = append(calls, delta.ToolCalls...)
		return nil
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		f := classifyFailure(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			f = &Failure{Kind: FailureTimeout, Message: err.Error(), Cause: err}
		}
		d.logger.Warn("responder failed", "tier", tier, "depth", depth, "kind", f.Kind, "err", err)
		finish(ctx, ch, Chunk{Failure: f})
		return
	}
	if len(calls) == 0 {
		return
	}
	if d.tools == nil {
		finish(ctx, ch, failureChunk(FailureProviderUnavailable, "model requested tools but none are available", nil))
		return
	}

	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}
	msgs = append(msgs, model.Message{Role: model.RoleAssistant, Content: text.String(), ToolCalls: calls})
	for _, call := range calls {
		res := d.tools.Execute(ctx, tools.CallFromModel(call))
		d.logger.Debug("tool call", "tool", call.Name, "status", res.Status, "depth", depth, "duration", res.Duration)
		msgs = append(msgs, model.NewToolMessage(call, res.Text()))
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			d.logger.Warn("deadline passed during tool calls", "tier", tier, "depth", depth)
			finish(ctx, ch, failureChunk(FailureTimeout, "deadline passed during tool calls", err))
		}
		return
	}

	d.run(ctx, tier, msgs, depth+1, ch)
}

// finish delivers a terminal chunk. Only cancellation abandons it: a
// caller whose deadline passed is still reading and must see the timeout.
func finish(ctx context.Context, ch chan<- Chunk, c Chunk) {
	select {
	case ch <- c:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			ch <- c
		}
	}
}

// send delivers c unless ctx is done first.
func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
