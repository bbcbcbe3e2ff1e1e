// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/triage-router/internal/model"
)

// StreamChat streams a chat completion. Text is forwarded as it arrives;
// tool calls are delivered in one final Delta once all their fragments are
// in. Retries only happen while opening the stream.
func (c *Client) StreamChat(ctx context.Context, req model.ChatRequest, fn func(model.Delta) error) error {
	apiReq := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    toMessages(req.Messages),
		Tools:       toTools(req.Tools),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      true,
	}
	if req.Model != "" {
		apiReq.Model = req.Model
	}

	var stream *openai.ChatCompletionStream
	err := c.withRetry(ctx, func() error {
		var err error
		stream, err = c.api.CreateChatCompletionStream(ctx, apiReq)
		return err
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	calls := &toolCallBuffer{}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return classify(ctx, err)
		}

		for _, choice := range resp.Choices {
			for _, tc := range choice.Delta.ToolCalls {
				calls.add(tc)
			}
			if choice.Delta.Content != "" {
				if err := fn(model.Delta{Text: choice.Delta.Content}); err != nil {
					return err
				}
			}
		}
	}

	done, err := calls.complete()
	if err != nil {
		return err
	}
	if len(done) > 0 {
		return fn(model.Delta{ToolCalls: done})
	}
	return nil
}

// toolCallBuffer reassembles streamed tool-call fragments.
type toolCallBuffer struct {
	order []int
	parts map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func (b *toolCallBuffer) add(tc openai.ToolCall) {
	if b.parts == nil {
		b.parts = make(map[int]*partialCall)
	}

	idx := len(b.order) - 1
	if tc.Index != nil {
		idx = *tc.Index
	} else if tc.ID != "" || idx < 0 {
		idx = len(b.order)
	}

	p, ok := b.parts[idx]
	if !ok {
		p = &partialCall{}
		b.parts[idx] = p
		b.order = append(b.order, idx)
	}
	if tc.ID != "" {
		p.id = tc.ID
	}
	if tc.Function.Name != "" {
		p.name = tc.Function.Name
	}
	p.args.WriteString(tc.Function.Arguments)
}

func (b *toolCallBuffer) complete() ([]model.ToolCall, error) {
	out := make([]model.ToolCall, 0, len(b.order))
	for _, idx := range b.order {
		p := b.parts[idx]
		if p.name == "" {
			return nil, &Error{Message: "tool call without a name", malformed: true}
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(p.args.String()); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, &Error{Message: "tool call arguments are not valid JSON", Cause: err, malformed: true}
			}
		}
		out = append(out, model.ToolCall{ID: p.id, Name: p.name, Arguments: args})
	}
	return out, nil
}

func toMessages(msgs []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == model.RoleTool {
			msg.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toTools(specs []model.ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
