// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/triage-router/internal/model"
)

func newTestClient(url string) *Client {
	return NewClientWithConfig(&ClientConfig{
		BaseURL:    url,
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
	})
}

func TestNewClientWithConfigDefaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://localhost:11434/"})
	cfg := c.Config()

	if cfg.BaseURL != "http://localhost:11434" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.DefaultModel != DefaultModel {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}

	if got := NewClientWithConfig(&ClientConfig{MaxRetries: -1}).Config().MaxRetries; got != 0 {
		t.Errorf("negative MaxRetries should disable retries, got %d", got)
	}
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("generate must not stream")
		}
		if req.Model != DefaultModel {
			t.Errorf("model = %q", req.Model)
		}
		json.NewEncoder(w).Encode(GenerateResponse{Model: req.Model, Response: " CHEAP\n", Done: true})
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).Complete(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != " CHEAP\n" {
		t.Errorf("Complete = %q", got)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		malformed bool
		notFound  bool
	}{
		{
			name: "model missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			notFound: true,
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "{not json")
			},
			malformed: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(OllamaError{Error: "out of memory"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(server.URL).Complete(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *ClientError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ClientError, got %T", err)
			}
			if ce.Malformed() != tt.malformed {
				t.Errorf("Malformed() = %v", ce.Malformed())
			}
			if IsModelNotFound(err) != tt.notFound {
				t.Errorf("IsModelNotFound() = %v", IsModelNotFound(err))
			}
		})
	}
}

func TestCompleteRetriesWhenNotRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).Complete(context.Background(), "x")
	if !IsNotRunning(err) {
		t.Fatalf("expected not running, got %v", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).Complete(ctx, "x")
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("timeouts must not be retried, got %d requests", hits.Load())
	}
}

func streamServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
}

func TestStreamChat(t *testing.T) {
	server := streamServer(t,
		`{"model":"m","message":{"role":"assistant","content":"Please "},"done":false}`,
		``,
		`{"model":"m","message":{"role":"assistant","content":"rest."},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"estimate_wait_time","arguments":{"urgency_level":"routine"}}}]},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
	)
	defer server.Close()

	var text strings.Builder
	var calls []model.ToolCall
	err := newTestClient(server.URL).StreamChat(context.Background(), model.ChatRequest{
		Messages: []model.Message{model.NewUserMessage("hi")},
	}, func(d model.Delta) error {
		text.WriteString(d.Text)
		calls = append(calls, d.ToolCalls...)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if text.String() != "Please rest." {
		t.Errorf("text = %q", text.String())
	}
	if len(calls) != 1 || calls[0].Name != "estimate_wait_time" || calls[0].Arguments["urgency_level"] != "routine" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestStreamChatMalformed(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"garbage line", []string{`{"message":{"content":"a"},"done":false}`, `<html>`}},
		{"truncated stream", []string{`{"message":{"content":"a"},"done":false}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := streamServer(t, tt.lines...)
			defer server.Close()

			err := newTestClient(server.URL).StreamChat(context.Background(), model.ChatRequest{}, func(model.Delta) error { return nil })
			var ce *ClientError
			if !errors.As(err, &ce) || !ce.Malformed() {
				t.Fatalf("expected malformed error, got %v", err)
			}
		})
	}
}

func TestStreamChatCallbackErrorStops(t *testing.T) {
	server := streamServer(t,
		`{"message":{"content":"a"},"done":false}`,
		`{"message":{"content":"b"},"done":false}`,
		`{"message":{"content":""},"done":true}`,
	)
	defer server.Close()

	stop := errors.New("stop")
	seen := 0
	err := newTestClient(server.URL).StreamChat(context.Background(), model.ChatRequest{}, func(model.Delta) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if seen != 1 {
		t.Errorf("callback ran %d times after error", seen)
	}
}

func TestFromMessages(t *testing.T) {
	call := model.ToolCall{ID: "c1", Name: "get_medical_history", Arguments: map[string]any{"patient_id": "p1"}}
	msgs := FromMessages([]model.Message{
		model.NewSystemMessage("sys"),
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{call}},
		model.NewToolMessage(call, "{}"),
	})

	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[1].ToolCalls[0].Function.Name != "get_medical_history" {
		t.Errorf("tool call not converted: %+v", msgs[1])
	}
	if msgs[2].Role != "tool" || msgs[2].ToolName != "get_medical_history" {
		t.Errorf("tool message not converted: %+v", msgs[2])
	}
}
