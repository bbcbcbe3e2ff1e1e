// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "Echo text back.\nLonger help text.",
		Schema: Schema{Parameters: []Parameter{
			{Name: "text", Type: "string", Required: true},
			{Name: "mode", Type: "string", Enum: []string{"plain", "loud"}},
			{Name: "count", Type: "number"},
		}},
		Executor: ExecutorFunc(func(_ context.Context, p map[string]any) (Result, error) {
			text := p["text"].(string)
			if p["mode"] == "loud" {
				text = strings.ToUpper(text)
			}
			return Result{Output: text}, nil
		}),
	}
}

func TestExecutorExecute(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	exec := NewExecutor(reg)

	tests := []struct {
		name   string
		call   Call
		status Status
		output string
	}{
		{"ok", Call{Name: "echo", Params: map[string]any{"text": "hi"}}, StatusOK, "hi"},
		{"enum ok", Call{Name: "echo", Params: map[string]any{"text": "hi", "mode": "loud"}}, StatusOK, "HI"},
		{"unknown tool", Call{Name: "nope"}, StatusUnknownTool, ""},
		{"missing required", Call{Name: "echo", Params: map[string]any{}}, StatusInvalid, ""},
		{"nil params", Call{Name: "echo"}, StatusInvalid, ""},
		{"wrong type", Call{Name: "echo", Params: map[string]any{"text": 42}}, StatusInvalid, ""},
		{"bad enum", Call{Name: "echo", Params: map[string]any{"text": "hi", "mode": "quiet"}}, StatusInvalid, ""},
		{"number accepts float", Call{Name: "echo", Params: map[string]any{"text": "x", "count": 2.0}}, StatusOK, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := exec.Execute(context.Background(), tt.call)
			if res.Status != tt.status {
				t.Fatalf("status = %v, want %v (error %q)", res.Status, tt.status, res.Error)
			}
			if res.Output != tt.output {
				t.Errorf("output = %q, want %q", res.Output, tt.output)
			}
		})
	}

	if got := len(exec.History()); got != len(tests) {
		t.Errorf("history has %d records, want %d", got, len(tests))
	}
}

func TestExecutorDisabledTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	reg.Disable("echo")

	res := NewExecutor(reg).Execute(context.Background(), Call{Name: "echo", Params: map[string]any{"text": "hi"}})
	if res.Status != StatusDenied {
		t.Errorf("status = %v, want denied", res.Status)
	}
	if len(reg.Specs()) != 0 {
		t.Error("disabled tool should not be advertised")
	}
}

func TestExecutorErrorMapping(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{Name: "invalid", Executor: ExecutorFunc(func(context.Context, map[string]any) (Result, error) {
		return Result{}, &ValidationError{Param: "x", Message: "bad"}
	})})
	reg.Register(&Tool{Name: "broken", Executor: ExecutorFunc(func(context.Context, map[string]any) (Result, error) {
		return Result{}, errors.New("backend down")
	})})
	reg.Register(&Tool{Name: "slow", Executor: ExecutorFunc(func(ctx context.Context, _ map[string]any) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})})
	exec := NewExecutor(reg)

	if res := exec.Execute(context.Background(), Call{Name: "invalid"}); res.Status != StatusInvalid {
		t.Errorf("invalid: status = %v", res.Status)
	}
	res := exec.Execute(context.Background(), Call{Name: "broken"})
	if res.Status != StatusFailed || res.Error != "backend down" {
		t.Errorf("broken: got %v %q", res.Status, res.Error)
	}
	if res.Text() != "Error: backend down" {
		t.Errorf("Text() = %q", res.Text())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if res := exec.Execute(ctx, Call{Name: "slow"}); res.Status != StatusTimeout {
		t.Errorf("slow: status = %v", res.Status)
	}
}

func TestRegistrySpecs(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())

	specs := reg.Specs()
	if len(specs) != 1 {
		t.Fatalf("got %d specs", len(specs))
	}
	spec := specs[0]
	if spec.Description != "Echo text back." {
		t.Errorf("description = %q", spec.Description)
	}
	required, _ := spec.Parameters["required"].([]string)
	if len(required) != 1 || required[0] != "text" {
		t.Errorf("required = %v", spec.Parameters["required"])
	}
	props := spec.Parameters["properties"].(map[string]any)
	mode := props["mode"].(map[string]any)
	if enum, _ := mode["enum"].([]string); len(enum) != 2 {
		t.Errorf("mode enum = %v", mode["enum"])
	}
}

func TestExecutorTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{
		Name: "slow",
		Executor: ExecutorFunc(func(ctx context.Context, _ map[string]any) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}),
	})
	exec := NewExecutor(reg)
	exec.SetTimeout(20 * time.Millisecond)

	res := exec.Execute(context.Background(), Call{Name: "slow"})
	if res.Status != StatusTimeout {
		t.Fatalf("Status = %v, want %v", res.Status, StatusTimeout)
	}
}

func TestExecutorCancelled(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{
		Name: "slow",
		Executor: ExecutorFunc(func(ctx context.Context, _ map[string]any) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}),
	})
	exec := NewExecutor(reg)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	res := exec.Execute(ctx, Call{Name: "slow"})
	if res.Status != StatusFailed {
		t.Fatalf("Status = %v, want %v (error %q)", res.Status, StatusFailed, res.Error)
	}
	if !strings.Contains(res.Error, "cancelled") {
		t.Errorf("Error = %q, want it to mention cancellation", res.Error)
	}
}

func TestExecutorTruncatesOnRuneBoundary(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	exec := NewExecutor(reg)
	exec.maxOutputSize = 5

	// Each é is two bytes, so a five byte cut falls inside the third.
	res := exec.Execute(context.Background(), Call{Name: "echo", Params: map[string]any{"text": "ééé"}})
	if !res.Truncated {
		t.Fatal("expected truncated output")
	}
	if res.Output != "éé" {
		t.Errorf("Output = %q, want %q", res.Output, "éé")
	}
	if !utf8.ValidString(res.Output) {
		t.Errorf("Output %q is not valid UTF-8", res.Output)
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"a€b", 2, "a"},
		{"a€b", 4, "a€"},
		{"€", 0, ""},
	}
	for _, tt := range tests {
		if got := truncateUTF8(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateUTF8(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
