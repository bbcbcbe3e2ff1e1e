// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/triage-router/internal/model"
)

// Call is one tool invocation.
type Call struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// CallFromModel converts a model's tool call.
func CallFromModel(tc model.ToolCall) Call {
	return Call{Name: tc.Name, Params: tc.Arguments}
}

// =============================================================================
// EXECUTION RECORD
// =============================================================================

// ExecutionRecord tracks the result of a tool execution.
type ExecutionRecord struct {
	ToolName  string
	Params    map[string]any
	Result    Result
	Timestamp time.Time
}

// =============================================================================
// EXECUTOR
// =============================================================================

// DefaultToolTimeout is applied when the context has no deadline.
const DefaultToolTimeout = 30 * time.Second

const (
	defaultMaxOutputSize = 30000
	maxHistorySize       = 1000
)

// Executor runs tool calls with validation, timeouts and history.
// It is safe for concurrent use.
type Executor struct {
	registry      *Registry
	maxOutputSize int
	timeout       time.Duration

	mu      sync.Mutex
	history []ExecutionRecord
}

// NewExecutor creates a new tool executor with the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry:      registry,
		maxOutputSize: defaultMaxOutputSize,
		timeout:       DefaultToolTimeout,
	}
}

// SetTimeout changes the per-call timeout applied when the context has no
// deadline. Non-positive values restore DefaultToolTimeout.
func (e *Executor) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultToolTimeout
	}
	e.timeout = d
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Specs exports the registry's enabled tools.
func (e *Executor) Specs() []model.ToolSpec {
	return e.registry.Specs()
}

// History returns a copy of the execution history.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]ExecutionRecord, len(e.history))
	copy(result, e.history)
	return result
}

// Execute runs a tool call and returns the result. It never panics on bad
// input; problems are reported through Result.Status.
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	start := time.Now()
	result := e.execute(ctx, call)
	result.Duration = time.Since(start)

	e.addToHistory(ExecutionRecord{
		ToolName:  call.Name,
		Params:    call.Params,
		Result:    result,
		Timestamp: start,
	})
	return result
}

func (e *Executor) execute(ctx context.Context, call Call) Result {
	tool := e.registry.Get(call.Name)
	if tool == nil {
		return Result{Status: StatusUnknownTool, Error: "unknown tool: " + call.Name}
	}

	if e.registry.Permission(call.Name) == PermissionNever {
		return Result{Status: StatusDenied, Error: "tool is disabled: " + call.Name}
	}

	params := call.Params
	if params == nil {
		params = map[string]any{}
	}
	if err := ValidateParams(tool.Schema, params); err != nil {
		return Result{Status: StatusInvalid, Error: "parameter validation failed: " + err.Error()}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		r, err := tool.Executor.Execute(ctx, params)
		done <- outcome{r, err}
	}()

	var result Result
	select {
	case o := <-done:
		result = o.result
		if o.err != nil {
			var verr *ValidationError
			switch {
			case errors.As(o.err, &verr):
				result = Result{Status: StatusInvalid, Error: "parameter validation failed: " + verr.Error()}
			case errors.Is(o.err, context.DeadlineExceeded):
				result = Result{Status: StatusTimeout, Error: "tool execution timed out"}
			case errors.Is(o.err, context.Canceled):
				result = Result{Status: StatusFailed, Error: "tool execution cancelled"}
			default:
				result = Result{Status: StatusFailed, Error: o.err.Error()}
			}
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			result = Result{Status: StatusFailed, Error: "tool execution cancelled"}
		} else {
			result = Result{Status: StatusTimeout, Error: "tool execution timed out: " + ctx.Err().Error()}
		}
	}

	if len(result.Output) > e.maxOutputSize {
		result.Output = truncateUTF8(result.Output, e.maxOutputSize)
		result.Truncated = true
	}
	return result
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (e *Executor) addToHistory(record ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) >= maxHistorySize {
		e.history = e.history[len(e.history)-maxHistorySize+1:]
	}
	e.history = append(e.history, record)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Param + ": " + e.Message
}

// ValidateParams checks params against schema: required parameters, types
// and enum membership.
func ValidateParams(schema Schema, params map[string]any) error {
	for _, param := range schema.Parameters {
		val, exists := params[param.Name]

		if param.Required && (!exists || val == nil) {
			return &ValidationError{Param: param.Name, Message: "required parameter is missing"}
		}
		if !exists || val == nil {
			continue
		}

		if err := validateType(param, val); err != nil {
			return err
		}

		if len(param.Enum) > 0 {
			s, _ := val.(string)
			if !contains(param.Enum, s) {
				return &ValidationError{
					Param:   param.Name,
					Message: fmt.Sprintf("must be one of %v, got %q", param.Enum, s),
				}
			}
		}
	}
	return nil
}

func validateType(param Parameter, val any) error {
	ok := true
	switch param.Type {
	case "string":
		_, ok = val.(string)
	case "number":
		switch val.(type) {
		case int, int32, int64, float32, float64:
		default:
			ok = false
		}
	case "boolean":
		_, ok = val.(bool)
	case "array":
		switch val.(type) {
		case []any, []string:
		default:
			ok = false
		}
	case "object":
		_, ok = val.(map[string]any)
	}
	if !ok {
		return &ValidationError{Param: param.Name, Message: "expected " + param.Type}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
