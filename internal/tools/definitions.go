// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/triage-router/internal/model"
)

// =============================================================================
// PERMISSION LEVELS
// =============================================================================

// PermissionLevel determines whether a tool may run.
type PermissionLevel int

const (
	// PermissionAuto - Always allowed.
	PermissionAuto PermissionLevel = iota

	// PermissionNever - Disabled by configuration.
	PermissionNever
)

// String returns the string representation of a permission level.
func (p PermissionLevel) String() string {
	switch p {
	case PermissionAuto:
		return "Auto"
	case PermissionNever:
		return "Never"
	default:
		return "Unknown"
	}
}

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool represents an executable tool.
type Tool struct {
	// Name is the tool identifier (e.g., "check_symptoms")
	Name string

	// Description explains what the tool does. The first line is sent to
	// models.
	Description string

	// Schema defines the tool's parameters
	Schema Schema

	// Permission determines whether the tool may run
	Permission PermissionLevel

	// Executor handles the actual execution
	Executor ToolExecutor
}

// ShortDescription returns the first line of Description.
func (t *Tool) ShortDescription() string {
	if idx := strings.Index(t.Description, "\n"); idx != -1 {
		return t.Description[:idx]
	}
	return t.Description
}

// Schema defines a tool's parameters.
type Schema struct {
	Parameters []Parameter
}

// Parameter defines a single tool parameter.
type Parameter struct {
	// Name of the parameter
	Name string

	// Type is the parameter type ("string", "number", "boolean", "array")
	Type string

	// Required indicates if the parameter must be provided
	Required bool

	// Description explains the parameter
	Description string

	// Enum contains allowed values for string parameters
	Enum []string

	// Items is the element type for arrays
	Items string
}

// JSONSchema renders the schema as a JSON schema object.
func (s Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Parameters))
	required := []string{}

	for _, p := range s.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == "array" && p.Items != "" {
			prop["items"] = map[string]any{"type": p.Items}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// =============================================================================
// TOOL EXECUTOR INTERFACE
// =============================================================================

// ToolExecutor is the interface for individual tool execution.
// Returning a *ValidationError marks the call as invalid rather than failed.
type ToolExecutor interface {
	Execute(ctx context.Context, params map[string]any) (Result, error)
}

// ExecutorFunc adapts a function to ToolExecutor.
type ExecutorFunc func(ctx context.Context, params map[string]any) (Result, error)

// Execute implements ToolExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, params map[string]any) (Result, error) {
	return f(ctx, params)
}

// Status classifies the outcome of a tool call.
type Status int

const (
	StatusOK Status = iota
	StatusUnknownTool
	StatusDenied
	StatusInvalid
	StatusFailed
	StatusTimeout
)

// String returns the string representation of a status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnknownTool:
		return "unknown_tool"
	case StatusDenied:
		return "denied"
	case StatusInvalid:
		return "invalid"
	case StatusFailed:
		return "failed"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Result holds the outcome of a tool execution.
type Result struct {
	Status Status

	// Output is the tool's output (for successful execution)
	Output string

	// Error is the error message (for failed execution)
	Error string

	// Duration is how long execution took
	Duration time.Duration

	// Truncated indicates output was truncated
	Truncated bool
}

// Success reports whether the call completed.
func (r Result) Success() bool {
	return r.Status == StatusOK
}

// Text is what gets shown to the model or the user: the output on success,
// the error otherwise.
func (r Result) Text() string {
	if r.Success() {
		return r.Output
	}
	return "Error: " + r.Error
}

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds all available tools.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*Tool
	overrides map[string]PermissionLevel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]*Tool),
		overrides: make(map[string]PermissionLevel),
	}
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Disable blocks a tool without unregistering it.
func (r *Registry) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = PermissionNever
}

// Permission returns the effective permission for a tool.
func (r *Registry) Permission(name string) PermissionLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if override, ok := r.overrides[name]; ok {
		return override
	}
	if tool := r.tools[name]; tool != nil {
		return tool.Permission
	}
	return PermissionNever
}

// Specs exports the enabled tools for model tool calling.
func (r *Registry) Specs() []model.ToolSpec {
	var specs []model.ToolSpec
	for _, tool := range r.All() {
		if r.Permission(tool.Name) == PermissionNever {
			continue
		}
		specs = append(specs, model.ToolSpec{
			Name:        tool.Name,
			Description: tool.ShortDescription(),
			Parameters:  tool.Schema.JSONSchema(),
		})
	}
	return specs
}
