// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the triage tool system.
//
// Tools are called two ways: directly by the intent short-circuit, and by a
// model that asked for them during a streamed answer. Both go through the
// Executor, which validates parameters against the tool's schema, applies a
// timeout and records the execution.
//
// # Key Types
//
//   - Tool: tool definition with name, description, schema and executor
//   - Registry: set of available tools, exported to models as ToolSpecs
//   - Executor: validated, time-bounded execution with history
//   - Result: outcome with a Status that callers map to user-facing errors
//
// # Triage Tools
//
//   - check_symptoms: record symptoms, flag urgent cases
//   - schedule_appointment: book the next free slot
//   - get_medical_history: patient chart summary
//   - estimate_wait_time: wait estimate per urgency level
//   - symptom_intake: ask the patient to describe their symptoms
package tools
