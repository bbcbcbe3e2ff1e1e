// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind is the error taxonomy carried by a terminal chunk.
type FailureKind string

const (
	// FailureProviderUnavailable covers network and auth failures calling a
	// model or tool.
	FailureProviderUnavailable FailureKind = "provider_unavailable"
	FailureTimeout             FailureKind = "timeout"
	// FailureMalformedOutput means a provider answered with something that
	// could not be decoded.
	FailureMalformedOutput FailureKind = "malformed_output"
	// FailureTooManyNestedCalls means tool follow-ups went past MaxNested.
	FailureTooManyNestedCalls FailureKind = "too_many_nested_calls"
	// FailureInvalidIntentParams means a matched intent's tool rejected its
	// parameters.
	FailureInvalidIntentParams FailureKind = "invalid_intent_params"
)

// Failure is a routing failure expressed as a value.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Cause   error       `json:"-"`
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// classifyFailure maps a responder error onto the taxonomy. Clients signal
// their own timeouts and decode failures through Timeout() and Malformed()
// methods on the error.
func classifyFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	kind := FailureProviderUnavailable
	var timeout interface{ Timeout() bool }
	var malformed interface{ Malformed() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = FailureTimeout
	case errors.As(err, &timeout) && timeout.Timeout():
		kind = FailureTimeout
	case errors.As(err, &malformed) && malformed.Malformed():
		kind = FailureMalformedOutput
	}
	return &Failure{Kind: kind, Message: err.Error(), Cause: err}
}
