// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Error is a classified provider failure.
type Error struct {
	Status  int
	Message string
	Cause   error

	retryable bool
	timeout   bool
	malformed bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the request ran out of time.
func (e *Error) Timeout() bool {
	return e.timeout
}

// Malformed reports whether the provider sent output that could not be
// decoded.
func (e *Error) Malformed() bool {
	return e.malformed
}

// Retryable reports whether the request may succeed if repeated.
func (e *Error) Retryable() bool {
	return e.retryable
}

// classify converts go-openai, transport and context errors into *Error.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{
			Message: "request cancelled",
			Cause:   ctxErr,
			timeout: errors.Is(ctxErr, context.DeadlineExceeded),
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Message: "request timed out", Cause: err, timeout: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Message: "request timed out", Cause: err, timeout: true}
	}

	if status, msg, ok := statusOf(err); ok {
		return statusError(status, msg, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, openai.ErrTooManyEmptyStreamMessages) {
		return &Error{Message: "malformed provider output", Cause: err, malformed: true}
	}

	return &Error{Message: "provider request failed", Cause: err}
}

func statusOf(err error) (int, string, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, apiErr.Message, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, reqErr.HTTPStatus, true
	}
	return 0, "", false
}

func statusError(status int, msg string, cause error) *Error {
	e := &Error{Status: status, Message: msg, Cause: cause}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Cause = fmt.Errorf("%w: %v", ErrAuthFailed, cause)
		e.Message = "authentication failed"
	case status == http.StatusNotFound:
		e.Cause = fmt.Errorf("%w: %v", ErrModelNotFound, cause)
		e.Message = "model not found"
	case status == http.StatusTooManyRequests:
		e.Cause = fmt.Errorf("%w: %v", ErrRateLimited, cause)
		e.Message = "rate limited"
		e.retryable = true
	case status >= 500:
		e.retryable = true
		if e.Message == "" {
			e.Message = "provider error"
		}
	}
	if e.Message == "" {
		e.Message = "provider rejected request"
	}
	return e
}
