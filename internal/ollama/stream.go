// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
)

// =============================================================================
// STREAM READER
// =============================================================================

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 1 << 20

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	scanner *bufio.Scanner
	chunks  int
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StreamReader{scanner: sc}
}

// Process reads the stream and calls the callback for each chunk, in order.
// It stops at the first chunk marked done, at end of input, when the
// callback returns an error, or when ctx is cancelled. A stream that ends
// without a done chunk, or contains a line that is not valid JSON, is
// reported as an invalid response.
func (s *StreamReader) Process(ctx context.Context, callback func(StreamChunk) error) error {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return contextError(err)
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk StreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "malformed stream line", Cause: err}
		}
		if chunk.Error != "" {
			return &ClientError{Type: ErrTypeServer, Message: chunk.Error}
		}

		s.chunks++
		if err := callback(chunk); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contextError(ctxErr)
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "stream line too long", Cause: err}
		}
		return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
	}
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: "stream ended before completion"}
}

// Chunks returns how many chunks were delivered.
func (s *StreamReader) Chunks() int {
	return s.chunks
}
