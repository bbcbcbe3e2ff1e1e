// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Answer rendering and user-facing failure text.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/triage-router/internal/router"
)

// Messages shown to patients in place of raw provider errors.
const (
	MsgTooManyNested = "Complex medical inquiry detected - please speak with a healthcare provider directly."
	MsgGeneric       = "I apologize, but I encountered an error. Please try rephrasing your question."
	MsgMedical       = "I apologize, but I encountered an error. For medical questions, please consult with a healthcare provider."
	MsgInvalidIntent = "I couldn't complete that request with the details given. Please try rephrasing it."
)

// FailureMessage is the patient-facing text for f.
func FailureMessage(f *router.Failure) string {
	if f == nil {
		return ""
	}
	switch f.Kind {
	case router.FailureTooManyNestedCalls:
		return MsgTooManyNested
	case router.FailureInvalidIntentParams:
		return MsgInvalidIntent
	case router.FailureProviderUnavailable, router.FailureTimeout:
		return MsgMedical
	default:
		return MsgGeneric
	}
}

var markdownRenderer *glamour.TermRenderer

func init() {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(DefaultTerminalWidth),
	)
	if err == nil {
		markdownRenderer = r
	}
}

// renderMarkdown renders content for terminal display, falling back to
// the raw text.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	out, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

// streamAnswer writes chunks to w. On a terminal the answer is collected
// and rendered as Markdown at the end; otherwise text is written as it
// arrives. It returns the answer text and the terminal failure.
func streamAnswer(w io.Writer, chunks <-chan router.Chunk, markdown bool) (string, *router.Failure) {
	var (
		b       strings.Builder
		failure *router.Failure
	)
	for c := range chunks {
		if c.Failure != nil {
			failure = c.Failure
			continue
		}
		b.WriteString(c.Text)
		if !markdown {
			fmt.Fprint(w, c.Text)
		}
	}

	answer := b.String()
	if markdown && answer != "" {
		fmt.Fprint(w, renderMarkdown(answer))
	} else if answer != "" && !strings.HasSuffix(answer, "\n") {
		fmt.Fprintln(w)
	}
	return answer, failure
}

// printFailure writes the patient-facing message for f and, when verbose,
// the underlying error.
func printFailure(w io.Writer, f *router.Failure, verbose bool) {
	fmt.Fprintln(w, ErrorStyle.Render(FailureMessage(f)))
	if verbose {
		fmt.Fprintln(w, DimStyle.Render(f.Error()))
	}
}
