// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single-question command.
//
// Command: ask
// Short:   Route one question and print the answer
//
// Examples:
//   triage ask "what are your hours?"
//   triage ask --json "schedule an appointment"
//   echo "I have a headache" | triage ask
//
// The routing line (direct intent, basic or advanced tier) goes to stderr
// so stdout carries only the answer.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/triage-router/internal/intent"
	"github.com/jeranaias/triage-router/internal/model"
	"github.com/jeranaias/triage-router/internal/router"
)

// AskResult is the --json payload of ask.
type AskResult struct {
	Route      string           `json:"route"`
	Intent     *intent.Match    `json:"intent,omitempty"`
	Decision   *router.Decision `json:"decision,omitempty"`
	Answer     string           `json:"answer"`
	Failure    *router.Failure  `json:"failure,omitempty"`
	Message    string           `json:"message,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// RouteName is "intent", "basic" or "advanced".
func RouteName(o router.Outcome) string {
	switch {
	case o.Intent != nil:
		return "intent"
	case o.Decision != nil && o.Decision.Tier == router.TierBasic:
		return "basic"
	default:
		return "advanced"
	}
}

// NewAskCmd creates the ask command.
func NewAskCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Route one question and print the answer",
		Long: `Route one question through the triage pipeline and print the answer.

Without arguments the question is read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" && !IsTTY() {
				data, err := io.ReadAll(bufio.NewReader(cmd.InOrStdin()))
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				question = strings.TrimSpace(string(data))
			}
			if question == "" {
				return fmt.Errorf("no question given")
			}

			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			app, err := NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Warn("shutdown", "err", err)
				}
			}()

			res := RunAsk(cmd.Context(), app.Router, question, askOutput{
				Out:      cmd.OutOrStdout(),
				Status:   cmd.ErrOrStderr(),
				JSON:     opts.JSON,
				Markdown: !opts.JSON && isTerminalWriter(cmd.OutOrStdout()),
				Verbose:  opts.Verbose,
			})
			if res.Failure != nil {
				return &ExitError{Code: 1, Reason: string(res.Failure.Kind)}
			}
			return nil
		},
	}
}

type askOutput struct {
	Out      io.Writer
	Status   io.Writer
	JSON     bool
	Markdown bool
	Verbose  bool
}

// RunAsk routes question and writes the answer as configured by o.
func RunAsk(ctx context.Context, r *router.Router, question string, o askOutput) AskResult {
	start := time.Now()
	outcome := r.Route(ctx, model.NewUtterance(question, nil))

	res := AskResult{
		Route:    RouteName(outcome),
		Intent:   outcome.Intent,
		Decision: outcome.Decision,
	}

	if o.JSON {
		res.Answer, res.Failure = router.Collect(outcome.Chunks)
		res.Message = FailureMessage(res.Failure)
		res.DurationMs = time.Since(start).Milliseconds()
		if res.Failure != nil {
			_ = NewJSONErrorResponse("ask", res, res.Failure).Print(o.Out)
		} else {
			_ = NewJSONResponse("ask", res).Print(o.Out)
		}
		return res
	}

	if o.Status != nil {
		fmt.Fprintln(o.Status, RouteBadge(outcome))
	}
	res.Answer, res.Failure = streamAnswer(o.Out, outcome.Chunks, o.Markdown)
	res.DurationMs = time.Since(start).Milliseconds()
	if res.Failure != nil {
		res.Message = FailureMessage(res.Failure)
		printFailure(o.Out, res.Failure, o.Verbose)
	}
	return res
}
