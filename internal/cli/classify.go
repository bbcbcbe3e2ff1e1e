// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// classify.go - Show where a question would be routed without answering it.
//
// Command: classify
// Short:   Show which tier a question goes to
//
// Examples:
//   triage classify "what are your hours?"
//   triage classify --no-fallback "my knee hurts when I run"
//
// Flags:
//   --no-fallback   Skip the local classifier model (keywords only)

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/triage-router/internal/intent"
	"github.com/jeranaias/triage-router/internal/model"
	"github.com/jeranaias/triage-router/internal/router"
)

// ClassifyResult is the --json payload of classify.
type ClassifyResult struct {
	Query    string          `json:"query"`
	Intent   *intent.Match   `json:"intent,omitempty"`
	Decision router.Decision `json:"decision"`
	Reason   string          `json:"reason"`
}

// NewClassifyCmd creates the classify command.
func NewClassifyCmd(opts *GlobalOptions) *cobra.Command {
	var noFallback bool

	cmd := &cobra.Command{
		Use:   "classify <question>",
		Short: "Show which tier a question goes to",
		Long: `Show how a question would be routed: direct intent, keyword rule, or
the local classifier model. Nothing is answered and no tool runs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			var fallback router.Completer
			if !noFallback {
				fallback = newLocalClient(cfg, logger)
			}
			c, err := buildClassifier(cfg, logger, fallback)
			if err != nil {
				return err
			}
			var m *intent.Matcher
			if cfg.Triage.Intents {
				m = newIntentMatcher(cfg)
			}

			res := Classify(cmd.Context(), c, m, strings.Join(args, " "))
			if opts.JSON {
				return NewJSONResponse("classify", res).Print(cmd.OutOrStdout())
			}
			printClassification(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "Keywords only; don't ask the local classifier model")
	return cmd
}

// Classify runs the intent check (when m is not nil) and the classifier on
// query. The classifier runs even when an intent matches, so both can be
// shown.
func Classify(ctx context.Context, c *router.Classifier, m *intent.Matcher, query string) ClassifyResult {
	res := ClassifyResult{Query: query}
	if m != nil {
		if match, ok := m.Match(query); ok {
			res.Intent = &match
		}
	}
	res.Decision = c.Classify(ctx, model.NewUtterance(query, nil))
	res.Reason = res.Decision.Reason()
	return res
}

func printClassification(w io.Writer, res ClassifyResult) {
	if res.Intent != nil {
		fmt.Fprintln(w, FormatLabel("Direct intent", fmt.Sprintf("%s -> %s", res.Intent.Intent, res.Intent.Call.Name)))
	}
	fmt.Fprintln(w, FormatLabel("Tier", TierBadge(res.Decision.Tier)))
	fmt.Fprintln(w, FormatLabel("Rule", string(res.Decision.Rule)))
	if res.Decision.Keyword != "" {
		fmt.Fprintln(w, FormatLabel("Keyword", res.Decision.Keyword))
	}
	if res.Decision.ModelOutput != "" {
		fmt.Fprintln(w, FormatLabel("Classifier answer", res.Decision.ModelOutput))
	}
	fmt.Fprintln(w, FormatLabel("Reason", res.Reason))
}
