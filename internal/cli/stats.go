// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// stats.go - Routing statistics command.
//
// Command: stats [--reset]

package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/triage-router/internal/telemetry"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd(opts *GlobalOptions) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show routing statistics",
		Long: `Show how queries have been routed: per tier, per rule, direct intents
and failures. Statistics are kept across runs when telemetry is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !cfg.Telemetry.Enabled {
				return fmt.Errorf("telemetry is disabled (set telemetry.enabled = true)")
			}
			path, err := cfg.TelemetryPath()
			if err != nil {
				return err
			}
			stats, err := telemetry.Open(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if reset {
				stats.Reset()
				if err := stats.Save(); err != nil {
					return err
				}
				if !opts.JSON {
					fmt.Fprintln(out, SuccessStyle.Render("Statistics reset."))
					return nil
				}
			}

			snap := stats.Snapshot()
			if opts.JSON {
				return NewJSONResponse("stats", snap).Print(out)
			}
			fmt.Fprint(out, formatStats(snap))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Clear all counters")
	return cmd
}

func formatStats(s telemetry.Snapshot) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Routing statistics") + "\n")
	b.WriteString(FormatLabel("Since", s.Since.Format("2006-01-02 15:04")) + "\n")
	b.WriteString(FormatLabel("Queries", fmt.Sprint(s.Queries)) + "\n")
	b.WriteString(FormatLabel("Basic share", fmt.Sprintf("%.0f%%", s.BasicShare()*100)) + "\n")
	b.WriteString(FormatLabel("Fallback errors", fmt.Sprint(s.FallbackErrors)) + "\n")
	b.WriteString(FormatLabel("Unclear classifier", fmt.Sprint(s.MalformedAnswers)) + "\n")
	writeCounts(&b, "Tiers", s.Tiers)
	writeCounts(&b, "Rules", s.Rules)
	writeCounts(&b, "Direct intents", s.Intents)
	writeCounts(&b, "Failures", s.Failures)
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("\n" + ValueStyle.Bold(true).Render(title) + "\n")
	for _, k := range keys {
		b.WriteString("  " + FormatLabel(k, fmt.Sprint(counts[k])) + "\n")
	}
}
