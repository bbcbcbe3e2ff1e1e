// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command and global flags for the triage CLI.

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
	JSON       bool
	Verbose    bool
}

// NewRootCmd creates the triage command tree.
func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Two-tier healthcare triage query router",
		Long: `triage answers patient questions with a cheap local model when it can
and a capable cloud model when it must.

Each question first goes through a direct-intent check (wait times,
scheduling, symptom intake), then keyword rules, then an optional local
classifier. The chosen model may call the triage tools to record symptoms,
book appointments and look up medical history.

Examples:
  triage ask "what are your hours?"
  triage ask --json "I have chest pain and difficulty breathing"
  triage chat
  triage classify "can you explain my lab results"
  triage stats`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "Config file (default ~/.triage-router/config.toml)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&opts.JSON, "json", false, "Print machine-readable JSON")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "Show routing reasons and raw errors")

	cmd.AddCommand(
		NewAskCmd(opts),
		NewChatCmd(opts),
		NewClassifyCmd(opts),
		NewToolsCmd(opts),
		NewStatsCmd(opts),
		NewConfigCmd(opts),
		NewVersionCmd(opts),
	)
	return cmd
}

// Execute runs the root command with Ctrl+C wired to cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
