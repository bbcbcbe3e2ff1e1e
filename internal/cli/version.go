// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// VersionInfo is build information.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := VersionInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
			out := cmd.OutOrStdout()
			if opts.JSON {
				return NewJSONResponse("version", info).Print(out)
			}
			fmt.Fprintf(out, "triage %s\n", info.Version)
			fmt.Fprintf(out, "Commit: %s\n", info.GitCommit)
			fmt.Fprintf(out, "Built:  %s\n", info.BuildDate)
			return nil
		},
	}
}
