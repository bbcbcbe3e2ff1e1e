// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tools_cmd.go - List and run the triage tools.
//
// Command: tools [run <name> [key=value ...]]
//
// Examples:
//   triage tools
//   triage tools run estimate_wait_time urgency_level=urgent
//   triage tools run check_symptoms 'symptoms=["fever","cough"]' severity=mild duration=2d
//
// Values are decoded as JSON when they parse, otherwise used as strings.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/triage-router/internal/tools"
)

// ToolInfo is one row of the tools listing.
type ToolInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

// NewToolsCmd creates the tools command.
func NewToolsCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the triage tools",
		Long:  `List the tools models can call while answering, with their parameters.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := tools.NewRegistry()
			tools.RegisterTriage(reg, tools.TriageOptions{})
			infos := ListTools(reg)
			if opts.JSON {
				return NewJSONResponse("tools", infos).Print(cmd.OutOrStdout())
			}
			printTools(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	cmd.AddCommand(newToolsRunCmd(opts))
	return cmd
}

func newToolsRunCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name> [key=value ...]",
		Short: "Run one tool against the configured record store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := ParseToolParams(args[1:])
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			exec, store, err := newExecutor(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("close store", "err", err)
				}
			}()

			res := exec.Execute(cmd.Context(), tools.Call{Name: args[0], Params: params})
			out := cmd.OutOrStdout()
			if opts.JSON {
				payload := map[string]any{"status": res.Status.String(), "output": res.Output, "duration_ms": res.Duration.Milliseconds()}
				if !res.Success() {
					return NewJSONErrorResponse("tools run", payload, errors.New(res.Error)).Print(out)
				}
				return NewJSONResponse("tools run", payload).Print(out)
			}
			if !res.Success() {
				fmt.Fprintln(out, ErrorStyle.Render(res.Status.String()+": "+res.Error))
				return &ExitError{Code: 1, Reason: res.Status.String()}
			}
			fmt.Fprintln(out, res.Text())
			return nil
		},
	}
}

// ListTools describes every tool in reg.
func ListTools(reg *tools.Registry) []ToolInfo {
	var infos []ToolInfo
	for _, t := range reg.All() {
		info := ToolInfo{Name: t.Name, Description: t.ShortDescription()}
		for _, p := range t.Schema.Parameters {
			desc := p.Name + " (" + p.Type
			if p.Required {
				desc += ", required"
			}
			desc += ")"
			if len(p.Enum) > 0 {
				desc += " one of " + strings.Join(p.Enum, "|")
			}
			info.Parameters = append(info.Parameters, desc)
		}
		infos = append(infos, info)
	}
	return infos
}

func printTools(w io.Writer, infos []ToolInfo) {
	fmt.Fprintln(w, TitleStyle.Render("Triage tools"))
	for _, info := range infos {
		fmt.Fprintln(w, SuccessStyle.Render(info.Name)+"  "+ValueStyle.Render(info.Description))
		for _, p := range info.Parameters {
			fmt.Fprintln(w, "    "+DimStyle.Render(p))
		}
	}
}

// ParseToolParams turns key=value arguments into tool parameters.
func ParseToolParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad parameter %q (want key=value)", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		params[key] = v
	}
	return params, nil
}
