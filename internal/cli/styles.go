// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for triage commands.
//
// Colors are disabled for non-TTY output and when NO_COLOR is set.

package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/triage-router/internal/router"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

var (
	// TitleStyle is used for command headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")). // Cyan
			MarginBottom(1)

	// LabelStyle is used for left-aligned field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(22)

	// ValueStyle is used for plain values
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// SuccessStyle marks OK statuses
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle marks failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// WarningStyle marks cautions
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Orange

	// DimStyle is used for secondary detail such as routing reasons
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// PromptStyle is the chat prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

var (
	basicBadgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("25")). // Blue
			Bold(true).
			Padding(0, 1)

	advancedBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("255")).
				Background(lipgloss.Color("124")). // Dark red
				Bold(true).
				Padding(0, 1)

	intentBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("232")).
				Background(lipgloss.Color("42")). // Green
				Bold(true).
				Padding(0, 1)
)

// TierBadge renders the label shown before an answer from tier t.
func TierBadge(t router.Tier) string {
	if t == router.TierBasic {
		return basicBadgeStyle.Render("BASIC") + " " + DimStyle.Render("local model, simple query")
	}
	return advancedBadgeStyle.Render("ADVANCED") + " " + DimStyle.Render("cloud model, complex query")
}

// RouteBadge renders the routing line for an outcome.
func RouteBadge(o router.Outcome) string {
	switch {
	case o.Intent != nil:
		return intentBadgeStyle.Render("DIRECT") + " " +
			DimStyle.Render(fmt.Sprintf("%s via %s", o.Intent.Intent, o.Intent.Call.Name))
	case o.Decision != nil:
		return TierBadge(o.Decision.Tier) + " " + DimStyle.Render("("+o.Decision.Reason()+")")
	default:
		return ""
	}
}

// FormatLabel formats a label/value pair.
func FormatLabel(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}
