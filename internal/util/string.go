// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"golang.org/x/text/cases"
)

// TruncateRunes cuts s to at most maxRunes characters, ending in "..." when
// something was dropped. Multi-byte characters are never split.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// SingleLine collapses all runs of whitespace (newlines included) into one
// space so user text can sit on a single log line.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fold returns the Unicode case-folded form of s. Two strings match
// case-insensitively when their folded forms are equal.
func Fold(s string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Fold().String(s)
}

// ContainsFold reports whether substr occurs in s ignoring case. Callers
// matching many needles should fold once and use strings.Contains.
func ContainsFold(s, substr string) bool {
	return strings.Contains(Fold(s), Fold(substr))
}
