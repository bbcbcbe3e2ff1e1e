// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"strings"

	"github.com/jeranaias/triage-router/internal/util"
)

// Priority decides which keyword list wins when an utterance matches both.
type Priority string

const (
	// PriorityBasicFirst checks the basic list first. A query naming both a
	// routine task and an urgent symptom goes to TierBasic.
	PriorityBasicFirst Priority = "basic_first"
	// PriorityAdvancedFirst checks the advanced list first.
	PriorityAdvancedFirst Priority = "advanced_first"
)

// ParsePriority parses a priority name. Empty selects PriorityBasicFirst.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityBasicFirst, nil
	case PriorityBasicFirst, PriorityAdvancedFirst:
		return p, nil
	default:
		return "", fmt.Errorf("unknown keyword priority %q (want %s or %s)", s, PriorityBasicFirst, PriorityAdvancedFirst)
	}
}

// Rules are the keyword lists for the first two classification stages.
type Rules struct {
	Basic    []string
	Advanced []string
	Priority Priority
}

// DefaultRules returns the stock triage keyword lists.
func DefaultRules() Rules {
	return Rules{
		Basic: []string{
			"routine checkup",
			"schedule appointment",
			"wait time",
			"office hours",
			"where is",
			"directions",
			"mild cold",
			"registration",
		},
		Advanced: []string{
			"severe",
			"emergency",
			"chest pain",
			"difficulty breathing",
			"multiple symptoms",
			"drug interaction",
			"mental health",
			"suicidal",
			"confusion",
			"elderly",
			"pregnancy",
		},
		Priority: PriorityBasicFirst,
	}
}

// compiledRules holds case-folded keywords, built once per SetRules.
type compiledRules struct {
	basic    []keyword
	advanced []keyword
	priority Priority
}

type keyword struct {
	raw    string
	folded string
}

func compileRules(r Rules) *compiledRules {
	c := &compiledRules{
		basic:    foldKeywords(r.Basic),
		advanced: foldKeywords(r.Advanced),
		priority: r.Priority,
	}
	if c.priority == "" {
		c.priority = PriorityBasicFirst
	}
	return c
}

func foldKeywords(list []string) []keyword {
	out := make([]keyword, 0, len(list))
	for _, k := range list {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, keyword{raw: k, folded: util.Fold(k)})
	}
	return out
}

// match runs the keyword stages. ok is false when neither list matched.
func (c *compiledRules) match(text string) (d Decision, ok bool) {
	folded := util.Fold(text)

	type stage struct {
		list []keyword
		tier Tier
		rule Rule
	}
	basic := stage{c.basic, TierBasic, RuleBasicKeyword}
	advanced := stage{c.advanced, TierAdvanced, RuleAdvancedKeyword}

	order := []stage{basic, advanced}
	if c.priority == PriorityAdvancedFirst {
		order = []stage{advanced, basic}
	}

	for _, s := range order {
		for _, k := range s.list {
			if strings.Contains(folded, k.folded) {
				return Decision{Tier: s.tier, Rule: s.rule, Keyword: k.raw}, true
			}
		}
	}
	return Decision{}, false
}
