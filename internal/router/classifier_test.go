// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/triage-router/internal/model"
)

func classify(t *testing.T, c *Classifier, text string) Decision {
	t.Helper()
	return c.Classify(context.Background(), model.NewUtterance(text, nil))
}

func TestKeywordStagesSkipFallback(t *testing.T) {
	tests := []struct {
		text    string
		tier    Tier
		rule    Rule
		keyword string
	}{
		{"I need a routine checkup", TierBasic, RuleBasicKeyword, "routine checkup"},
		{"What are your OFFICE HOURS?", TierBasic, RuleBasicKeyword, "office hours"},
		{"directions to the clinic", TierBasic, RuleBasicKeyword, "directions"},
		{"I have chest pain", TierAdvanced, RuleAdvancedKeyword, "chest pain"},
		{"Severe headache since morning", TierAdvanced, RuleAdvancedKeyword, "severe"},
		{"question about my pregnancy", TierAdvanced, RuleAdvancedKeyword, "pregnancy"},
		// Both lists match: basic wins by default.
		{"routine checkup but also chest pain", TierBasic, RuleBasicKeyword, "routine checkup"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			fb := &fakeCompleter{out: "EXPENSIVE"}
			c := NewClassifier(DefaultRules(), WithFallback(fb), WithClassifierLogger(quiet))

			d := classify(t, c, tt.text)
			assert.Equal(t, tt.tier, d.Tier)
			assert.Equal(t, tt.rule, d.Rule)
			assert.Equal(t, tt.keyword, d.Keyword)
			assert.Zero(t, fb.calls.Load(), "fallback must not run when a keyword matched")
		})
	}
}

func TestAdvancedFirstPriority(t *testing.T) {
	rules := DefaultRules()
	rules.Priority = PriorityAdvancedFirst
	c := NewClassifier(rules, WithClassifierLogger(quiet))

	d := classify(t, c, "routine checkup but also chest pain")
	assert.Equal(t, TierAdvanced, d.Tier)
	assert.Equal(t, "chest pain", d.Keyword)

	d = classify(t, c, "routine checkup please")
	assert.Equal(t, TierBasic, d.Tier)
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		err       error
		tier      Tier
		rule      Rule
		malformed bool
	}{
		{"cheap", "  cheap.", nil, TierBasic, RuleFallbackModel, false},
		{"expensive", "I think EXPENSIVE", nil, TierAdvanced, RuleFallbackModel, false},
		{"empty", "", nil, TierAdvanced, RuleFallbackModel, true},
		{"garbled", "maybe?", nil, TierAdvanced, RuleFallbackModel, true},
		{"error fails open", "", errors.New("connection refused"), TierBasic, RuleFallbackError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeCompleter{out: tt.out, err: tt.err}
			c := NewClassifier(DefaultRules(), WithFallback(fb), WithClassifierLogger(quiet))

			d := classify(t, c, "my toe itches")
			assert.Equal(t, tt.tier, d.Tier)
			assert.Equal(t, tt.rule, d.Rule)
			assert.Equal(t, tt.malformed, d.Malformed)
			assert.EqualValues(t, 1, fb.calls.Load())
			if tt.err != nil {
				assert.ErrorIs(t, d.Err, tt.err)
			}
		})
	}
}

func TestNoFallbackIsAdvanced(t *testing.T) {
	c := NewClassifier(DefaultRules(), WithClassifierLogger(quiet))
	assert.False(t, c.HasFallback())

	d := classify(t, c, "my toe itches")
	assert.Equal(t, TierAdvanced, d.Tier)
	assert.Equal(t, RuleNoFallback, d.Rule)
}

func TestClassifyIsIdempotent(t *testing.T) {
	fb := &fakeCompleter{out: "CHEAP"}
	c := NewClassifier(DefaultRules(), WithFallback(fb), WithClassifierLogger(quiet))
	history := []model.Message{model.NewUserMessage("hi"), model.NewAssistantMessage("hello")}
	u := model.NewUtterance("my toe itches", history)

	first := c.Classify(context.Background(), u)
	second := c.Classify(context.Background(), u)
	assert.Equal(t, first, second)
	assert.Len(t, u.History(), 2)
}

func TestPromptEmbedsHistoryWindow(t *testing.T) {
	fb := &fakeCompleter{out: "CHEAP"}
	c := NewClassifier(DefaultRules(), WithFallback(fb), WithClassifierLogger(quiet))
	history := []model.Message{
		model.NewUserMessage("first"),
		model.NewAssistantMessage("second"),
		model.NewUserMessage("third"),
	}

	classify(t, c, "ignored") // no history
	c.Classify(context.Background(), model.NewUtterance("latest", history))

	require.Len(t, fb.prompts, 2)
	assert.Contains(t, fb.prompts[0], "Query: ignored")

	p := fb.prompts[1]
	assert.NotContains(t, p, "first", "window is three messages including the utterance")
	assert.Contains(t, p, "second\n\nthird\n\nlatest")
	assert.True(t, strings.HasSuffix(p, "Output exactly one word - CHEAP or EXPENSIVE:"))
}

func TestCustomPromptWithoutPlaceholder(t *testing.T) {
	c := NewClassifier(DefaultRules(), WithPrompt("Say CHEAP or EXPENSIVE."), WithHistoryWindow(1))
	p := c.Prompt(model.NewUtterance("knee hurts", []model.Message{model.NewUserMessage("old")}))
	assert.Equal(t, "Say CHEAP or EXPENSIVE.\n\nQuery: knee hurts", p)
}

func TestSetRules(t *testing.T) {
	c := NewClassifier(DefaultRules(), WithClassifierLogger(quiet))
	assert.Equal(t, TierAdvanced, classify(t, c, "flu shot").Tier)

	c.SetRules(Rules{Basic: []string{"Flu Shot"}})
	d := classify(t, c, "I want a FLU SHOT")
	assert.Equal(t, TierBasic, d.Tier)
	assert.Equal(t, "Flu Shot", d.Keyword)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityBasicFirst, p)

	p, err = ParsePriority("Advanced_First")
	require.NoError(t, err)
	assert.Equal(t, PriorityAdvancedFirst, p)

	_, err = ParsePriority("random")
	assert.Error(t, err)
}
