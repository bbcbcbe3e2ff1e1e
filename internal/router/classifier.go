// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/triage-router/internal/model"
	"github.com/jeranaias/triage-router/internal/util"
)

// Completer is a lightweight model that answers a prompt with text.
// ollama.Client and cloud.Client both satisfy it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// QueryPlaceholder is replaced with the recent conversation in a prompt.
const QueryPlaceholder = "{query}"

// DefaultPrompt is the fallback classifier instruction.
const DefaultPrompt = `Classify this medical query as either 'CHEAP' (simple) or 'EXPENSIVE' (complex).

CHEAP = routine/administrative tasks like:
- Scheduling routine checkups
- Basic appointments
- Wait times
- Location/hours
- Simple symptoms

EXPENSIVE = medical complexity like:
- Multiple symptoms
- Severe conditions
- Mental health
- Complex conditions
- Emergencies

Query: {query}

Output exactly one word - CHEAP or EXPENSIVE:`

// Classifier picks a tier for an utterance. Keyword rules run first; the
// fallback model only sees utterances neither list matched.
type Classifier struct {
	rules    atomic.Pointer[compiledRules]
	fallback Completer
	prompt   string
	window   int
	basic    []string
	advanced []string
	logger   *log.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithFallback sets the model consulted when no keyword matches. Without
// one, unmatched utterances are TierAdvanced.
func WithFallback(c Completer) ClassifierOption {
	return func(cl *Classifier) { cl.fallback = c }
}

// WithPrompt replaces DefaultPrompt. The prompt should contain
// QueryPlaceholder; if it doesn't, the query is appended.
func WithPrompt(prompt string) ClassifierOption {
	return func(cl *Classifier) {
		if strings.TrimSpace(prompt) != "" {
			cl.prompt = prompt
		}
	}
}

// WithHistoryWindow sets how many trailing messages the fallback sees,
// the utterance included.
func WithHistoryWindow(n int) ClassifierOption {
	return func(cl *Classifier) { cl.window = n }
}

// WithMarkers sets the words that mean basic and advanced in a fallback
// answer.
func WithMarkers(basic, advanced []string) ClassifierOption {
	return func(cl *Classifier) {
		if len(basic) > 0 {
			cl.basic = basic
		}
		if len(advanced) > 0 {
			cl.advanced = advanced
		}
	}
}

// WithClassifierLogger sets the logger.
func WithClassifierLogger(l *log.Logger) ClassifierOption {
	return func(cl *Classifier) { cl.logger = l }
}

// NewClassifier creates a classifier with the given keyword rules.
func NewClassifier(rules Rules, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		prompt:   DefaultPrompt,
		window:   model.DefaultHistoryWindow,
		basic:    DefaultBasicMarkers,
		advanced: DefaultAdvancedMarkers,
		logger:   log.Default(),
	}
	c.rules.Store(compileRules(rules))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRules swaps the keyword rules. Classifications already running keep
// the rules they started with.
func (c *Classifier) SetRules(rules Rules) {
	c.rules.Store(compileRules(rules))
}

// HasFallback reports whether a fallback model is configured.
func (c *Classifier) HasFallback() bool {
	return c.fallback != nil
}

// Classify returns the tier for u. It never fails: a fallback error
// resolves to TierBasic with the error kept on the Decision.
func (c *Classifier) Classify(ctx context.Context, u model.Utterance) Decision {
	if d, ok := c.rules.Load().match(u.Text()); ok {
		return d
	}
	if c.fallback == nil {
		return Decision{Tier: TierAdvanced, Rule: RuleNoFallback}
	}

	out, err := c.fallback.Complete(ctx, c.Prompt(u))
	if err != nil {
		c.logger.Warn("fallback classifier failed, using basic tier", "err", err)
		return Decision{Tier: TierBasic, Rule: RuleFallbackError, Err: err}
	}

	out = strings.TrimSpace(out)
	d := Decision{
		Tier:        ParseTier(out, c.basic),
		Rule:        RuleFallbackModel,
		ModelOutput: out,
	}
	if d.Tier == TierAdvanced && !containsMarker(out, c.advanced, DefaultAdvancedMarkers) {
		d.Malformed = true
		c.logger.Debug("fallback classifier answer not understood", "answer", util.TruncateRunes(out, 50))
	}
	return d
}

// Prompt builds the fallback prompt for u.
func (c *Classifier) Prompt(u model.Utterance) string {
	query := model.FormatWindow(u.Window(c.window))
	if query == "" {
		query = u.Text()
	}
	if !strings.Contains(c.prompt, QueryPlaceholder) {
		return c.prompt + "\n\nQuery: " + query
	}
	return strings.ReplaceAll(c.prompt, QueryPlaceholder, query)
}
