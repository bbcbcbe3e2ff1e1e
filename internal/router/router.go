// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/triage-router/internal/intent"
	"github.com/jeranaias/triage-router/internal/model"
	"github.com/jeranaias/triage-router/internal/tools"
	"github.com/jeranaias/triage-router/internal/util"
)

// Observer receives routing events for telemetry. Calls may come from the
// goroutine that streams an answer.
type Observer interface {
	ObserveIntent(m intent.Match, res tools.Result)
	ObserveDecision(d Decision)
	ObserveFailure(f *Failure)
}

type nopObserver struct{}

func (nopObserver) ObserveIntent(intent.Match, tools.Result) {}
func (nopObserver) ObserveDecision(Decision)                 {}
func (nopObserver) ObserveFailure(*Failure)                  {}

// Outcome is the result of routing one utterance. Exactly one of Intent
// and Decision is set.
type Outcome struct {
	Intent   *intent.Match
	Decision *Decision
	Chunks   <-chan Chunk
}

// Router runs the intent short-circuit, then classification, then
// dispatch.
type Router struct {
	intents    *intent.Matcher
	runner     ToolRunner
	classifier *Classifier
	dispatcher *Dispatcher
	observer   Observer
	logger     *log.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithIntents enables the short-circuit. Matched calls run on runner.
func WithIntents(m *intent.Matcher, runner ToolRunner) Option {
	return func(r *Router) {
		r.intents = m
		r.runner = runner
	}
}

// WithObserver sets the telemetry observer.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a router.
func New(c *Classifier, d *Dispatcher, opts ...Option) *Router {
	r := &Router{
		classifier: c,
		dispatcher: d,
		observer:   nopObserver{},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classifier returns the router's classifier.
func (r *Router) Classifier() *Classifier {
	return r.classifier
}

// SetRules swaps the classifier's keyword rules.
func (r *Router) SetRules(rules Rules) {
	r.classifier.SetRules(rules)
}

// Route answers u. It never fails; errors arrive as a terminal chunk.
// Cancelling ctx stops the stream and closes Chunks. A passed deadline
// still ends the stream with a timeout chunk.
func (r *Router) Route(ctx context.Context, u model.Utterance) Outcome {
	if r.intents != nil && r.runner != nil {
		if m, ok := r.intents.Match(u.Text()); ok {
			return r.runIntent(ctx, m)
		}
	}

	d := r.classifier.Classify(ctx, u)
	r.logger.Debug("routing decision",
		"query", util.TruncateRunes(util.SingleLine(u.Text()), 50),
		"tier", d.Tier,
		"rule", d.Rule,
		"reason", d.Reason())
	r.observer.ObserveDecision(d)

	chunks := r.dispatcher.Dispatch(ctx, d.Tier, u)
	return Outcome{Decision: &d, Chunks: r.observe(ctx, chunks)}
}

func (r *Router) runIntent(ctx context.Context, m intent.Match) Outcome {
	res := r.runner.Execute(ctx, m.Call)
	r.logger.Debug("intent matched", "intent", m.Intent, "tool", m.Call.Name, "status", res.Status)
	r.observer.ObserveIntent(m, res)

	ch := make(chan Chunk, 1)
	c := intentChunk(res)
	if c.Failure != nil {
		r.observer.ObserveFailure(c.Failure)
	}
	ch <- c
	close(ch)
	return Outcome{Intent: &m, Chunks: ch}
}

func intentChunk(res tools.Result) Chunk {
	switch res.Status {
	case tools.StatusOK:
		return Chunk{Text: res.Output}
	case tools.StatusInvalid:
		return failureChunk(FailureInvalidIntentParams, res.Error, nil)
	case tools.StatusTimeout:
		return failureChunk(FailureTimeout, res.Error, nil)
	default:
		return failureChunk(FailureProviderUnavailable, res.Error, nil)
	}
}

// observe forwards chunks, reporting a terminal failure on the way.
func (r *Router) observe(ctx context.Context, in <-chan Chunk) <-chan Chunk {
	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		for c := range in {
			if c.Failure != nil {
				r.observer.ObserveFailure(c.Failure)
				finish(ctx, out, c)
				continue
			}
			if !send(ctx, out, c) && errors.Is(ctx.Err(), context.Canceled) {
				// Let the producer see ctx and exit.
				for range in {
				}
				return
			}
		}
	}()
	return out
}

// Collect reads chunks to the end. It returns the concatenated text and
// the terminal failure, if any.
func Collect(chunks <-chan Chunk) (string, *Failure) {
	var (
		b strings.Builder
		f *Failure
	)
	for c := range chunks {
		if c.Failure != nil {
			f = c.Failure
			continue
		}
		b.WriteString(c.Text)
	}
	return b.String(), f
}
