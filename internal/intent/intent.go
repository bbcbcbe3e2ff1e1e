// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package intent implements the short-circuit that sends well-known literal
// requests straight to a tool, before any tiering or model call.
package intent

import (
	"strings"
	"time"

	"github.com/jeranaias/triage-router/internal/tools"
	"github.com/jeranaias/triage-router/internal/util"
)

// Intent names.
const (
	WaitTime        = "wait_time"
	AssessSymptoms  = "assess_symptoms"
	Schedule        = "schedule"
	RoutineCheckup  = "routine_checkup"
	defaultTimeZone = "America/New_York"
)

// Pattern maps literal terms to a tool call. Every term must occur in the
// utterance, case-insensitively.
type Pattern struct {
	Intent string
	Terms  []string
	Tool   string

	// Params builds the tool parameters. today is YYYY-MM-DD in the
	// matcher's time zone.
	Params func(today string) map[string]any
}

// Match is a matched intent with its ready-to-run tool call.
type Match struct {
	Intent  string     `json:"intent"`
	Pattern []string   `json:"pattern"`
	Call    tools.Call `json:"call"`
}

// DefaultPatterns returns the standard patterns in priority order.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Intent: WaitTime,
			Terms:  []string{"wait time"},
			Tool:   tools.EstimateWaitTime,
			Params: func(string) map[string]any {
				return map[string]any{"urgency_level": tools.UrgencyRoutine}
			},
		},
		{
			Intent: AssessSymptoms,
			Terms:  []string{"assess", "symptoms"},
			Tool:   tools.SymptomIntake,
			Params: func(string) map[string]any { return map[string]any{} },
		},
		{
			Intent: Schedule,
			Terms:  []string{"schedule"},
			Tool:   tools.ScheduleAppointment,
			Params: func(today string) map[string]any {
				return map[string]any{"appointment_type": "virtual", "preferred_date": today}
			},
		},
		{
			Intent: RoutineCheckup,
			Terms:  []string{"routine checkup"},
			Tool:   tools.ScheduleAppointment,
			Params: func(today string) map[string]any {
				return map[string]any{"appointment_type": "in-person", "preferred_date": today}
			},
		},
	}
}

type compiled struct {
	Pattern
	folded []string
}

// Matcher checks utterances against patterns in order. It is safe for
// concurrent use.
type Matcher struct {
	patterns []compiled
	now      func() time.Time
	loc      *time.Location
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithClock sets the clock used for date parameters.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// WithLocation sets the time zone "today" is computed in.
func WithLocation(loc *time.Location) Option {
	return func(m *Matcher) { m.loc = loc }
}

// NewMatcher compiles patterns. Patterns without terms never match.
func NewMatcher(patterns []Pattern, opts ...Option) *Matcher {
	m := &Matcher{now: time.Now}
	for _, p := range patterns {
		c := compiled{Pattern: p}
		for _, term := range p.Terms {
			if t := util.Fold(strings.TrimSpace(term)); t != "" {
				c.folded = append(c.folded, t)
			}
		}
		m.patterns = append(m.patterns, c)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.loc == nil {
		m.loc = DefaultLocation()
	}
	return m
}

// DefaultLocation is the clinic's time zone, or UTC when the zone database
// is unavailable.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(defaultTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Match returns the first pattern whose terms all occur in text.
func (m *Matcher) Match(text string) (Match, bool) {
	folded := util.Fold(text)

	for _, p := range m.patterns {
		if len(p.folded) == 0 || !containsAll(folded, p.folded) {
			continue
		}

		var params map[string]any
		if p.Params != nil {
			params = p.Params(m.Today())
		}
		return Match{
			Intent:  p.Intent,
			Pattern: append([]string(nil), p.Terms...),
			Call:    tools.Call{Name: p.Tool, Params: params},
		}, true
	}
	return Match{}, false
}

// Today returns the current date in the matcher's time zone.
func (m *Matcher) Today() string {
	return m.now().In(m.loc).Format(tools.DateLayout)
}

func containsAll(s string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}
