// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jeranaias/triage-router/internal/intent"
	"github.com/jeranaias/triage-router/internal/router"
	"github.com/jeranaias/triage-router/internal/tools"
	"github.com/jeranaias/triage-router/internal/util"
)

// MaxRecentEvents caps the event log kept in a snapshot.
const MaxRecentEvents = 50

// Event kinds.
const (
	EventIntent   = "intent"
	EventDecision = "decision"
	EventFailure  = "failure"
)

// Event is one entry in the recent event log.
type Event struct {
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
}

// Snapshot is the persisted form of the counters.
type Snapshot struct {
	Since     time.Time `json:"since"`
	UpdatedAt time.Time `json:"updated_at"`

	// Queries counts every routed utterance, intents included.
	Queries int64 `json:"queries"`

	Tiers    map[string]int64 `json:"tiers"`
	Rules    map[string]int64 `json:"rules"`
	Intents  map[string]int64 `json:"intents"`
	Failures map[string]int64 `json:"failures"`

	FallbackErrors   int64 `json:"fallback_errors"`
	MalformedAnswers int64 `json:"malformed_answers"`

	Recent []Event `json:"recent,omitempty"`
}

func newSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Since:    now,
		Tiers:    map[string]int64{},
		Rules:    map[string]int64{},
		Intents:  map[string]int64{},
		Failures: map[string]int64{},
	}
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.Tiers = cloneCounts(s.Tiers)
	c.Rules = cloneCounts(s.Rules)
	c.Intents = cloneCounts(s.Intents)
	c.Failures = cloneCounts(s.Failures)
	c.Recent = append([]Event(nil), s.Recent...)
	return c
}

func cloneCounts(m map[string]int64) map[string]int64 {
	c := make(map[string]int64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// BasicShare is the fraction of classified queries that went to the basic
// tier, or 0 before any.
func (s Snapshot) BasicShare() float64 {
	basic := s.Tiers[tierKey(router.TierBasic)]
	total := basic + s.Tiers[tierKey(router.TierAdvanced)]
	if total == 0 {
		return 0
	}
	return float64(basic) / float64(total)
}

// =============================================================================
// STATS
// =============================================================================

// Stats is a concurrency-safe router.Observer.
type Stats struct {
	mu   sync.Mutex
	snap Snapshot
	path string
	now  func() time.Time
}

var _ router.Observer = (*Stats)(nil)

// NewStats creates an in-memory Stats.
func NewStats() *Stats {
	return &Stats{snap: newSnapshot(time.Now()), now: time.Now}
}

// Open loads the stats file at path, or starts fresh if it doesn't exist.
// Save writes back to the same path.
func Open(path string) (*Stats, error) {
	s := NewStats()
	s.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode stats %s: %w", path, err)
	}
	fresh := newSnapshot(snap.Since)
	merge(&fresh, snap)
	s.snap = fresh
	return s, nil
}

func merge(dst *Snapshot, src Snapshot) {
	dst.Queries += src.Queries
	dst.FallbackErrors += src.FallbackErrors
	dst.MalformedAnswers += src.MalformedAnswers
	dst.UpdatedAt = src.UpdatedAt
	for k, v := range src.Tiers {
		dst.Tiers[k] += v
	}
	for k, v := range src.Rules {
		dst.Rules[k] += v
	}
	for k, v := range src.Intents {
		dst.Intents[k] += v
	}
	for k, v := range src.Failures {
		dst.Failures[k] += v
	}
	dst.Recent = append(dst.Recent, src.Recent...)
}

// ObserveIntent counts a short-circuited query.
func (s *Stats) ObserveIntent(m intent.Match, res tools.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Queries++
	s.snap.Intents[m.Intent]++
	s.record(EventIntent, fmt.Sprintf("%s -> %s (%s)", m.Intent, m.Call.Name, res.Status))
}

// ObserveDecision counts a classified query.
func (s *Stats) ObserveDecision(d router.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Queries++
	s.snap.Tiers[tierKey(d.Tier)]++
	s.snap.Rules[string(d.Rule)]++
	if d.Rule == router.RuleFallbackError {
		s.snap.FallbackErrors++
	}
	if d.Malformed {
		s.snap.MalformedAnswers++
	}
	s.record(EventDecision, util.TruncateRunes(d.Reason(), 120))
}

// ObserveFailure counts a terminal failure.
func (s *Stats) ObserveFailure(f *router.Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Failures[string(f.Kind)]++
	s.record(EventFailure, util.TruncateRunes(util.SingleLine(f.Error()), 120))
}

// record appends to the event log. Callers hold mu.
func (s *Stats) record(kind, detail string) {
	now := s.now()
	s.snap.UpdatedAt = now
	s.snap.Recent = append(s.snap.Recent, Event{Time: now, Kind: kind, Detail: detail})
	if over := len(s.snap.Recent) - MaxRecentEvents; over > 0 {
		s.snap.Recent = append([]Event(nil), s.snap.Recent[over:]...)
	}
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Reset clears every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = newSnapshot(s.now())
}

// Path returns the file Save writes to, or "" for in-memory stats.
func (s *Stats) Path() string {
	return s.path
}

// Save writes the counters to the stats file. It is a no-op for in-memory
// stats.
func (s *Stats) Save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

func tierKey(t router.Tier) string {
	b, err := t.MarshalText()
	if err != nil {
		return t.String()
	}
	return string(b)
}
