// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"strings"
)

// ============================================================================
// TIER TYPE
// ============================================================================

// Tier is the model path that answers a query.
type Tier int

const (
	// TierBasic is the lightweight local model.
	TierBasic Tier = iota
	// TierAdvanced is the capable remote model.
	TierAdvanced
)

// String returns the human-readable name of the tier.
func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "Basic"
	case TierAdvanced:
		return "Advanced"
	default:
		return fmt.Sprintf("Tier(%d)", t)
	}
}

// MarshalText encodes the tier as its lower-case name.
func (t Tier) MarshalText() ([]byte, error) {
	switch t {
	case TierBasic, TierAdvanced:
		return []byte(strings.ToLower(t.String())), nil
	default:
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
}

// UnmarshalText accepts any name TierFromName does.
func (t *Tier) UnmarshalText(b []byte) error {
	tier, err := TierFromName(string(b))
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// TierFromName parses a tier name from flags or config. The classifier's
// own vocabulary (cheap, expensive) is accepted too.
func TierFromName(name string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "basic", "cheap", "local":
		return TierBasic, nil
	case "advanced", "expensive", "cloud":
		return TierAdvanced, nil
	default:
		return TierBasic, fmt.Errorf("unknown tier %q (want basic or advanced)", name)
	}
}

// Marker words the fallback classifier answers with.
var (
	DefaultBasicMarkers    = []string{"CHEAP"}
	DefaultAdvancedMarkers = []string{"EXPENSIVE"}
)

// ParseTier turns a fallback classifier answer into a tier. It is TierBasic
// if and only if the upper-cased answer contains one of markers; anything
// else, empty and garbled answers included, is TierAdvanced. A nil markers
// uses DefaultBasicMarkers.
//
// This is the only place model output is turned into a Tier.
func ParseTier(response string, markers []string) Tier {
	if containsMarker(response, markers, DefaultBasicMarkers) {
		return TierBasic
	}
	return TierAdvanced
}

func containsMarker(response string, markers, defaults []string) bool {
	if markers == nil {
		markers = defaults
	}
	upper := strings.ToUpper(response)
	for _, m := range markers {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" && strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// ============================================================================
// DECISION
// ============================================================================

// Rule names the classification stage that produced a tier.
type Rule string

const (
	RuleBasicKeyword    Rule = "basic_keyword"
	RuleAdvancedKeyword Rule = "advanced_keyword"
	RuleFallbackModel   Rule = "fallback_model"
	RuleFallbackError   Rule = "fallback_error"
	RuleNoFallback      Rule = "no_fallback"
)

// Decision records how a tier was chosen. It is kept for logs and
// telemetry; nothing routes on it except the Tier.
type Decision struct {
	Tier Tier `json:"tier"`
	Rule Rule `json:"rule"`

	// Keyword is the matched keyword for keyword rules.
	Keyword string `json:"keyword,omitempty"`

	// ModelOutput is the raw fallback answer.
	ModelOutput string `json:"model_output,omitempty"`

	// Malformed is set when the fallback answer named neither tier.
	Malformed bool `json:"malformed,omitempty"`

	// Err is the fallback failure behind RuleFallbackError.
	Err error `json:"-"`
}

// Reason is a one-line explanation for logs and the CLI.
func (d Decision) Reason() string {
	switch d.Rule {
	case RuleBasicKeyword, RuleAdvancedKeyword:
		return fmt.Sprintf("matched keyword %q -> %s", d.Keyword, d.Tier)
	case RuleFallbackModel:
		if d.Malformed {
			return fmt.Sprintf("classifier answer %q not understood -> %s", d.ModelOutput, d.Tier)
		}
		return fmt.Sprintf("classifier answered %q -> %s", d.ModelOutput, d.Tier)
	case RuleFallbackError:
		return fmt.Sprintf("classifier failed (%v) -> %s", d.Err, d.Tier)
	case RuleNoFallback:
		return fmt.Sprintf("no keyword matched and no classifier configured -> %s", d.Tier)
	default:
		return d.Tier.String()
	}
}
