// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry counts routing outcomes for triage-router.
//
// Stats implements router.Observer. It tallies tiers, the rules that chose
// them, intent short-circuits and failures, and persists the totals to a
// JSON file so `triage stats` can show them across runs.
package telemetry
