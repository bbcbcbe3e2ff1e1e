// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"math/rand/v2"
	"time"
)

// MaxBackoff caps every delay returned by CalculateBackoff.
const MaxBackoff = 30 * time.Second

// CalculateBackoff returns base * 2^attempt with +/-25% jitter, capped at
// MaxBackoff. Attempt 0 is the first retry.
func CalculateBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}

	delay := base << attempt
	if delay > MaxBackoff || delay <= 0 {
		delay = MaxBackoff
	}

	jitter := time.Duration(float64(delay) * 0.25 * (rand.Float64()*2 - 1))
	delay += jitter
	if delay > MaxBackoff {
		delay = MaxBackoff
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
