// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package backoff computes retry delays for the request executor:
// jittered exponential backoff with a Retry-After override, expressed
// as a pure function over an explicit retry count so the retry loop
// stays iterative and cancellable.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Config is the retry budget for one request pipeline.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	BackoffFactor    float64
	RetryStatusCodes map[int]bool
}

// DefaultConfig is the retry budget used when nothing overrides it:
// 3 retries, 1s initial delay doubling to a 30s cap, retrying on the
// usual transient statuses.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		RetryStatusCodes: map[int]bool{
			429: true, 500: true, 502: true, 503: true, 504: true,
		},
	}
}

// randFloat is overridable by tests to make jitter deterministic.
var randFloat = rand.Float64

// NextDelay returns how long to sleep before retry number retryCount.
// If retryAfterSeconds (from an HTTP Retry-After header) is non-nil and
// positive it overrides the computed delay exactly.
func NextDelay(retryCount int, cfg Config, retryAfterSeconds *int) time.Duration {
	if retryAfterSeconds != nil && *retryAfterSeconds > 0 {
		return time.Duration(*retryAfterSeconds) * time.Second
	}

	base := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(retryCount))
	if base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}
	jitter := 0.5 + randFloat()*0.5
	return time.Duration(base * jitter)
}

// ShouldRetry reports whether a response status warrants another
// attempt given how many retries have already been spent.
func ShouldRetry(status int, retryCount int, cfg Config) bool {
	if retryCount >= cfg.MaxRetries {
		return false
	}
	return cfg.RetryStatusCodes[status]
}
