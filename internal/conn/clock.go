// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import "time"

// Clock abstracts time for the manager so backoff scheduling and latency
// accounting are testable without real sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers the time after d elapses.
	After(d time.Duration) <-chan time.Time
}

// systemClock is the production Clock backed by the time package.
type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the Clock used unless WithClock overrides it.
var SystemClock Clock = systemClock{}
