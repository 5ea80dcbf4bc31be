// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"math"
	"math/rand"
	"time"
)

// Default reconnection tunables.
const (
	// DefaultInitialDelay is the first reconnect delay.
	DefaultInitialDelay = 1 * time.Second

	// DefaultMaxDelay caps the computed reconnect delay.
	DefaultMaxDelay = 30 * time.Second

	// DefaultMaxAttempts is the retry budget before fail-stop.
	DefaultMaxAttempts = 10

	// DefaultBackoffFactor is the exponential growth factor.
	DefaultBackoffFactor = 2.0

	// DefaultTimeoutDuration bounds a single dial attempt.
	DefaultTimeoutDuration = 10 * time.Second

	// MinDelay is the floor applied after jitter.
	MinDelay = 100 * time.Millisecond

	// jitterFraction is the maximum relative perturbation (±25%).
	jitterFraction = 0.25
)

// Config holds the reconnection tunables. A Config is immutable once
// handed to the Manager; Configure swaps the whole value and it takes
// effect at the next delay computation.
type Config struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// MaxAttempts is the number of consecutive failed attempts allowed
	// before the manager fail-stops. Zero means the default budget.
	MaxAttempts int

	// BackoffFactor multiplies the delay per consecutive failure.
	BackoffFactor float64

	// EnableJitter perturbs each delay by up to ±25%.
	EnableJitter bool

	// TimeoutDuration bounds a single connection attempt. An attempt
	// that has not connected within this window counts as a failure.
	TimeoutDuration time.Duration
}

// DefaultConfig returns the standard reconnection configuration.
func DefaultConfig() Config {
	return Config{
		InitialDelay:    DefaultInitialDelay,
		MaxDelay:        DefaultMaxDelay,
		MaxAttempts:     DefaultMaxAttempts,
		BackoffFactor:   DefaultBackoffFactor,
		EnableJitter:    true,
		TimeoutDuration: DefaultTimeoutDuration,
	}
}

// sanitize clamps nonsensical values to usable ones.
func (c Config) sanitize() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = DefaultBackoffFactor
	}
	if c.TimeoutDuration <= 0 {
		c.TimeoutDuration = DefaultTimeoutDuration
	}
	return c
}

// Backoff computes the reconnect delay for the given attempt index:
//
//	delay(attempt) = min(InitialDelay × BackoffFactor^attempt, MaxDelay)
//
// With jitter enabled the delay is perturbed by ±25% using a uniform
// draw from rng, then floored at MinDelay. Pass a nil rng to disable
// jitter regardless of the config flag.
func Backoff(cfg Config, attempt int, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if max := float64(cfg.MaxDelay); d > max {
		d = max
	}
	if cfg.EnableJitter && rng != nil {
		d += d * (rng.Float64()*2 - 1) * jitterFraction
	}
	if min := float64(MinDelay); d < min {
		d = min
	}
	return time.Duration(d)
}
