// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import "time"

// =============================================================================
// CONNECTION STATE
// =============================================================================

// State is the lifecycle state of the logical connection.
type State string

const (
	// StateIdle means no connection has been requested yet.
	StateIdle State = "idle"

	// StateConnecting means a dial attempt is in flight.
	StateConnecting State = "connecting"

	// StateConnected means the duplex connection is open.
	StateConnected State = "connected"

	// StateDisconnected means the connection closed (cleanly or not).
	StateDisconnected State = "disconnected"

	// StateReconnecting means a retry is scheduled.
	StateReconnecting State = "reconnecting"

	// StateFailed means the retry budget is exhausted. Terminal until
	// Reconnect is called.
	StateFailed State = "failed"
)

// =============================================================================
// CONNECTION QUALITY
// =============================================================================

// Quality is a coarse health signal derived from the lifetime
// success rate. It is not a sliding window and not an SLA measurement.
type Quality string

const (
	QualityExcellent Quality = "excellent" // success rate >= 0.95
	QualityGood      Quality = "good"      // success rate >= 0.8
	QualityPoor      Quality = "poor"      // success rate >= 0.5
	QualityCritical  Quality = "critical"  // below 0.5
)

// =============================================================================
// CONNECTION STATS
// =============================================================================

// Stats holds the lifetime connection counters. Counters accumulate
// until ReconnectWithReset zeroes them.
type Stats struct {
	// TotalAttempts counts every dial attempt, successful or not.
	TotalAttempts int

	// Successes counts attempts that reached the connected state.
	Successes int

	// Failures counts attempts that errored or timed out.
	Failures int

	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int

	// LastSuccess is the time of the most recent successful connect.
	LastSuccess time.Time

	// AvgConnectLatency is a running mean of the dial latency over
	// successful attempts.
	AvgConnectLatency time.Duration
}

// SuccessRate returns Successes/TotalAttempts, or 1 when nothing has
// been attempted yet.
func (s Stats) SuccessRate() float64 {
	if s.TotalAttempts == 0 {
		return 1
	}
	return float64(s.Successes) / float64(s.TotalAttempts)
}

// Quality derives the health signal from the lifetime success rate.
func (s Stats) Quality() Quality {
	rate := s.SuccessRate()
	switch {
	case rate >= 0.95:
		return QualityExcellent
	case rate >= 0.8:
		return QualityGood
	case rate >= 0.5:
		return QualityPoor
	default:
		return QualityCritical
	}
}

// observeLatency folds a new successful dial latency into the running
// mean. Must be called after Successes has been incremented.
func (s *Stats) observeLatency(latency time.Duration) {
	if s.Successes <= 0 {
		return
	}
	s.AvgConnectLatency += (latency - s.AvgConnectLatency) / time.Duration(s.Successes)
}
