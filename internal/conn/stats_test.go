// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"testing"
	"time"
)

func TestStatsQuality(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		successes int
		want      Quality
	}{
		{"no attempts yet", 0, 0, QualityExcellent},
		{"perfect", 20, 20, QualityExcellent},
		{"exactly 95 percent", 20, 19, QualityExcellent},
		{"good", 10, 9, QualityGood},
		{"exactly 80 percent", 10, 8, QualityGood},
		{"poor", 10, 6, QualityPoor},
		{"exactly 50 percent", 10, 5, QualityPoor},
		{"critical", 10, 2, QualityCritical},
		{"all failed", 5, 0, QualityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Stats{TotalAttempts: tt.attempts, Successes: tt.successes}
			if got := s.Quality(); got != tt.want {
				t.Errorf("Quality() = %s, want %s (rate %.2f)", got, tt.want, s.SuccessRate())
			}
		})
	}
}

func TestStatsRunningLatencyMean(t *testing.T) {
	var s Stats

	latencies := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 200 * time.Millisecond}
	for _, l := range latencies {
		s.Successes++
		s.observeLatency(l)
	}

	want := 200 * time.Millisecond
	if s.AvgConnectLatency != want {
		t.Errorf("AvgConnectLatency = %v, want %v", s.AvgConnectLatency, want)
	}
}

func TestStatsObserveLatencyWithoutSuccess(t *testing.T) {
	var s Stats
	s.observeLatency(time.Second)
	if s.AvgConnectLatency != 0 {
		t.Errorf("latency recorded with no successes: %v", s.AvgConnectLatency)
	}
}
