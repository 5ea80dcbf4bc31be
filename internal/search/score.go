// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/noesis-chat/client-core/internal/model"
)

// =============================================================================
// WEIGHTS
// =============================================================================

// Weights are the relevance scoring coefficients. All contributions
// are additive over a session's matches.
type Weights struct {
	// MatchBase is added once per located match.
	MatchBase float64 `toml:"match_base"`

	// TitleMatch is added once per occurrence of the query in the
	// session title.
	TitleMatch float64 `toml:"title_match"`

	// RecencyMax is the maximum recency bonus, decaying linearly to
	// zero over the recency window.
	RecencyMax float64 `toml:"recency_max"`

	// UserMessage is added per match found in a user-authored message.
	UserMessage float64 `toml:"user_message"`

	// GraphData is added per match found in a message that carried
	// graph data.
	GraphData float64 `toml:"graph_data"`
}

// DefaultWeights returns the standard scoring coefficients.
func DefaultWeights() Weights {
	return Weights{
		MatchBase:   10,
		TitleMatch:  50,
		RecencyMax:  35,
		UserMessage: 5,
		GraphData:   3,
	}
}

// recencyWindow is the span over which the recency bonus decays.
const recencyWindow = 7 * 24 * time.Hour

// =============================================================================
// SCORING
// =============================================================================

// scoreSession computes the additive relevance of one session.
func scoreSession(sess *model.Session, matches []Match, pattern *regexp.Regexp, w Weights, now time.Time) float64 {
	score := float64(len(matches)) * w.MatchBase

	// Titles are normalized like message content so composed and
	// decomposed spellings score alike.
	title := norm.NFC.String(sess.Title)
	if titleHits := len(pattern.FindAllStringIndex(title, -1)); titleHits > 0 {
		score += float64(titleHits) * w.TitleMatch
	}

	if age := now.Sub(sess.LastActivity()); age >= 0 && age < recencyWindow {
		score += w.RecencyMax * (1 - float64(age)/float64(recencyWindow))
	}

	for _, m := range matches {
		if m.Message.Role == model.RoleUser {
			score += w.UserMessage
		}
		if m.Message.HasGraphData {
			score += w.GraphData
		}
	}
	return score
}

// =============================================================================
// ORDERING
// =============================================================================

// sortResults orders results per the options. Ties on the primary key
// keep their prior relative order.
func sortResults(results []Result, opts Options) {
	key := opts.SortBy
	if key == "" {
		key = SortRelevance
	}

	var less func(a, b Result) bool
	switch key {
	case SortDate:
		less = func(a, b Result) bool {
			return a.Session.LastActivity().After(b.Session.LastActivity())
		}
	case SortTitle:
		less = func(a, b Result) bool {
			return strings.ToLower(a.Session.Title) < strings.ToLower(b.Session.Title)
		}
	default:
		less = func(a, b Result) bool {
			return a.Relevance > b.Relevance
		}
	}

	// Natural direction per key; an explicit order overrides it.
	flip := false
	switch opts.Order {
	case OrderAsc:
		flip = key != SortTitle
	case OrderDesc:
		flip = key == SortTitle
	}
	if flip {
		inner := less
		less = func(a, b Result) bool { return inner(b, a) }
	}

	sort.SliceStable(results, func(i, j int) bool {
		return less(results[i], results[j])
	})
}
