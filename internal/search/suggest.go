// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/noesis-chat/client-core/internal/model"
)

// maxSuggestions bounds one suggestion list.
const maxSuggestions = 10

// remember records a query at the front of the history, deduplicating
// and trimming to the configured cap.
func (e *Engine) remember(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.history[:0]
	for _, h := range e.history {
		if !strings.EqualFold(h, query) {
			kept = append(kept, h)
		}
	}
	e.history = append([]string{query}, kept...)
	if len(e.history) > e.maxHistory {
		e.history = e.history[:e.maxHistory]
	}
}

// History returns a copy of the recorded queries, most recent first.
func (e *Engine) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory drops all recorded queries.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// Suggestions proposes completions for a partial query, drawing from
// the query history first and then from session titles. Matching is a
// case-insensitive substring test over NFC-normalized text; duplicates
// are collapsed.
func (e *Engine) Suggestions(sessions []*model.Session, partial string) []string {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return nil
	}
	needle := strings.ToLower(norm.NFC.String(partial))

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		key := strings.ToLower(norm.NFC.String(s))
		if seen[key] || !strings.Contains(key, needle) {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	e.mu.Lock()
	history := make([]string, len(e.history))
	copy(history, e.history)
	e.mu.Unlock()

	for _, h := range history {
		if len(out) >= maxSuggestions {
			return out
		}
		add(h)
	}
	for _, sess := range sessions {
		if len(out) >= maxSuggestions {
			return out
		}
		if sess != nil && sess.Title != "" {
			add(sess.Title)
		}
	}
	return out
}
