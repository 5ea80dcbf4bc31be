// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/noesis-chat/client-core/internal/model"
	"github.com/noesis-chat/client-core/internal/util"
)

// Context extraction windows, in runes around a match.
const (
	contentContextRunes  = 100
	metadataContextRunes = 50
)

// =============================================================================
// MATCH AND RESULT TYPES
// =============================================================================

// MatchType says where in a message a match was found.
type MatchType string

const (
	// MatchContent is a hit in the message body.
	MatchContent MatchType = "content"

	// MatchMetadata is a hit in the serialized message metadata.
	MatchMetadata MatchType = "metadata"
)

// Match is one located occurrence of the query.
type Match struct {
	// Message is a copy of the message the match was found in.
	Message model.Message

	// Type distinguishes content from metadata hits.
	Type MatchType

	// MatchedText is the exact text the pattern matched.
	MatchedText string

	// Context is the matched text with surrounding characters, with
	// ellipses marking truncation.
	Context string

	// Position is the rune offset of the match in the scanned text.
	Position int
}

// Result is one session with at least one match.
type Result struct {
	Session   *model.Session
	Matches   []Match
	Relevance float64
}

// =============================================================================
// OPTIONS
// =============================================================================

// SortKey selects the result ordering.
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortDate      SortKey = "date"
	SortTitle     SortKey = "title"
)

// SortOrder forces ascending or descending order. Empty means the
// natural order for the key: relevance and date descend, title ascends.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// Options configures one search pass. Pure configuration; no side
// effects on the scanned data.
type Options struct {
	// CaseSensitive disables case folding.
	CaseSensitive bool

	// WholeWord wraps the query in word boundaries.
	WholeWord bool

	// IncludeSystem scans system messages too.
	IncludeSystem bool

	// SearchMetadata scans serialized message metadata as well.
	SearchMetadata bool

	// MaxResults truncates the result list. Zero defers to the
	// engine's configured cap.
	MaxResults int

	// SortBy is the ordering key. Empty means relevance.
	SortBy SortKey

	// Order optionally forces the direction.
	Order SortOrder
}

// DefaultMaxResults bounds a pass that does not say otherwise.
const DefaultMaxResults = 20

// DefaultOptions returns the standard search options. MaxResults is
// left zero so the engine's configured cap applies.
func DefaultOptions() Options {
	return Options{
		SortBy: SortRelevance,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine performs searches and keeps a bounded query history for
// suggestions. Safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	weights    Weights
	history    []string
	maxHistory int
	maxResults int
	now        func() time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithWeights overrides the scoring weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithNow injects the time source used for recency scoring.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHistoryLimit caps the stored query history.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHistory = n
		}
	}
}

// WithMaxResults sets the result cap applied when the options of a
// pass do not set one.
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

// DefaultHistoryLimit is the query-history cap.
const DefaultHistoryLimit = 50

// NewEngine creates a search engine with default weights.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights:    DefaultWeights(),
		maxHistory: DefaultHistoryLimit,
		maxResults: DefaultMaxResults,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configure swaps the scoring weights. Takes effect on the next pass.
func (e *Engine) Configure(w Weights) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights = w
}

// SetMaxResults changes the engine's result cap. Takes effect on the
// next pass; non-positive values restore the default.
func (e *Engine) SetMaxResults(n int) {
	if n <= 0 {
		n = DefaultMaxResults
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxResults = n
}

// Search records the query in the history and runs a pass with default
// options over the given sessions.
func (e *Engine) Search(sessions []*model.Session, query string) []Result {
	return e.SearchWith(sessions, query, DefaultOptions())
}

// SearchWith records the query in the history and runs a pass with the
// given options. Interactive callers use this; PerformSearch is the
// history-free variant.
func (e *Engine) SearchWith(sessions []*model.Session, query string, opts Options) []Result {
	e.remember(query)
	return e.PerformSearch(sessions, query, opts)
}

// PerformSearch runs one pass over the sessions. It is pure with
// respect to the engine's history and the session data. Any failure
// during the pass is logged and yields an empty result set.
func (e *Engine) PerformSearch(sessions []*model.Session, query string, opts Options) (results []Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("search: pass failed: %v", r)
			results = []Result{}
		}
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}
	}

	pattern, err := buildPattern(query, opts)
	if err != nil {
		log.Printf("search: bad pattern for %q: %v", query, err)
		return []Result{}
	}
	e.mu.Lock()
	weights := e.weights
	nowFn := e.now
	if opts.MaxResults <= 0 {
		opts.MaxResults = e.maxResults
	}
	e.mu.Unlock()
	now := nowFn()

	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		matches := matchSession(sess, pattern, opts)
		if len(matches) == 0 {
			continue
		}
		results = append(results, Result{
			Session:   sess,
			Matches:   matches,
			Relevance: scoreSession(sess, matches, pattern, weights, now),
		})
	}

	sortResults(results, opts)
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	if results == nil {
		results = []Result{}
	}
	return results
}

// =============================================================================
// PATTERN CONSTRUCTION
// =============================================================================

// buildPattern compiles the single pattern reused for all messages in a
// pass. The raw query is normalized, all regex metacharacters are
// escaped, and word-boundary / case flags are applied per the options.
func buildPattern(query string, opts Options) (*regexp.Regexp, error) {
	expr := regexp.QuoteMeta(norm.NFC.String(query))
	if opts.WholeWord {
		expr = `\b` + expr + `\b`
	}
	if !opts.CaseSensitive {
		expr = `(?i)` + expr
	}
	return regexp.Compile(expr)
}

// =============================================================================
// PER-MESSAGE MATCHING
// =============================================================================

// matchSession collects every occurrence of the pattern in the
// session's messages.
func matchSession(sess *model.Session, pattern *regexp.Regexp, opts Options) []Match {
	var matches []Match
	for _, msg := range sess.Messages {
		if msg.Role == model.RoleSystem && !opts.IncludeSystem {
			continue
		}

		content := norm.NFC.String(msg.Content)
		for _, loc := range pattern.FindAllStringIndex(content, -1) {
			matches = append(matches, Match{
				Message:     msg.Clone(),
				Type:        MatchContent,
				MatchedText: content[loc[0]:loc[1]],
				Context:     extractContext(content, loc[0], loc[1], contentContextRunes),
				Position:    utf8.RuneCountInString(content[:loc[0]]),
			})
		}

		if opts.SearchMetadata && len(msg.Metadata) > 0 {
			meta := serializeMetadata(msg.Metadata)
			for _, loc := range pattern.FindAllStringIndex(meta, -1) {
				matches = append(matches, Match{
					Message:     msg.Clone(),
					Type:        MatchMetadata,
					MatchedText: meta[loc[0]:loc[1]],
					Context:     extractContext(meta, loc[0], loc[1], metadataContextRunes),
					Position:    utf8.RuneCountInString(meta[:loc[0]]),
				})
			}
		}
	}
	return matches
}

// serializeMetadata renders metadata as scannable text. JSON keeps the
// form deterministic (object keys marshal sorted).
func serializeMetadata(meta map[string]string) string {
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return norm.NFC.String(string(data))
}

// extractContext returns the matched region with up to window runes on
// each side, with ellipses marking truncation.
func extractContext(text string, byteStart, byteEnd, window int) string {
	runeStart := utf8.RuneCountInString(text[:byteStart])
	runeEnd := runeStart + utf8.RuneCountInString(text[byteStart:byteEnd])
	total := utf8.RuneCountInString(text)

	lo := runeStart - window
	if lo < 0 {
		lo = 0
	}
	hi := runeEnd + window
	if hi > total {
		hi = total
	}

	out := util.SafeSubstring(text, lo, hi)
	if lo > 0 {
		out = "..." + out
	}
	if hi < total {
		out = out + "..."
	}
	return out
}
