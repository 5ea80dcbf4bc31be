// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"strings"
	"testing"
	"time"

	"github.com/noesis-chat/client-core/internal/model"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSession(title string, msgs ...model.Message) *model.Session {
	return &model.Session{
		ID:        "sess-" + title,
		Title:     title,
		CreatedAt: testBase,
		UpdatedAt: testBase,
		Messages:  msgs,
	}
}

func msg(role model.Role, content string) model.Message {
	return model.Message{
		ID:        "msg-" + content[:min(8, len(content))],
		Role:      role,
		Content:   content,
		Timestamp: testBase,
	}
}

func fixedNow() time.Time { return testBase.Add(time.Hour) }

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(append([]Option{WithNow(fixedNow)}, opts...)...)
}

func TestSearchBasicMatch(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{
		testSession("alpha", msg(model.RoleUser, "tell me about graphs")),
		testSession("beta", msg(model.RoleUser, "unrelated content")),
	}

	results := e.Search(sessions, "graphs")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Session.Title != "alpha" {
		t.Errorf("matched session %q, want alpha", results[0].Session.Title)
	}
	if len(results[0].Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(results[0].Matches))
	}
	m := results[0].Matches[0]
	if m.Type != MatchContent {
		t.Errorf("match type = %q, want content", m.Type)
	}
	if m.MatchedText != "graphs" {
		t.Errorf("matched text = %q, want graphs", m.MatchedText)
	}
	if m.Position != 14 {
		t.Errorf("position = %d, want 14", m.Position)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{testSession("alpha", msg(model.RoleUser, "anything"))}

	for _, q := range []string{"", "   ", "\t"} {
		results := e.PerformSearch(sessions, q, DefaultOptions())
		if results == nil {
			t.Errorf("query %q: results nil, want empty slice", q)
		}
		if len(results) != 0 {
			t.Errorf("query %q: got %d results, want 0", q, len(results))
		}
	}
}

func TestSearchCaseSensitivity(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{
		testSession("crypto", msg(model.RoleUser, "Kryptographie ist spannend")),
	}

	opts := DefaultOptions()
	results := e.PerformSearch(sessions, "kryptographie", opts)
	if len(results) != 1 {
		t.Errorf("case-insensitive: got %d results, want 1", len(results))
	}

	opts.CaseSensitive = true
	results = e.PerformSearch(sessions, "kryptographie", opts)
	if len(results) != 0 {
		t.Errorf("case-sensitive lowercase: got %d results, want 0", len(results))
	}
	results = e.PerformSearch(sessions, "Kryptographie", opts)
	if len(results) != 1 {
		t.Errorf("case-sensitive exact: got %d results, want 1", len(results))
	}
}

func TestSearchWholeWord(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{
		testSession("alpha", msg(model.RoleUser, "the cat in the catalog")),
	}

	opts := DefaultOptions()
	results := e.PerformSearch(sessions, "cat", opts)
	if len(results) != 1 || len(results[0].Matches) != 2 {
		t.Fatalf("substring: got %d results, want 1 with 2 matches", len(results))
	}

	opts.WholeWord = true
	results = e.PerformSearch(sessions, "cat", opts)
	if len(results) != 1 {
		t.Fatalf("whole word: got %d results, want 1", len(results))
	}
	if len(results[0].Matches) != 1 {
		t.Errorf("whole word: got %d matches, want 1", len(results[0].Matches))
	}
}

func TestSearchRegexMetacharsLiteral(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{
		testSession("code", msg(model.RoleUser, "call foo(x) then a.b and [1]")),
		testSession("plain", msg(model.RoleUser, "call fooXxY then aSb")),
	}

	for _, q := range []string{"foo(x)", "a.b", "[1]"} {
		results := e.PerformSearch(sessions, q, DefaultOptions())
		if len(results) != 1 {
			t.Errorf("query %q: got %d results, want 1 (literal match only)", q, len(results))
			continue
		}
		if results[0].Session.Title != "code" {
			t.Errorf("query %q: matched %q, want code", q, results[0].Session.Title)
		}
	}
}

func TestSearchSystemMessagesExcluded(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{
		testSession("alpha",
			msg(model.RoleSystem, "reconnecting to server"),
			msg(model.RoleUser, "hello there"),
		),
	}

	opts := DefaultOptions()
	if got := e.PerformSearch(sessions, "reconnecting", opts); len(got) != 0 {
		t.Errorf("system excluded: got %d results, want 0", len(got))
	}

	opts.IncludeSystem = true
	if got := e.PerformSearch(sessions, "reconnecting", opts); len(got) != 1 {
		t.Errorf("system included: got %d results, want 1", len(got))
	}
}

func TestSearchMetadata(t *testing.T) {
	e := newTestEngine()
	m := msg(model.RoleAssistant, "here is your answer")
	m.Metadata = map[string]string{"source": "handbook.pdf"}
	sessions := []*model.Session{testSession("alpha", m)}

	opts := DefaultOptions()
	if got := e.PerformSearch(sessions, "handbook", opts); len(got) != 0 {
		t.Errorf("metadata off: got %d results, want 0", len(got))
	}

	opts.SearchMetadata = true
	results := e.PerformSearch(sessions, "handbook", opts)
	if len(results) != 1 || len(results[0].Matches) != 1 {
		t.Fatalf("metadata on: got %v, want 1 result with 1 match", results)
	}
	if results[0].Matches[0].Type != MatchMetadata {
		t.Errorf("match type = %q, want metadata", results[0].Matches[0].Type)
	}
}

func TestSearchContextEllipses(t *testing.T) {
	e := newTestEngine()
	long := strings.Repeat("x", 200) + " needle " + strings.Repeat("y", 200)
	sessions := []*model.Session{testSession("alpha", msg(model.RoleUser, long))}

	results := e.PerformSearch(sessions, "needle", DefaultOptions())
	if len(results) != 1 || len(results[0].Matches) != 1 {
		t.Fatalf("got %v, want 1 result with 1 match", results)
	}
	ctx := results[0].Matches[0].Context
	if !strings.HasPrefix(ctx, "...") || !strings.HasSuffix(ctx, "...") {
		t.Errorf("context %q should be bracketed with ellipses", ctx)
	}
	if !strings.Contains(ctx, "needle") {
		t.Errorf("context %q should contain the match", ctx)
	}
	// 100 runes either side plus the match itself plus the ellipses.
	if n := len([]rune(ctx)); n > 6+200+len("needle") {
		t.Errorf("context is %d runes, too long", n)
	}
}

func TestSearchContextShortMessage(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{testSession("alpha", msg(model.RoleUser, "tiny needle here"))}

	results := e.PerformSearch(sessions, "needle", DefaultOptions())
	if len(results) != 1 {
		t.Fatal("expected one result")
	}
	if ctx := results[0].Matches[0].Context; ctx != "tiny needle here" {
		t.Errorf("context = %q, want full message without ellipses", ctx)
	}
}

func TestSearchDoesNotMutateSessions(t *testing.T) {
	e := newTestEngine()
	m := msg(model.RoleUser, "needle")
	m.Metadata = map[string]string{"k": "v"}
	sess := testSession("alpha", m)

	results := e.PerformSearch([]*model.Session{sess}, "needle", Options{SearchMetadata: true, MaxResults: 5})
	if len(results) != 1 {
		t.Fatal("expected one result")
	}
	results[0].Matches[0].Message.Metadata["k"] = "changed"
	if sess.Messages[0].Metadata["k"] != "v" {
		t.Error("search result shares metadata map with the source session")
	}
}

func TestSearchMaxResults(t *testing.T) {
	e := newTestEngine()
	var sessions []*model.Session
	for i := 0; i < 30; i++ {
		sessions = append(sessions, testSession(
			"sess"+strings.Repeat("x", i), msg(model.RoleUser, "needle")))
	}

	if got := e.PerformSearch(sessions, "needle", DefaultOptions()); len(got) != DefaultMaxResults {
		t.Errorf("got %d results, want %d", len(got), DefaultMaxResults)
	}

	opts := DefaultOptions()
	opts.MaxResults = 3
	if got := e.PerformSearch(sessions, "needle", opts); len(got) != 3 {
		t.Errorf("got %d results, want 3", len(got))
	}
}

func TestSearchEngineMaxResultsCap(t *testing.T) {
	e := newTestEngine(WithMaxResults(2))
	var sessions []*model.Session
	for i := 0; i < 10; i++ {
		sessions = append(sessions, testSession(
			"sess"+strings.Repeat("x", i), msg(model.RoleUser, "needle")))
	}

	// Zero MaxResults in the options defers to the engine's cap.
	if got := e.PerformSearch(sessions, "needle", DefaultOptions()); len(got) != 2 {
		t.Errorf("got %d results, want the engine cap of 2", len(got))
	}

	// Explicit per-pass options still win.
	opts := DefaultOptions()
	opts.MaxResults = 5
	if got := e.PerformSearch(sessions, "needle", opts); len(got) != 5 {
		t.Errorf("got %d results, want 5", len(got))
	}

	e.SetMaxResults(3)
	if got := e.PerformSearch(sessions, "needle", DefaultOptions()); len(got) != 3 {
		t.Errorf("after SetMaxResults: got %d results, want 3", len(got))
	}
}

func TestSearchNilSessionSkipped(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{nil, testSession("alpha", msg(model.RoleUser, "needle"))}

	if got := e.PerformSearch(sessions, "needle", DefaultOptions()); len(got) != 1 {
		t.Errorf("got %d results, want 1", len(got))
	}
}

func TestSearchHistory(t *testing.T) {
	e := newTestEngine(WithHistoryLimit(3))
	sessions := []*model.Session{}

	for _, q := range []string{"one", "two", "three", "two", "four"} {
		e.Search(sessions, q)
	}

	got := e.History()
	want := []string{"four", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	e.ClearHistory()
	if len(e.History()) != 0 {
		t.Error("history not cleared")
	}
}

func TestSearchWithRecordsHistory(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{testSession("alpha", msg(model.RoleUser, "needle"))}

	opts := DefaultOptions()
	opts.WholeWord = true
	if got := e.SearchWith(sessions, "needle", opts); len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}

	got := e.History()
	if len(got) != 1 || got[0] != "needle" {
		t.Errorf("history = %v, want the query recorded", got)
	}
}

func TestSuggestions(t *testing.T) {
	e := newTestEngine()
	e.Search(nil, "graph theory")
	e.Search(nil, "database design")

	sessions := []*model.Session{
		testSession("Graph algorithms"),
		testSession("Cooking"),
	}

	got := e.Suggestions(sessions, "graph")
	if len(got) != 2 {
		t.Fatalf("suggestions = %v, want 2 entries", got)
	}
	if got[0] != "graph theory" {
		t.Errorf("first suggestion = %q, want history entry first", got[0])
	}
	if got[1] != "Graph algorithms" {
		t.Errorf("second suggestion = %q, want session title", got[1])
	}

	if got := e.Suggestions(sessions, "  "); got != nil {
		t.Errorf("blank partial: got %v, want nil", got)
	}
}

func TestSuggestionsDecomposedTitle(t *testing.T) {
	e := newTestEngine()
	sessions := []*model.Session{testSession("cafe\u0301 reviews")}

	got := e.Suggestions(sessions, "caf\u00e9")
	if len(got) != 1 || got[0] != "cafe\u0301 reviews" {
		t.Errorf("got %v, want the decomposed title suggested", got)
	}
}

func TestSuggestionsCapped(t *testing.T) {
	e := newTestEngine()
	for i := 0; i < 20; i++ {
		e.Search(nil, "query "+strings.Repeat("a", i+1))
	}
	if got := e.Suggestions(nil, "query"); len(got) != maxSuggestions {
		t.Errorf("got %d suggestions, want %d", len(got), maxSuggestions)
	}
}
