// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/noesis-chat/client-core/internal/backend"
	"github.com/noesis-chat/client-core/internal/config"
	"github.com/noesis-chat/client-core/internal/conn"
	"github.com/noesis-chat/client-core/internal/graphcache"
	"github.com/noesis-chat/client-core/internal/model"
	"github.com/noesis-chat/client-core/internal/search"
	"github.com/noesis-chat/client-core/internal/store"
)

// Connector is the connection manager surface the shell drives.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect()
	Reconnect(ctx context.Context) error
	ReconnectWithReset(ctx context.Context) error
	State() conn.State
	Stats() conn.Stats
}

// Querier sends chat prompts to the backend.
type Querier interface {
	Query(ctx context.Context, sessionID, prompt string) (*backend.QueryResponse, error)
}

// GraphSource answers graph reads.
type GraphSource interface {
	Load(ctx context.Context, force bool) (*model.GraphSnapshot, error)
	Relayouts() int
}

// Deps are the subsystems the shell operates on.
type Deps struct {
	Conn   Connector
	Back   Querier
	Graph  GraphSource
	Cache  *graphcache.Cache
	Store  *store.Store
	Search *search.Engine

	// Out receives all shell output. Defaults to os.Stdout.
	Out io.Writer
}

// Shell is the interactive command loop.
type Shell struct {
	deps Deps
	out  io.Writer

	// currentID is the active conversation, empty until one exists.
	currentID string
}

// commandNames feeds tab completion.
var commandNames = []string{
	"help", "quit", "exit",
	"connect", "disconnect", "reconnect", "status",
	"graph", "cache", "search", "suggest",
	"sessions", "new", "use", "rename", "delete", "history", "say",
}

// NewShell creates a shell over the given subsystems.
func NewShell(deps Deps) *Shell {
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	return &Shell{deps: deps, out: out}
}

// Run is the interactive loop. It returns when the user quits, input
// ends, or the context is canceled.
func (s *Shell) Run(ctx context.Context) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	historyFile := s.historyPath()
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer s.saveHistory(line, historyFile)

	line.SetCompleter(func(partial string) (out []string) {
		for _, name := range commandNames {
			if strings.HasPrefix(name, strings.ToLower(partial)) {
				out = append(out, name)
			}
		}
		return out
	})

	fmt.Fprintln(s.out, "noesis - knowledge chat client. Type 'help' for commands.")
	for ctx.Err() == nil {
		input, err := line.Prompt(s.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
			}
			return
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if s.Execute(ctx, input) {
			return
		}
	}
}

func (s *Shell) prompt() string {
	return fmt.Sprintf("[%s] noesis> ", s.deps.Conn.State())
}

func (s *Shell) historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "prompt_history")
}

func (s *Shell) saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

// Execute runs one input line. Returns true when the shell should
// exit. Anything that is not a known command is sent to the backend as
// a chat prompt.
func (s *Shell) Execute(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	fields := strings.Fields(input)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		s.printHelp()
	case "connect":
		s.cmdConnect(ctx)
	case "disconnect":
		s.deps.Conn.Disconnect()
		fmt.Fprintln(s.out, "disconnected")
	case "reconnect":
		s.cmdReconnect(ctx, args)
	case "status":
		s.cmdStatus()
	case "graph":
		s.cmdGraph(ctx, args)
	case "cache":
		s.cmdCache(args)
	case "search":
		s.cmdSearch(args)
	case "suggest":
		s.cmdSuggest(args)
	case "sessions":
		s.cmdSessions()
	case "new":
		s.cmdNew(args)
	case "use":
		s.cmdUse(args)
	case "rename":
		s.cmdRename(args)
	case "delete":
		s.cmdDelete(args)
	case "history":
		s.cmdHistory()
	case "say":
		if len(args) == 0 {
			fmt.Fprintln(s.out, "usage: say <prompt>")
			return false
		}
		s.say(ctx, strings.Join(args, " "))
	default:
		s.say(ctx, input)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  connect | disconnect | reconnect [reset]   manage the live connection
  status                                     connection state and statistics
  graph [refresh]                            show the knowledge graph (refresh bypasses the cache)
  cache stats | cache clear                  graph cache controls
  search [-w] [-c] [-m] [-sort key] <query>  search conversations
                                             -w whole words, -c case sensitive, -m include metadata
                                             keys: relevance, date, title
  suggest <partial>                          query suggestions
  sessions                                   list conversations
  new [title]                                start a conversation
  use <id or title>                          switch conversations
  rename <title>                             retitle the current conversation
  delete <id or title>                       remove a conversation
  history                                    show the current conversation
  say <prompt>                               chat in the current conversation
  quit                                       leave

Anything else is also sent to the backend as a chat prompt.
`)
}

// =============================================================================
// CONNECTION COMMANDS
// =============================================================================

func (s *Shell) cmdConnect(ctx context.Context) {
	if err := s.deps.Conn.Connect(ctx); err != nil {
		fmt.Fprintf(s.out, "connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "connection state: %s\n", s.deps.Conn.State())
}

func (s *Shell) cmdReconnect(ctx context.Context, args []string) {
	var err error
	if len(args) > 0 && strings.EqualFold(args[0], "reset") {
		err = s.deps.Conn.ReconnectWithReset(ctx)
	} else {
		err = s.deps.Conn.Reconnect(ctx)
	}
	if err != nil {
		fmt.Fprintf(s.out, "reconnect failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "connection state: %s\n", s.deps.Conn.State())
}

func (s *Shell) cmdStatus() {
	stats := s.deps.Conn.Stats()
	rows := [][]string{
		{"state", string(s.deps.Conn.State())},
		{"quality", string(stats.Quality())},
		{"success rate", fmt.Sprintf("%.2f", stats.SuccessRate())},
		{"attempts", fmt.Sprintf("%d", stats.TotalAttempts)},
		{"successes", fmt.Sprintf("%d", stats.Successes)},
		{"failures", fmt.Sprintf("%d", stats.Failures)},
		{"consecutive failures", fmt.Sprintf("%d", stats.ConsecutiveFailures)},
		{"avg connect latency", stats.AvgConnectLatency.String()},
	}
	if !stats.LastSuccess.IsZero() {
		rows = append(rows, []string{"last success", stats.LastSuccess.Format(time.RFC3339)})
	}
	fmt.Fprint(s.out, renderTable([]string{"metric", "value"}, rows))
}

// =============================================================================
// GRAPH AND CACHE COMMANDS
// =============================================================================

func (s *Shell) cmdGraph(ctx context.Context, args []string) {
	force := len(args) > 0 && strings.EqualFold(args[0], "refresh")
	snap, err := s.deps.Graph.Load(ctx, force)
	if err != nil {
		fmt.Fprintf(s.out, "graph load failed: %v\n", err)
		return
	}
	if snap == nil {
		fmt.Fprintln(s.out, "no graph loaded yet")
		return
	}
	fmt.Fprintf(s.out, "%d nodes, %d edges", len(snap.Nodes), len(snap.Edges))
	if n := s.deps.Graph.Relayouts(); n > 0 {
		fmt.Fprintf(s.out, " (%d optimizations since fetch)", n)
	}
	fmt.Fprintln(s.out)

	const sample = 15
	rows := make([][]string, 0, sample)
	for i, node := range snap.Nodes {
		if i >= sample {
			rows = append(rows, []string{"...", "", ""})
			break
		}
		rows = append(rows, []string{node.ID, ellipsize(node.Label, 40), node.Kind})
	}
	if len(rows) > 0 {
		fmt.Fprint(s.out, renderTable([]string{"id", "label", "kind"}, rows))
	}
}

func (s *Shell) cmdCache(args []string) {
	sub := "stats"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "stats":
		st := s.deps.Cache.Stats()
		rows := [][]string{
			{"entries", fmt.Sprintf("%d", st.EntryCount)},
			{"hits", fmt.Sprintf("%d", st.Hits)},
			{"misses", fmt.Sprintf("%d", st.Misses)},
			{"hit rate", fmt.Sprintf("%.2f", st.HitRate)},
			{"approx size", fmt.Sprintf("%d", st.TotalSize)},
		}
		fmt.Fprint(s.out, renderTable([]string{"metric", "value"}, rows))
	case "clear":
		s.deps.Cache.Clear()
		fmt.Fprintln(s.out, "cache cleared")
	default:
		fmt.Fprintf(s.out, "unknown cache command %q (try: cache stats, cache clear)\n", sub)
	}
}

// =============================================================================
// SEARCH COMMANDS
// =============================================================================

func (s *Shell) cmdSearch(args []string) {
	opts := search.DefaultOptions()
	var terms []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-w":
			opts.WholeWord = true
		case "-c":
			opts.CaseSensitive = true
		case "-m":
			opts.SearchMetadata = true
		case "-sort":
			if i+1 < len(args) {
				i++
				opts.SortBy = search.SortKey(strings.ToLower(args[i]))
			}
		default:
			terms = append(terms, args[i])
		}
	}
	query := strings.Join(terms, " ")
	if query == "" {
		fmt.Fprintln(s.out, "usage: search [-w] [-c] [-m] [-sort key] <query>")
		return
	}

	results := s.deps.Search.SearchWith(s.deps.Store.Sessions(), query, opts)
	if len(results) == 0 {
		fmt.Fprintln(s.out, "no matches")
		return
	}

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		first := ""
		if len(res.Matches) > 0 {
			first = ellipsize(res.Matches[0].Context, 60)
		}
		rows = append(rows, []string{
			sessionLabel(res.Session),
			fmt.Sprintf("%d", len(res.Matches)),
			fmt.Sprintf("%.1f", res.Relevance),
			first,
		})
	}
	fmt.Fprint(s.out, renderTable([]string{"session", "matches", "score", "context"}, rows))
}

func (s *Shell) cmdSuggest(args []string) {
	partial := strings.Join(args, " ")
	suggestions := s.deps.Search.Suggestions(s.deps.Store.Sessions(), partial)
	if len(suggestions) == 0 {
		fmt.Fprintln(s.out, "no suggestions")
		return
	}
	for _, sug := range suggestions {
		fmt.Fprintf(s.out, "  %s\n", sug)
	}
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func (s *Shell) cmdSessions() {
	sessions := s.deps.Store.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(s.out, "no conversations yet")
		return
	}
	rows := make([][]string, 0, len(sessions))
	for _, sess := range sessions {
		marker := " "
		if sess.ID == s.currentID {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			shortID(sess.ID),
			ellipsize(sess.Title, 40),
			fmt.Sprintf("%d", sess.MessageCount()),
			sess.LastActivity().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprint(s.out, renderTable([]string{"", "id", "title", "msgs", "last activity"}, rows))
}

func (s *Shell) cmdNew(args []string) {
	title := strings.Join(args, " ")
	if title == "" {
		title = "Untitled conversation"
	}
	sess := s.deps.Store.CreateSession(title)
	s.currentID = sess.ID
	fmt.Fprintf(s.out, "started %s (%s)\n", sessionLabel(sess), shortID(sess.ID))
}

func (s *Shell) cmdUse(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: use <id or title>")
		return
	}
	sess := s.resolveSession(strings.Join(args, " "))
	if sess == nil {
		fmt.Fprintln(s.out, "no such conversation")
		return
	}
	s.currentID = sess.ID
	fmt.Fprintf(s.out, "switched to %s\n", sessionLabel(sess))
}

func (s *Shell) cmdRename(args []string) {
	if s.currentID == "" {
		fmt.Fprintln(s.out, "no active conversation")
		return
	}
	title := strings.Join(args, " ")
	if title == "" {
		fmt.Fprintln(s.out, "usage: rename <title>")
		return
	}
	if err := s.deps.Store.RenameSession(s.currentID, title); err != nil {
		fmt.Fprintf(s.out, "rename failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "renamed to %q\n", title)
}

func (s *Shell) cmdDelete(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: delete <id or title>")
		return
	}
	sess := s.resolveSession(strings.Join(args, " "))
	if sess == nil {
		fmt.Fprintln(s.out, "no such conversation")
		return
	}
	if err := s.deps.Store.DeleteSession(sess.ID); err != nil {
		fmt.Fprintf(s.out, "delete failed: %v\n", err)
		return
	}
	if sess.ID == s.currentID {
		s.currentID = ""
	}
	fmt.Fprintf(s.out, "deleted %s\n", sessionLabel(sess))
}

func (s *Shell) cmdHistory() {
	if s.currentID == "" {
		fmt.Fprintln(s.out, "no active conversation")
		return
	}
	sess, err := s.deps.Store.GetSession(s.currentID)
	if err != nil {
		fmt.Fprintf(s.out, "load failed: %v\n", err)
		return
	}
	if sess.MessageCount() == 0 {
		fmt.Fprintln(s.out, "empty conversation")
		return
	}
	for _, msg := range sess.Messages {
		fmt.Fprintf(s.out, "[%s] %s: %s\n",
			msg.Timestamp.Format("15:04"), msg.Role, msg.Content)
	}
}

// =============================================================================
// CHAT
// =============================================================================

// say sends a prompt to the backend inside the active conversation,
// creating one on first use.
func (s *Shell) say(ctx context.Context, prompt string) {
	if s.currentID == "" {
		title := ellipsize(prompt, 40)
		sess := s.deps.Store.CreateSession(title)
		s.currentID = sess.ID
	}

	userMsg := model.NewMessage(model.RoleUser, prompt)
	if err := s.deps.Store.AppendMessage(s.currentID, userMsg); err != nil {
		fmt.Fprintf(s.out, "record failed: %v\n", err)
		return
	}

	resp, err := s.deps.Back.Query(ctx, s.currentID, prompt)
	if err != nil {
		fmt.Fprintf(s.out, "query failed: %v\n", err)
		return
	}

	reply := model.NewMessage(model.RoleAssistant, resp.Reply)
	reply.Metadata = resp.Metadata
	reply.HasGraphData = resp.HasGraphData
	if err := s.deps.Store.AppendMessage(s.currentID, reply); err != nil {
		fmt.Fprintf(s.out, "record failed: %v\n", err)
	}
	fmt.Fprintln(s.out, resp.Reply)
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveSession finds a session by ID prefix or exact title,
// case-insensitive on titles.
func (s *Shell) resolveSession(key string) *model.Session {
	for _, sess := range s.deps.Store.Sessions() {
		if strings.HasPrefix(sess.ID, key) || strings.EqualFold(sess.Title, key) {
			return sess
		}
	}
	return nil
}

func sessionLabel(sess *model.Session) string {
	if sess.Title != "" {
		return sess.Title
	}
	return shortID(sess.ID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
