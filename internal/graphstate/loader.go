// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstate

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/noesis-chat/client-core/internal/graphcache"
	"github.com/noesis-chat/client-core/internal/model"
)

// Fetcher retrieves a full graph snapshot from the backend.
type Fetcher interface {
	FetchGraph(ctx context.Context) (*model.GraphSnapshot, error)
}

// ErrLoadInProgress is returned by a forced load while a fetch is
// already running.
var ErrLoadInProgress = errors.New("graph load already in progress")

// graphParams keys the full-graph snapshot in the cache.
func graphParams() graphcache.Params {
	return graphcache.Params{"view": "full"}
}

// =============================================================================
// LOADER
// =============================================================================

// Loader owns the current graph snapshot. Safe for concurrent use.
type Loader struct {
	fetcher Fetcher
	cache   *graphcache.Cache

	mu      sync.Mutex
	current *model.GraphSnapshot
	loading bool

	// relayouts counts graph_optimized notices since the last fetch.
	relayouts int

	// onOptimized, when set, runs after each graph_optimized event.
	onOptimized func(model.GraphOptimized)
}

// LoaderOption configures a Loader at construction time.
type LoaderOption func(*Loader)

// WithOptimizedHook registers a callback invoked for each
// graph_optimized notice. The callback runs on the event loop and must
// return promptly.
func WithOptimizedHook(fn func(model.GraphOptimized)) LoaderOption {
	return func(l *Loader) { l.onOptimized = fn }
}

// NewLoader creates a loader backed by the given fetcher and cache.
func NewLoader(fetcher Fetcher, cache *graphcache.Cache, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher: fetcher,
		cache:   cache,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Current returns a copy of the snapshot the loader holds, or nil when
// nothing has been loaded yet.
func (l *Loader) Current() *model.GraphSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.Clone()
}

// Relayouts returns the count of graph_optimized notices received
// since the last successful fetch.
func (l *Loader) Relayouts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.relayouts
}

// Load returns the graph snapshot, consulting the cache first. With
// force set the cache is bypassed and a fresh snapshot is fetched.
//
// Concurrent loads collapse: if a fetch is already in flight, a
// non-forced Load returns the snapshot the loader currently holds, and
// a forced Load returns ErrLoadInProgress.
func (l *Loader) Load(ctx context.Context, force bool) (*model.GraphSnapshot, error) {
	l.mu.Lock()
	if l.loading {
		cur := l.current.Clone()
		l.mu.Unlock()
		if force {
			return cur, ErrLoadInProgress
		}
		return cur, nil
	}

	if !force {
		if snap, ok := l.cache.Get(graphParams()); ok {
			l.current = snap.Clone()
			l.mu.Unlock()
			return snap, nil
		}
	}
	l.loading = true
	l.mu.Unlock()

	snap, err := l.fetcher.FetchGraph(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	if err != nil {
		return nil, err
	}

	l.current = snap.Clone()
	l.relayouts = 0
	l.cache.Set(snap, graphParams())
	return snap, nil
}

// =============================================================================
// LIVE EVENT DISPATCH
// =============================================================================

// Run consumes push events until the channel closes or the context is
// canceled. Malformed payloads are logged and skipped; the stream is
// never torn down over one bad event.
func (l *Loader) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.handle(ev)
		}
	}
}

// handle patches the held snapshot and the cache with one event.
func (l *Loader) handle(ev model.Event) {
	switch ev.Type {
	case model.EventNodeAdded:
		node, err := ev.NodeAdded()
		if err != nil {
			log.Printf("graphstate: drop node_added: %v", err)
			return
		}
		l.applyNode(node)

	case model.EventRelationshipCreated:
		edge, err := ev.RelationshipCreated()
		if err != nil {
			log.Printf("graphstate: drop relationship_created: %v", err)
			return
		}
		l.applyEdge(edge)

	case model.EventGraphOptimized:
		opt, err := ev.Optimized()
		if err != nil {
			log.Printf("graphstate: drop graph_optimized: %v", err)
			return
		}
		l.mu.Lock()
		l.relayouts++
		hook := l.onOptimized
		l.mu.Unlock()
		log.Printf("graphstate: backend optimized graph (%s, %d changes)", opt.Kind, opt.Changes)
		if hook != nil {
			hook(opt)
		}

	default:
		log.Printf("graphstate: drop event of unknown type %q", ev.Type)
	}
}

// applyNode adds the node to the held snapshot and the cached one.
// Duplicate IDs are ignored.
func (l *Loader) applyNode(node model.GraphNode) {
	l.mu.Lock()
	if l.current != nil && !l.current.HasNode(node.ID) {
		l.current.Nodes = append(l.current.Nodes, node.Clone())
	}
	l.mu.Unlock()
	l.cache.ApplyNodeAdded(graphParams(), node)
}

// applyEdge adds the edge to the held snapshot and the cached one.
// Duplicate IDs are ignored.
func (l *Loader) applyEdge(edge model.GraphEdge) {
	l.mu.Lock()
	if l.current != nil && !l.current.HasEdge(edge.ID) {
		l.current.Edges = append(l.current.Edges, edge.Clone())
	}
	l.mu.Unlock()
	l.cache.ApplyEdgeAdded(graphParams(), edge)
}
