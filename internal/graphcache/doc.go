// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package graphcache provides the in-memory, TTL+LRU cache for
// knowledge-graph snapshots, with hit/miss accounting.
//
// The cache is memory-resident only and rebuilt on every process start;
// it is a fetch-avoidance layer, not a persistence layer. One Cache is
// constructed at application start and passed to whatever needs it, so
// there is a single shared cache without hidden global state. Entries
// expire by
// TTL, checked on read; eviction is least-recently-accessed first once
// the entry count exceeds the configured maximum. Everything stored or
// returned is deep-copied, so callers can never mutate cached state
// through an aliased snapshot.
package graphcache
