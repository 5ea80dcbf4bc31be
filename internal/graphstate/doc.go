// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package graphstate holds the client's current view of the knowledge
// graph. A Loader answers reads cache-first, fetches from the backend
// on misses or forced refreshes, and consumes the live event stream to
// patch both its in-memory snapshot and the cache entry it came from.
//
// The backend stays authoritative: deltas are applied optimistically
// and any disagreement is resolved by the next full fetch.
package graphstate
