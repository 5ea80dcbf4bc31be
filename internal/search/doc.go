// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search scans conversation sessions for a query and ranks the
// matching sessions by a composite relevance score.
//
// The engine is read-only with respect to the conversation data: a
// search pass takes a snapshot of sessions, compiles one pattern, and
// produces per-message matches with surrounding context plus a
// per-session score. Scoring weights are configurable; the defaults
// favor title hits and recent activity, since a title match or a fresh
// conversation is far more likely to be what the user meant.
//
// Search is advisory UI functionality: a pass that fails for any reason
// logs the problem and returns an empty result set instead of
// propagating an error into the host view.
package search
