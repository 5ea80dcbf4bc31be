// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the shared value types for the noesis client:
// conversation sessions and messages, knowledge-graph snapshots, and the
// push events delivered over the live connection.
//
// All types are plain values with deep-copy support. Components never
// share model values by reference; anything handed across a package
// boundary is cloned first so one component cannot silently mutate
// another's state.
package model
