// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store owns the conversation sessions. The in-memory registry
// is the working set; an optional SQLite archive persists every change
// write-through so a restart recovers the full history.
//
// The registry hands out deep copies. Callers never hold a pointer
// into the store's own data.
package store
