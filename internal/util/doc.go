// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers: crash-safe file writes and
// rune-aware string handling used by the config, store and search layers.
package util
