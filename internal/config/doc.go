// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for noesis.
//
// Supports both TOML and JSON formats with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.noesis/config.toml
//   - ~/.noesis/config.json
//   - Built-in defaults
//
// A Watcher can follow the active config file and deliver validated
// reloads while the client runs.
package config
