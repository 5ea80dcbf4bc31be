// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the interactive shell: a liner-backed REPL over the
// connection manager, the session store, the graph loader, and the
// search engine. Bare input is sent to the backend as a chat prompt;
// slash-free commands drive everything else.
package cli
