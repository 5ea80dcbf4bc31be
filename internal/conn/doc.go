// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conn implements the client's resilient live connection to the
// backend: one logical duplex websocket whose failures are detected,
// counted, and retried with bounded exponential backoff and jitter.
//
// The Manager owns the full connection lifecycle. Callers see a state
// machine (idle, connecting, connected, disconnected, reconnecting,
// failed), lifetime statistics with a derived quality signal, a Send
// method, and a channel of decoded push events. Transient connectivity
// failures are never returned as errors; they surface only through the
// state and stats observables. Exhausting the retry budget parks the
// manager in the failed state until Reconnect is called explicitly, so
// persistent outages are visible instead of silently retried forever.
package conn
