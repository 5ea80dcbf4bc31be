// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the knowledge-chat backend's
// request/response surface: full graph snapshots and chat queries. The
// live push stream is a separate concern handled by the conn package.
//
// Transient failures (5xx, rate limiting) retry with exponential
// backoff; everything else is surfaced to the caller immediately.
package backend
