// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE ROLES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is a message typed by the user.
	RoleUser Role = "user"

	// RoleAssistant is a reply produced by the backend.
	RoleAssistant Role = "assistant"

	// RoleSystem is an internal notice (connection status, errors).
	// System messages are excluded from search unless explicitly included.
	RoleSystem Role = "system"
)

// =============================================================================
// MESSAGE
// =============================================================================

// Message is a single entry in a conversation session.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`

	// Metadata holds auxiliary key/value data attached by the backend
	// (source documents, model name, token counts as strings).
	Metadata map[string]string `json:"metadata,omitempty"`

	// HasGraphData marks replies that carried graph content. Search
	// ranks matches on these messages slightly higher.
	HasGraphData bool `json:"has_graph_data,omitempty"`
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
