// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is one conversation: an ordered list of messages plus identity
// and activity metadata. The store owns the canonical copy; everything
// else works on clones.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// NewSession creates an empty session with a fresh ID.
func NewSession(title string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session and all its messages.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}

// LastActivity returns the timestamp of the most recent message, falling
// back to UpdatedAt for empty sessions.
func (s *Session) LastActivity() time.Time {
	if len(s.Messages) == 0 {
		return s.UpdatedAt
	}
	last := s.Messages[len(s.Messages)-1].Timestamp
	if last.After(s.UpdatedAt) {
		return last
	}
	return s.UpdatedAt
}

// MessageCount returns the number of messages in the session.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// Preview returns the first user message, truncated for display.
func (s *Session) Preview() string {
	for _, m := range s.Messages {
		if m.Role == RoleUser && m.Content != "" {
			content := strings.ReplaceAll(m.Content, "\n", " ")
			runes := []rune(content)
			if len(runes) > 80 {
				return string(runes[:77]) + "..."
			}
			return content
		}
	}
	return ""
}
