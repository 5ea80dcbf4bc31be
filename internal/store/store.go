// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/noesis-chat/client-core/internal/model"
)

// Errors returned by the session registry.
var (
	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
)

// Archiver persists registry changes. *Archive satisfies it; tests
// substitute their own.
type Archiver interface {
	SaveSession(sess *model.Session) error
	DeleteSession(id string) error
}

// Store is the in-memory session registry. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	archive  Archiver
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*model.Session)}
}

// SetArchive attaches write-through persistence. Archive failures are
// logged, never propagated; the in-memory state is authoritative for
// the running client.
func (s *Store) SetArchive(a Archiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive = a
}

// LoadFrom seeds the registry from archived sessions. Existing entries
// with the same ID are replaced.
func (s *Store) LoadFrom(sessions []*model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range sessions {
		if sess != nil && sess.ID != "" {
			s.sessions[sess.ID] = sess.Clone()
		}
	}
}

// CreateSession creates and registers a new session, returning a copy.
func (s *Store) CreateSession(title string) *model.Session {
	sess := model.NewSession(title)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.persistLocked(sess)
	s.mu.Unlock()

	return sess.Clone()
}

// GetSession returns a copy of the session with the given ID.
func (s *Store) GetSession(id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Clone(), nil
}

// AppendMessage adds a message to a session and bumps its activity
// time.
func (s *Store) AppendMessage(sessionID string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.Messages = append(sess.Messages, msg.Clone())
	if msg.Timestamp.After(sess.UpdatedAt) {
		sess.UpdatedAt = msg.Timestamp
	} else {
		sess.UpdatedAt = time.Now()
	}
	s.persistLocked(sess)
	return nil
}

// RenameSession changes a session's title.
func (s *Store) RenameSession(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Title = title
	sess.UpdatedAt = time.Now()
	s.persistLocked(sess)
	return nil
}

// DeleteSession removes a session from the registry and the archive.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	if s.archive != nil {
		if err := s.archive.DeleteSession(id); err != nil {
			log.Printf("store: archive delete for %s failed: %v", id, err)
		}
	}
	return nil
}

// Sessions returns copies of all sessions, most recently active first.
func (s *Store) Sessions() []*model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	return out
}

// Count returns the number of registered sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// persistLocked writes a session through to the archive. Caller holds
// the lock.
func (s *Store) persistLocked(sess *model.Session) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveSession(sess); err != nil {
		log.Printf("store: archive save for %s failed: %v", sess.ID, err)
	}
}
