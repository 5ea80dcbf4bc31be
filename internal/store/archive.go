// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/noesis-chat/client-core/internal/model"
)

// Archive persists sessions to a SQLite database.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens or creates the archive database at path, creating
// parent directories as needed.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// SQLite supports one writer at a time; keep a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveSession writes the session and all its messages, replacing any
// prior state for the same ID.
func (a *Archive) SaveSession(sess *model.Session) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Title, sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, msg := range sess.Messages {
		meta := ""
		if len(msg.Metadata) > 0 {
			data, err := json.Marshal(msg.Metadata)
			if err != nil {
				return fmt.Errorf("encode message metadata: %w", err)
			}
			meta = string(data)
		}
		_, err := tx.Exec(`
			INSERT INTO messages (id, session_id, seq, role, content, timestamp, metadata, has_graph_data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, sess.ID, i, string(msg.Role), msg.Content,
			msg.Timestamp.UnixNano(), meta, boolToInt(msg.HasGraphData))
		if err != nil {
			return fmt.Errorf("save message: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteSession removes a session and its messages.
func (a *Archive) DeleteSession(id string) error {
	if _, err := a.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// LoadAll reads every archived session, messages in order.
func (a *Archive) LoadAll() ([]*model.Session, error) {
	rows, err := a.db.Query(`SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		var sess model.Session
		var created, updated int64
		if err := rows.Scan(&sess.ID, &sess.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt = time.Unix(0, created)
		sess.UpdatedAt = time.Unix(0, updated)
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	for _, sess := range sessions {
		msgs, err := a.loadMessages(sess.ID)
		if err != nil {
			return nil, err
		}
		sess.Messages = msgs
	}
	return sessions, nil
}

func (a *Archive) loadMessages(sessionID string) ([]model.Message, error) {
	rows, err := a.db.Query(`
		SELECT id, role, content, timestamp, metadata, has_graph_data
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		var role, meta string
		var ts int64
		var graph int
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &ts, &meta, &graph); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.Timestamp = time.Unix(0, ts)
		msg.HasGraphData = graph != 0
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
