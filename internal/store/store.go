// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists accounts, per-account conversation history, and
// usage counters in a local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/palaver/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("record already exists")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite-backed persistence layer. Safe for concurrent use; the
// connection pool is limited to one writer as SQLite requires.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if necessary) the database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initSchema creates the tables if they do not exist.
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id              TEXT PRIMARY KEY,
		username        TEXT NOT NULL UNIQUE,
		password_hash   TEXT NOT NULL,
		totp_secret     TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL,
		last_login      INTEGER NOT NULL DEFAULT 0,
		failed_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until    INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS conversations (
		account_id TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage (
		account_id        TEXT PRIMARY KEY,
		prompt_tokens     INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		turns             INTEGER NOT NULL DEFAULT 0
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// SaveConversation persists one account's conversation, replacing any earlier
// snapshot. Session-local image references are blanked first: the bytes they
// point at exist only in memory, so a reference would dangle after restart.
func (s *Store) SaveConversation(conv *model.Conversation) error {
	snapshot := conv.Clone()
	for _, msg := range snapshot.Messages {
		if msg.HasTransientImage() {
			msg.ImageURL = ""
		}
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO conversations (account_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			payload    = excluded.payload,
			updated_at = excluded.updated_at`,
		conv.AccountID, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: failed to save conversation: %v", ErrDatabaseError, err)
	}
	return nil
}

// LoadConversation returns the account's persisted conversation. A missing or
// unreadable snapshot yields (nil, nil): history is best effort and a corrupt
// payload must not block sign-in.
func (s *Store) LoadConversation(accountID string) (*model.Conversation, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM conversations WHERE account_id = ?`, accountID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load conversation: %v", ErrDatabaseError, err)
	}

	var conv model.Conversation
	if err := json.Unmarshal([]byte(payload), &conv); err != nil {
		s.log.Warn("discarding unreadable conversation snapshot",
			zap.String("account", accountID), zap.Error(err))
		return nil, nil
	}
	return &conv, nil
}

// DeleteConversation removes the account's persisted history.
func (s *Store) DeleteConversation(accountID string) error {
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("%w: failed to delete conversation: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// USAGE COUNTERS
// =============================================================================

// Usage holds cumulative token statistics for one account.
type Usage struct {
	AccountID        string
	PromptTokens     int64
	CompletionTokens int64
	Turns            int64
}

// AddUsage accumulates token counts for one completed exchange.
func (s *Store) AddUsage(accountID string, promptTokens, completionTokens int) error {
	_, err := s.db.Exec(`
		INSERT INTO usage (account_id, prompt_tokens, completion_tokens, turns)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(account_id) DO UPDATE SET
			prompt_tokens     = usage.prompt_tokens + excluded.prompt_tokens,
			completion_tokens = usage.completion_tokens + excluded.completion_tokens,
			turns             = usage.turns + 1`,
		accountID, promptTokens, completionTokens)
	if err != nil {
		return fmt.Errorf("%w: failed to record usage: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetUsage returns cumulative usage for one account; zero values when none is
// recorded yet.
func (s *Store) GetUsage(accountID string) (Usage, error) {
	u := Usage{AccountID: accountID}
	err := s.db.QueryRow(`
		SELECT prompt_tokens, completion_tokens, turns
		FROM usage WHERE account_id = ?`, accountID).
		Scan(&u.PromptTokens, &u.CompletionTokens, &u.Turns)
	if err == sql.ErrNoRows {
		return u, nil
	}
	if err != nil {
		return u, fmt.Errorf("%w: failed to load usage: %v", ErrDatabaseError, err)
	}
	return u, nil
}
