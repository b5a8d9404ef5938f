// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ACCOUNT TYPE
// =============================================================================

// Account is one local identity. Conversation history and usage counters key
// off its ID.
type Account struct {
	ID           string
	Username     string
	PasswordHash string

	// TOTPSecret enables a second factor when non-empty.
	TOTPSecret string

	CreatedAt time.Time
	LastLogin time.Time

	// Lockout state maintained by the auth package.
	FailedAttempts int
	LockedUntil    time.Time
}

// =============================================================================
// ACCOUNT OPERATIONS
// =============================================================================

// CreateAccount inserts a new account. Usernames are unique.
func (s *Store) CreateAccount(acct *Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, username, password_hash, totp_secret, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		acct.ID, acct.Username, acct.PasswordHash, acct.TOTPSecret, acct.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrDuplicate
		}
		return fmt.Errorf("%w: failed to create account: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetAccountByUsername looks up an account by username.
func (s *Store) GetAccountByUsername(username string) (*Account, error) {
	return s.scanAccount(s.db.QueryRow(`
		SELECT id, username, password_hash, totp_secret,
		       created_at, last_login, failed_attempts, locked_until
		FROM accounts WHERE username = ?`, username))
}

// GetAccount looks up an account by ID.
func (s *Store) GetAccount(id string) (*Account, error) {
	return s.scanAccount(s.db.QueryRow(`
		SELECT id, username, password_hash, totp_secret,
		       created_at, last_login, failed_attempts, locked_until
		FROM accounts WHERE id = ?`, id))
}

// UpdateAccount writes back mutable account fields.
func (s *Store) UpdateAccount(acct *Account) error {
	res, err := s.db.Exec(`
		UPDATE accounts SET
			password_hash   = ?,
			totp_secret     = ?,
			last_login      = ?,
			failed_attempts = ?,
			locked_until    = ?
		WHERE id = ?`,
		acct.PasswordHash, acct.TOTPSecret, unixOrZero(acct.LastLogin),
		acct.FailedAttempts, unixOrZero(acct.LockedUntil), acct.ID)
	if err != nil {
		return fmt.Errorf("%w: failed to update account: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount removes an account along with its conversation and usage
// rows.
func (s *Store) DeleteAccount(id string) error {
	res, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete account: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.db.Exec(`DELETE FROM conversations WHERE account_id = ?`, id)
	s.db.Exec(`DELETE FROM usage WHERE account_id = ?`, id)
	return nil
}

// ListAccounts returns all accounts ordered by username.
func (s *Store) ListAccounts() ([]*Account, error) {
	rows, err := s.db.Query(`
		SELECT id, username, password_hash, totp_secret,
		       created_at, last_login, failed_attempts, locked_until
		FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list accounts: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		acct, err := scanAccountRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func (s *Store) scanAccount(row *sql.Row) (*Account, error) {
	acct, err := scanAccountRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return acct, err
}

func scanAccountRow(scan func(...any) error) (*Account, error) {
	var acct Account
	var createdAt, lastLogin, lockedUntil int64
	err := scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.TOTPSecret,
		&createdAt, &lastLogin, &acct.FailedAttempts, &lockedUntil)
	if err != nil {
		return nil, err
	}
	acct.CreatedAt = time.Unix(createdAt, 0)
	if lastLogin > 0 {
		acct.LastLogin = time.Unix(lastLogin, 0)
	}
	if lockedUntil > 0 {
		acct.LockedUntil = time.Unix(lockedUntil, 0)
	}
	return &acct, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
