// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth manages local accounts: registration, password verification,
// optional TOTP second factor, and lockout after repeated failures.
package auth

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/palaver/internal/store"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMaxAttempts is the number of consecutive failed logins before
	// lockout.
	DefaultMaxAttempts = 3

	// DefaultLockoutDuration is how long a locked account stays locked.
	DefaultLockoutDuration = 15 * time.Minute

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8

	// TOTPIssuer names this application in authenticator apps.
	TOTPIssuer = "palaver"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrTOTPRequired       = errors.New("one-time code required")
	ErrInvalidTOTP        = errors.New("invalid one-time code")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidUsername    = errors.New("username must be 2-32 characters, no spaces")
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager performs account operations against the store.
type Manager struct {
	store *store.Store
	log   *zap.Logger

	maxAttempts     int
	lockoutDuration time.Duration
}

// Options tunes lockout behavior. Zero values pick the defaults.
type Options struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// NewManager creates an auth manager.
func NewManager(s *store.Store, log *zap.Logger, opts Options) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	lockout := opts.LockoutDuration
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}
	return &Manager{store: s, log: log, maxAttempts: maxAttempts, lockoutDuration: lockout}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register creates a new account with a bcrypt-hashed password.
func (m *Manager) Register(username, password string) (*store.Account, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acct := &store.Account{
		ID:           "acct_" + uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := m.store.CreateAccount(acct); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	m.log.Info("account created", zap.String("username", username))
	return acct, nil
}

// validateUsername enforces the username shape.
func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < 2 || n > 32 || strings.ContainsAny(username, " \t\n") {
		return ErrInvalidUsername
	}
	return nil
}

// =============================================================================
// LOGIN
// =============================================================================

// Login authenticates a user. When the account has a TOTP secret, totpCode
// must carry a currently valid code; passing an empty code yields
// ErrTOTPRequired so callers can prompt for it.
//
// Failed password attempts count toward lockout; a correct login resets the
// counter.
func (m *Manager) Login(username, password, totpCode string) (*store.Account, error) {
	acct, err := m.store.GetAccountByUsername(strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same cost as a real comparison so missing users are not
			// distinguishable by timing.
			bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !acct.LockedUntil.IsZero() && time.Now().Before(acct.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		m.recordFailure(acct)
		return nil, ErrInvalidCredentials
	}

	if acct.TOTPSecret != "" {
		if totpCode == "" {
			return nil, ErrTOTPRequired
		}
		if !totp.Validate(totpCode, acct.TOTPSecret) {
			m.recordFailure(acct)
			return nil, ErrInvalidTOTP
		}
	}

	acct.FailedAttempts = 0
	acct.LockedUntil = time.Time{}
	acct.LastLogin = time.Now()
	if err := m.store.UpdateAccount(acct); err != nil {
		m.log.Warn("failed to record login", zap.String("username", username), zap.Error(err))
	}

	m.log.Info("login", zap.String("username", username))
	return acct, nil
}

// recordFailure bumps the failure counter and locks the account once the
// limit is reached.
func (m *Manager) recordFailure(acct *store.Account) {
	acct.FailedAttempts++
	if acct.FailedAttempts >= m.maxAttempts {
		acct.LockedUntil = time.Now().Add(m.lockoutDuration)
		acct.FailedAttempts = 0
		m.log.Warn("account locked",
			zap.String("username", acct.Username),
			zap.Time("until", acct.LockedUntil))
	}
	if err := m.store.UpdateAccount(acct); err != nil {
		m.log.Warn("failed to record auth failure",
			zap.String("username", acct.Username), zap.Error(err))
	}
}

// =============================================================================
// CREDENTIAL MANAGEMENT
// =============================================================================

// ChangePassword replaces the password after verifying the current one.
func (m *Manager) ChangePassword(accountID, current, next string) error {
	acct, err := m.store.GetAccount(accountID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if utf8.RuneCountInString(next) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	acct.PasswordHash = string(hash)
	return m.store.UpdateAccount(acct)
}

// EnableTOTP generates and stores a TOTP secret for the account. Returns the
// otpauth:// provisioning URL to show the user.
func (m *Manager) EnableTOTP(accountID string) (string, error) {
	acct, err := m.store.GetAccount(accountID)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TOTPIssuer,
		AccountName: acct.Username,
	})
	if err != nil {
		return "", err
	}
	acct.TOTPSecret = key.Secret()
	if err := m.store.UpdateAccount(acct); err != nil {
		return "", err
	}
	return key.URL(), nil
}

// DisableTOTP clears the TOTP secret after verifying a valid code.
func (m *Manager) DisableTOTP(accountID, totpCode string) error {
	acct, err := m.store.GetAccount(accountID)
	if err != nil {
		return err
	}
	if acct.TOTPSecret == "" {
		return nil
	}
	if !totp.Validate(totpCode, acct.TOTPSecret) {
		return ErrInvalidTOTP
	}
	acct.TOTPSecret = ""
	return m.store.UpdateAccount(acct)
}
