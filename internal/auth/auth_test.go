// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/palaver/internal/store"
)

func newTestManager(t *testing.T, opts Options) (*Manager, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "palaver.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewManager(s, zap.NewNop(), opts), s
}

// =============================================================================
// REGISTRATION TESTS
// =============================================================================

func TestRegisterAndLogin(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	acct, err := m.Register("jess", "correct horse battery")
	require.NoError(t, err)
	require.NotEmpty(t, acct.ID)
	require.Equal(t, "jess", acct.Username)
	require.NotEqual(t, "correct horse battery", acct.PasswordHash)

	got, err := m.Login("jess", "correct horse battery", "")
	require.NoError(t, err)
	require.Equal(t, acct.ID, got.ID)
	require.False(t, got.LastLogin.IsZero())
}

func TestRegisterValidation(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	_, err := m.Register("j", "long enough password")
	require.ErrorIs(t, err, ErrInvalidUsername)

	_, err = m.Register("has space", "long enough password")
	require.ErrorIs(t, err, ErrInvalidUsername)

	_, err = m.Register("jess", "short")
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	_, err := m.Register("jess", "long enough password")
	require.NoError(t, err)

	_, err = m.Register("jess", "another long password")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

// =============================================================================
// LOGIN TESTS
// =============================================================================

func TestLoginWrongPassword(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	_, err := m.Register("jess", "long enough password")
	require.NoError(t, err)

	_, err = m.Login("jess", "wrong password here", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	_, err := m.Login("nobody", "whatever password", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	m, s := newTestManager(t, Options{MaxAttempts: 3, LockoutDuration: time.Hour})
	acct, err := m.Register("jess", "long enough password")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = m.Login("jess", "wrong password here", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Locked now, even with the right password.
	_, err = m.Login("jess", "long enough password", "")
	require.ErrorIs(t, err, ErrAccountLocked)

	stored, err := s.GetAccount(acct.ID)
	require.NoError(t, err)
	require.False(t, stored.LockedUntil.IsZero())
}

func TestLockoutExpires(t *testing.T) {
	m, s := newTestManager(t, Options{MaxAttempts: 1, LockoutDuration: time.Hour})
	acct, err := m.Register("jess", "long enough password")
	require.NoError(t, err)

	_, err = m.Login("jess", "wrong password here", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = m.Login("jess", "long enough password", "")
	require.ErrorIs(t, err, ErrAccountLocked)

	// Expire the lockout manually.
	stored, err := s.GetAccount(acct.ID)
	require.NoError(t, err)
	stored.LockedUntil = time.Now().Add(-time.Minute)
	require.NoError(t, s.UpdateAccount(stored))

	_, err = m.Login("jess", "long enough password", "")
	require.NoError(t, err)
}

func TestLoginResetsFailureCount(t *testing.T) {
	m, s := newTestManager(t, Options{MaxAttempts: 3})
	acct, err := m.Register("jess", "long enough password")
	require.NoError(t, err)

	_, err = m.Login("jess", "wrong password here", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Login("jess", "long enough password", "")
	require.NoError(t, err)

	stored, err := s.GetAccount(acct.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.FailedAttempts)
}

// =============================================================================
// TOTP TESTS
// =============================================================================

func TestTOTPFlow(t *testing.T) {
	m, s := newTestManager(t, Options{})
	acct, err := m.Register("jess", "long enough password")
	require.NoError(t, err)

	url, err := m.EnableTOTP(acct.ID)
	require.NoError(t, err)
	require.Contains(t, url, "otpauth://")

	// Password alone is no longer enough.
	_, err = m.Login("jess", "long enough password", "")
	require.ErrorIs(t, err, ErrTOTPRequired)

	_, err = m.Login("jess", "long enough password", "000000")
	require.ErrorIs(t, err, ErrInvalidTOTP)

	stored, err := s.GetAccount(acct.ID)
	require.NoError(t, err)
	code, err := totp.GenerateCode(stored.TOTPSecret, time.Now())
	require.NoError(t, err)

	_, err = m.Login("jess", "long enough password", code)
	require.NoError(t, err)

	// Disable requires a valid code too.
	require.ErrorIs(t, m.DisableTOTP(acct.ID, "000000"), ErrInvalidTOTP)
	code, err = totp.GenerateCode(stored.TOTPSecret, time.Now())
	require.NoError(t, err)
	require.NoError(t, m.DisableTOTP(acct.ID, code))

	_, err = m.Login("jess", "long enough password", "")
	require.NoError(t, err)
}

// =============================================================================
// PASSWORD CHANGE TESTS
// =============================================================================

func TestChangePassword(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	acct, err := m.Register("jess", "long enough password")
	require.NoError(t, err)

	require.ErrorIs(t, m.ChangePassword(acct.ID, "wrong password here", "replacement password"), ErrInvalidCredentials)
	require.ErrorIs(t, m.ChangePassword(acct.ID, "long enough password", "short"), ErrWeakPassword)
	require.NoError(t, m.ChangePassword(acct.ID, "long enough password", "replacement password"))

	_, err = m.Login("jess", "long enough password", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = m.Login("jess", "replacement password", "")
	require.NoError(t, err)
}
