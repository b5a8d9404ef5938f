// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/palaver/internal/config"
	"github.com/jeranaias/palaver/internal/util"
)

// =============================================================================
// SIGN-IN STATE
// =============================================================================

// SignInDuration is how long a CLI sign-in stays valid before the user must
// log in again.
const SignInDuration = 8 * time.Hour

// ErrNotSignedIn is returned when a command needs an account and none is
// signed in.
var ErrNotSignedIn = errors.New("not signed in (run: palaver login)")

// SignInState records which account the CLI is signed in as. It carries no
// credentials, only the identity established by a successful login.
type SignInState struct {
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// signInDirOverride redirects sign-in state to a different directory.
// Only set from tests.
var signInDirOverride string

// signInPath returns the path of the sign-in state file.
func signInPath() (string, error) {
	if signInDirOverride != "" {
		return filepath.Join(signInDirOverride, "signin.json"), nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "signin.json"), nil
}

// SaveSignIn records a fresh sign-in for the given account.
func SaveSignIn(accountID, username string) error {
	path, err := signInPath()
	if err != nil {
		return err
	}

	state := SignInState{
		AccountID: accountID,
		Username:  username,
		ExpiresAt: time.Now().Add(SignInDuration),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// SECURITY: 0600 - the file names an account and grants CLI access to
	// its history.
	return util.AtomicWriteFile(path, data, 0600)
}

// LoadSignIn returns the current sign-in, or ErrNotSignedIn when absent or
// expired. An expired state file is removed.
func LoadSignIn() (*SignInState, error) {
	path, err := signInPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotSignedIn
		}
		return nil, err
	}

	var state SignInState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt state file: treat as signed out.
		os.Remove(path)
		return nil, ErrNotSignedIn
	}

	if state.AccountID == "" || time.Now().After(state.ExpiresAt) {
		os.Remove(path)
		return nil, ErrNotSignedIn
	}

	return &state, nil
}

// ClearSignIn signs the CLI out.
func ClearSignIn() error {
	path, err := signInPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not clear sign-in: %w", err)
	}
	return nil
}
