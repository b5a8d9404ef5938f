// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/palaver/internal/auth"
)

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

const loginLongDesc = `Sign in to a palaver account.

Prompts for the password (and a TOTP code when the account has a second
factor). The sign-in lasts 8 hours or until 'palaver logout'.

Examples:
  palaver login alice
  palaver login            Prompts for the username`

func newLoginCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in to an account",
		Long:  loginLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			username := ""
			if len(args) == 1 {
				username = args[0]
			} else {
				username, err = promptLine("Username: ")
				if err != nil {
					return err
				}
			}

			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}

			mgr := newAuthManager(a)
			acct, err := mgr.Login(username, password, "")
			if errors.Is(err, auth.ErrTOTPRequired) {
				code, promptErr := promptLine("TOTP code: ")
				if promptErr != nil {
					return promptErr
				}
				acct, err = mgr.Login(username, password, code)
			}
			if err != nil {
				return err
			}

			if err := SaveSignIn(acct.ID, acct.Username); err != nil {
				return fmt.Errorf("login succeeded but sign-in could not be recorded: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", acct.Username)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the current account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := LoadSignIn()
			if errors.Is(err, ErrNotSignedIn) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			if err != nil {
				return err
			}

			if err := ClearSignIn(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed out %s\n", state.Username)
			return nil
		},
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func newAccountsCmd(root *rootCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage local accounts",
	}

	cmd.AddCommand(
		newAccountsListCmd(root),
		newAccountsCreateCmd(root),
		newAccountsDeleteCmd(root),
		newAccountsTOTPCmd(root),
	)

	return cmd
}

func newAccountsListCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.store.ListAccounts()
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts. Create one with: palaver accounts create <username>")
				return nil
			}

			current, _ := LoadSignIn()
			for _, acct := range accounts {
				marker := " "
				if current != nil && current.AccountID == acct.ID {
					marker = "*"
				}
				totp := ""
				if acct.TOTPSecret != "" {
					totp = " [totp]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s%s\n", marker, acct.Username, totp)
			}
			return nil
		},
	}
}

func newAccountsCreateCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			acct, err := newAuthManager(a).Register(args[0], password)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s\n", acct.Username)
			return nil
		},
	}
}

func newAccountsDeleteCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account and its conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.store.GetAccountByUsername(args[0])
			if err != nil {
				return err
			}

			// Deleting an account discards its history; make sure.
			answer, err := promptLine(fmt.Sprintf("Delete %s and all saved history? (yes/no): ", acct.Username))
			if err != nil {
				return err
			}
			if answer != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			if err := a.store.DeleteAccount(acct.ID); err != nil {
				return err
			}

			// Signed-in as the deleted account: sign out too.
			if state, stateErr := LoadSignIn(); stateErr == nil && state.AccountID == acct.ID {
				ClearSignIn()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", acct.Username)
			return nil
		},
	}
}

func newAccountsTOTPCmd(root *rootCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "totp",
		Short: "Manage the TOTP second factor for the signed-in account",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Enable TOTP",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				state, err := requireAuth()
				if err != nil {
					return err
				}
				a, err := root.loadApp()
				if err != nil {
					return err
				}
				defer a.Close()

				url, err := newAuthManager(a).EnableTOTP(state.AccountID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "TOTP enabled. Add this URL to your authenticator app:")
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable TOTP",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				state, err := requireAuth()
				if err != nil {
					return err
				}
				a, err := root.loadApp()
				if err != nil {
					return err
				}
				defer a.Close()

				code, err := promptLine("TOTP code: ")
				if err != nil {
					return err
				}
				if err := newAuthManager(a).DisableTOTP(state.AccountID, code); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "TOTP disabled.")
				return nil
			},
		},
	)

	return cmd
}
