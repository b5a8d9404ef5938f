// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/palaver/internal/auth"
	"github.com/jeranaias/palaver/internal/convo"
	"github.com/jeranaias/palaver/internal/dictation"
	"github.com/jeranaias/palaver/internal/session"
	chatui "github.com/jeranaias/palaver/internal/ui/chat"
)

const rootLongDesc = `Palaver is a terminal chat client for hosted and local LLMs.

Running palaver with no arguments opens the full-screen chat UI for the
signed-in account. Conversations are stored per account and restored on the
next sign-in.

Examples:
  palaver                       Open the chat UI
  palaver login alice           Sign in as alice
  palaver ask "Why is the sky blue?"
  palaver chat                  Line-mode chat without the full UI
  palaver history list          Show the saved conversation`

type rootCommander struct {
	configPath string
	provider   string
	model      string
}

// NewRootCmd builds the palaver command tree.
func NewRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "palaver",
		Short:         "Terminal chat client for hosted LLMs",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.runTUI()
		},
	}

	cmd.PersistentFlags().StringVar(&cmder.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVarP(&cmder.provider, "provider", "p", "", "AI provider: ollama, anthropic, openai")
	cmd.PersistentFlags().StringVarP(&cmder.model, "model", "m", "", "Model name (overrides config)")

	cmd.AddCommand(
		newLoginCmd(cmder),
		newLogoutCmd(),
		newAccountsCmd(cmder),
		newAskCmd(cmder),
		newChatCmd(cmder),
		newModelsCmd(cmder),
		newHistoryCmd(cmder),
		newConfigCmd(cmder),
	)

	return cmd
}

// runTUI opens the full-screen chat UI for the signed-in account.
func (r *rootCommander) runTUI() error {
	state, err := LoadSignIn()
	if err != nil {
		return err
	}

	a, err := r.loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := buildProvider(a.cfg)
	if err != nil {
		return err
	}

	controller := convo.NewController(provider, a.store, a.log, convo.Options{
		SubmitsPerSecond: 1,
		SubmitBurst:      3,
	})
	if err := controller.LoadForAccount(state.AccountID); err != nil {
		return err
	}
	if a.cfg.SystemPrompt != "" {
		controller.SetSystemPrompt(a.cfg.SystemPrompt)
	}

	sess := session.NewManager(state.AccountID, state.Username, session.Config{
		Timeout:          time.Duration(a.cfg.Security.SessionTimeoutSecs) * time.Second,
		WarningBefore:    2 * time.Minute,
		AutoSaveEnabled:  true,
		AutoSaveInterval: 30 * time.Second,
	})

	transcriber := dictation.New(a.cfg.Dictation, a.log)

	err = chatui.Run(chatui.Options{
		Controller:   controller,
		Session:      sess,
		Config:       a.cfg,
		Dictation:    transcriber,
		Log:          a.log,
		Username:     state.Username,
		ProviderName: provider.Name(),
	})
	if errors.Is(err, chatui.ErrSessionExpired) {
		_ = ClearSignIn()
		fmt.Println("Session expired. Run: palaver login")
		return nil
	}
	return err
}

// requireAuth loads the sign-in state or fails with a friendly error.
func requireAuth() (*SignInState, error) {
	return LoadSignIn()
}

// newAuthManager builds the auth manager with the configured lockout policy.
func newAuthManager(a *app) *auth.Manager {
	return auth.NewManager(a.store, a.log, auth.Options{
		MaxAttempts:     a.cfg.Security.MaxLoginAttempts,
		LockoutDuration: time.Duration(a.cfg.Security.LockoutDurationMinutes) * time.Minute,
	})
}
