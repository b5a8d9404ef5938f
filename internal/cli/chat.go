// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat REPL.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new, /n            Start a new conversation (keeps the greeting)
//   /history            Show the saved conversation
//   /attach FILE        Attach an image to the next message
//   /status, /s         Show session statistics
//   /quit, /q           Exit chat
//   Ctrl+C              Abort the current line
//   Ctrl+D              Exit chat
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/palaver/internal/config"
	"github.com/jeranaias/palaver/internal/convo"
	"github.com/jeranaias/palaver/internal/model"
	"github.com/jeranaias/palaver/internal/session"
	"github.com/jeranaias/palaver/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// replInput provides input history and line editing for the chat REPL.
// USABILITY: Supports arrow keys for history navigation and line editing.
type replInput struct {
	line        *liner.State
	historyFile string
}

func newREPLInput() *replInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	in := &replInput{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	in.loadHistory()
	return in
}

func (c *replInput) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// readInput reads a line with history navigation.
func (c *replInput) readInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists input history with secure permissions.
func (c *replInput) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

func (c *replInput) Close() {
	c.saveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

const chatLongDesc = `Chat in line mode, without the full-screen UI.

Messages go to the same per-account conversation the UI uses, so a chat
started here continues in the UI and vice versa. Requires sign-in.`

type chatCommander struct {
	root *rootCommander
	app  *app
}

func newChatCmd(root *rootCommander) *cobra.Command {
	cmder := &chatCommander{root: root}

	return &cobra.Command{
		Use:   "chat",
		Short: "Line-mode chat session",
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	state, err := requireAuth()
	if err != nil {
		return err
	}

	a, err := c.root.loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	c.app = a

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
		Timeout:       time.Duration(a.cfg.Security.SessionTimeoutSecs) * time.Second,
		WarningBefore: 2 * time.Minute,
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "palaver chat — %s via %s. Type /help for commands.\n\n",
		state.Username, provider.Name())

	// Show the tail of the restored conversation for context.
	printRecent(out, controller.Conversation(), 4)

	input := newREPLInput()
	defer input.Close()

	pendingImage := ""

	for {
		if !sess.Check() {
			fmt.Fprintln(out, "\nSession expired; signed out.")
			controller.SignOut()
			ClearSignIn()
			return nil
		}

		prompt := "> "
		if pendingImage != "" {
			prompt = "[img] > "
		}

		line, err := input.readInput(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "\nBye.")
			controller.Save()
			return nil
		}
		if err != nil {
			return err
		}

		sess.RecordActivity()

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, imageRef := c.handleSlashCommand(out, controller, sess, line, pendingImage)
			pendingImage = imageRef
			if quit {
				controller.Save()
				return nil
			}
			continue
		}

		fragments, err := controller.Submit(cmd.Context(), line, pendingImage)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		pendingImage = ""
		sess.MarkDirty()

		for frag := range fragments {
			if frag.Err != nil {
				// The accumulator already placed the apology message.
				continue
			}
			fmt.Fprint(out, frag.Text)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out)
		sess.MarkClean()
	}
}

// handleSlashCommand runs a /command. Returns (quit, pendingImage).
func (c *chatCommander) handleSlashCommand(out io.Writer, controller *convo.Controller, sess *session.Manager, line, pendingImage string) (bool, string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		fmt.Fprintln(out, "Bye.")
		return true, pendingImage

	case "/help", "/h":
		fmt.Fprintln(out, `Commands:
  /new, /n        Start a new conversation
  /history        Show the saved conversation
  /attach FILE    Attach an image to the next message
  /status, /s     Show session statistics
  /quit, /q       Exit`)

	case "/new", "/n":
		if err := controller.ResetToGreeting(); err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		} else {
			fmt.Fprintln(out, "Started a new conversation.")
		}
		return false, ""

	case "/history":
		printRecent(out, controller.Conversation(), 0)

	case "/attach":
		if len(fields) < 2 {
			fmt.Fprintln(out, "Usage: /attach FILE")
			return false, pendingImage
		}
		image, err := loadImageFile(fields[1])
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			return false, pendingImage
		}
		ref := controller.Attach(image.MIME, image.Data)
		fmt.Fprintf(out, "Attached %s; it goes with your next message.\n", filepath.Base(fields[1]))
		return false, ref

	case "/status", "/s":
		status := sess.GetStatus()
		conv := controller.Conversation()
		count := 0
		if conv != nil {
			count = conv.MessageCount()
		}
		fmt.Fprintf(out, "Account: %s\nSession: %s\nMessages: %d\nIdle sign-out in: %s\n",
			status.Username,
			session.FormatDuration(status.Duration),
			count,
			session.FormatDuration(status.RemainingTime))
		if conv != nil {
			if usage, err := c.app.store.GetUsage(conv.AccountID); err == nil && usage.Turns > 0 {
				fmt.Fprintf(out, "Lifetime tokens: %d prompt + %d completion over %d exchanges\n",
					usage.PromptTokens, usage.CompletionTokens, usage.Turns)
			}
		}

	default:
		fmt.Fprintf(out, "Unknown command %s (try /help)\n", fields[0])
	}

	return false, pendingImage
}

// printRecent prints the last n messages of the conversation (0 = all).
func printRecent(out io.Writer, conv *model.Conversation, n int) {
	if conv == nil || conv.IsEmpty() {
		return
	}

	messages := conv.Messages
	if n > 0 && len(messages) > n {
		fmt.Fprintf(out, "  … %d earlier messages\n", len(messages)-n)
		messages = messages[len(messages)-n:]
	}

	for _, msg := range messages {
		text := msg.DisplayText()
		if text == "" && msg.HasImage() {
			text = "[image]"
		}
		fmt.Fprintf(out, "%s: %s\n", msg.Role.DisplayName(), util.TruncateRunes(text, 500))
	}
	fmt.Fprintln(out)
}
