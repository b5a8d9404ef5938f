// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/palaver/internal/model"
	"github.com/jeranaias/palaver/internal/util"
)

// =============================================================================
// HISTORY
// =============================================================================

func newHistoryCmd(root *rootCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the signed-in account's saved conversation",
	}

	cmd.AddCommand(
		newHistoryListCmd(root),
		newHistoryExportCmd(root),
		newHistoryClearCmd(root),
	)

	return cmd
}

// loadConversation loads the signed-in account's saved conversation.
func loadConversation(root *rootCommander) (*app, *model.Conversation, error) {
	state, err := requireAuth()
	if err != nil {
		return nil, nil, err
	}

	a, err := root.loadApp()
	if err != nil {
		return nil, nil, err
	}

	conv, err := a.store.LoadConversation(state.AccountID)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, conv, nil
}

func newHistoryListCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the saved conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, conv, err := loadConversation(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if conv == nil || conv.IsEmpty() {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved conversation.")
				return nil
			}

			out := cmd.OutOrStdout()
			if title := conv.GetTitle(); title != "" {
				fmt.Fprintf(out, "# %s\n\n", title)
			}
			for _, msg := range conv.Messages {
				text := msg.DisplayText()
				if text == "" && msg.HasImage() {
					text = "[image]"
				}
				fmt.Fprintf(out, "%s: %s\n", msg.Role.DisplayName(), text)
			}
			return nil
		},
	}
}

type historyExportCommander struct {
	root   *rootCommander
	format string
}

func newHistoryExportCmd(root *rootCommander) *cobra.Command {
	cmder := &historyExportCommander{root: root}

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export the saved conversation to a file",
		Long: `Export the saved conversation to a file.

Formats:
  markdown (default)   Human-readable transcript
  json                 Raw message list`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.format, "format", "f", "markdown", "Export format: markdown or json")

	return cmd
}

func (c *historyExportCommander) run(cmd *cobra.Command, path string) error {
	a, conv, err := loadConversation(c.root)
	if err != nil {
		return err
	}
	defer a.Close()

	if conv == nil || conv.IsEmpty() {
		return fmt.Errorf("no saved conversation to export")
	}

	var data []byte
	switch strings.ToLower(c.format) {
	case "markdown", "md":
		data = []byte(renderTranscript(conv))
	case "json":
		data, err = json.MarshalIndent(conv.Messages, "", "  ")
		if err != nil {
			return fmt.Errorf("could not encode history: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q (want markdown or json)", c.format)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("could not write export: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages to %s\n", conv.MessageCount(), path)
	return nil
}

// renderTranscript renders a conversation as a markdown transcript.
func renderTranscript(conv *model.Conversation) string {
	var b strings.Builder

	title := conv.GetTitle()
	if title == "" {
		title = "Conversation"
	}
	b.WriteString("# " + title + "\n\n")

	for _, msg := range conv.Messages {
		b.WriteString("**" + msg.Role.DisplayName() + ":**\n\n")
		if msg.HasText() {
			b.WriteString(msg.Text + "\n\n")
		}
		if msg.HasImage() && !msg.HasTransientImage() {
			b.WriteString("![image](" + msg.ImageURL + ")\n\n")
		} else if msg.HasImage() {
			b.WriteString("*[attached image]*\n\n")
		}
	}

	return b.String()
}

func newHistoryClearCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved conversation",
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

			answer, err := promptLine("Delete the saved conversation? (yes/no): ")
			if err != nil {
				return err
			}
			if answer != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			if err := a.store.DeleteConversation(state.AccountID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation deleted.")
			return nil
		},
	}
}
