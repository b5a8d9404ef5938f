// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jeranaias/palaver/internal/llm"
	"github.com/jeranaias/palaver/internal/util"
)

const askLongDesc = `Ask a single question and stream the answer to stdout.

The response streams as plain text while it arrives; when stdout is a
terminal the final answer is re-rendered as markdown.

Examples:
  palaver ask "What is the capital of France?"
  palaver ask --image chart.png "What does this chart show?"
  palaver ask --plain "Give me a haiku" > haiku.txt`

type askCommander struct {
	root      *rootCommander
	imagePath string
	plain     bool
	system    string
}

func newAskCmd(root *rootCommander) *cobra.Command {
	cmder := &askCommander{root: root}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.imagePath, "image", "i", "", "Attach an image file to the question")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Skip markdown rendering")
	cmd.Flags().StringVar(&cmder.system, "system", "", "System instruction for this question")

	return cmd
}

func (c *askCommander) run(cmd *cobra.Command, question string) error {
	question = util.NormalizeInput(question)
	if question == "" {
		return errors.New("empty question")
	}

	a, err := c.root.loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := buildProvider(a.cfg)
	if err != nil {
		return err
	}

	turn := llm.Turn{Text: question}
	if c.imagePath != "" {
		image, err := loadImageFile(c.imagePath)
		if err != nil {
			return err
		}
		turn.Image = image
	}

	system := c.system
	if system == "" {
		system = a.cfg.SystemPrompt
	}

	chat := provider.StartChat(nil, system)

	out := cmd.OutOrStdout()
	var answer strings.Builder
	var streamErr error

	for frag := range chat.SendStream(cmd.Context(), turn) {
		if frag.Err != nil {
			streamErr = frag.Err
			break
		}
		if frag.Text != "" {
			answer.WriteString(frag.Text)
			fmt.Fprint(out, frag.Text)
		}
	}
	fmt.Fprintln(out)

	if streamErr != nil {
		return fmt.Errorf("stream failed: %w", streamErr)
	}
	if answer.Len() == 0 {
		return errors.New("the model returned no response")
	}

	// Re-render as markdown on a terminal.
	if !c.plain && term.IsTerminal(int(os.Stdout.Fd())) {
		if rendered, err := renderMarkdown(answer.String(), a.cfg.UI.WordWrap); err == nil {
			fmt.Fprint(out, "\n"+rendered)
		}
	}

	return nil
}

// renderMarkdown renders model output for terminal display.
func renderMarkdown(text string, wrap int) (string, error) {
	if wrap <= 0 {
		wrap = 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			wrap = w
		}
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(text)
}

// loadImageFile reads an image from disk and infers its MIME type from the
// extension.
func loadImageFile(path string) (*llm.ImageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}

	mime, err := imageMIME(path)
	if err != nil {
		return nil, err
	}

	return &llm.ImageData{MIME: mime, Data: data}, nil
}

// imageMIME maps a file extension to a supported image MIME type.
func imageMIME(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".gif":
		return "image/gif", nil
	case ".webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("unsupported image type %q (want png, jpeg, gif, or webp)", filepath.Ext(path))
	}
}
