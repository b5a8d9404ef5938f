// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/palaver/internal/llm/ollama"
)

// =============================================================================
// MODELS
// =============================================================================

const modelsLongDesc = `List the models available to the configured provider.

For the local Ollama provider this queries the server's installed models.
Hosted providers have no local catalog, so the configured model is shown
instead.`

func newModelsCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()

			switch strings.ToLower(a.cfg.Provider) {
			case "ollama", "":
				client := ollama.NewClientWithConfig(&ollama.ClientConfig{
					BaseURL:      a.cfg.Ollama.URL,
					DefaultModel: a.cfg.Ollama.Model,
				})
				models, err := client.ListModels(cmd.Context())
				if err != nil {
					return fmt.Errorf("could not list models from %s: %w", a.cfg.Ollama.URL, err)
				}
				if len(models) == 0 {
					fmt.Fprintln(out, "No models installed. Pull one with: ollama pull "+a.cfg.Ollama.Model)
					return nil
				}
				for _, m := range models {
					marker := " "
					if m.Name == a.cfg.Ollama.Model {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %-40s %9s  %s\n",
						marker, m.Name, formatModelSize(m.Size), m.ModifiedAt.Format("2006-01-02"))
				}
				return nil

			case "anthropic":
				fmt.Fprintf(out, "anthropic has no local model catalog; configured model: %s\n",
					a.cfg.Anthropic.Model)
				return nil

			case "openai":
				fmt.Fprintf(out, "openai has no local model catalog; configured model: %s\n",
					a.cfg.OpenAI.Model)
				return nil

			default:
				return fmt.Errorf("unknown provider %q (want ollama, anthropic, or openai)", a.cfg.Provider)
			}
		},
	}
}

// formatModelSize renders a model's on-disk byte count.
func formatModelSize(n int64) string {
	const (
		kb = int64(1) << 10
		mb = int64(1) << 20
		gb = int64(1) << 30
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
