// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the palaver command surface: the default TUI,
// one-shot ask, a line-mode chat REPL, and account/history/config management.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/jeranaias/palaver/internal/config"
	"github.com/jeranaias/palaver/internal/llm"
	"github.com/jeranaias/palaver/internal/llm/anthropic"
	"github.com/jeranaias/palaver/internal/llm/ollama"
	"github.com/jeranaias/palaver/internal/llm/openai"
	"github.com/jeranaias/palaver/internal/logging"
	"github.com/jeranaias/palaver/internal/store"
)

// =============================================================================
// APP BOOTSTRAP
// =============================================================================

// app bundles the dependencies every command needs. Built once per
// invocation by loadApp.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.Store
}

// loadApp loads configuration (honoring --config), opens the log file and
// the database.
func (r *rootCommander) loadApp() (*app, error) {
	var cfg *config.Config
	var err error

	if r.configPath != "" {
		cfg, err = config.LoadFromPath(r.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		// A broken config file falls back to defaults with a warning; only
		// validation failures are fatal.
		cfg, err = config.Load()
		if err != nil && cfg == nil {
			return nil, err
		}
	}

	if r.provider != "" {
		cfg.Provider = r.provider
	}
	if r.model != "" {
		switch strings.ToLower(cfg.Provider) {
		case "anthropic":
			cfg.Anthropic.Model = r.model
		case "openai":
			cfg.OpenAI.Model = r.model
		default:
			cfg.Ollama.Model = r.model
		}
	}

	log, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}

	dbPath, err := config.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	return &app{cfg: cfg, log: log, store: st}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		a.log.Sync()
	}
}

// buildProvider constructs the configured AI backend.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		client := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.Ollama.URL,
			DefaultModel: cfg.Ollama.Model,
		})
		return ollama.NewProvider(client, cfg.Ollama.Model), nil
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but no API key configured (set anthropic.api_key or PALAVER_ANTHROPIC_KEY)")
		}
		return anthropic.NewProvider(anthropic.Config{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: int64(cfg.Anthropic.MaxTokens),
		}), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider selected but no API key configured (set openai.api_key or PALAVER_OPENAI_KEY)")
		}
		return openai.NewProvider(openai.Config{
			APIKey:    cfg.OpenAI.APIKey,
			Model:     cfg.OpenAI.Model,
			MaxTokens: int64(cfg.OpenAI.MaxTokens),
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want ollama, anthropic, or openai)", cfg.Provider)
	}
}

// =============================================================================
// PROMPTS
// =============================================================================

// promptLine reads one line from stdin with a visible prompt.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echoing it.
// SECURITY: Uses term.ReadPassword so the password never appears on screen.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	return string(passBytes), nil
}
