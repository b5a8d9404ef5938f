// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}
	if cfg.Provider != "ollama" {
		t.Errorf("Default provider = %q", cfg.Provider)
	}
}

func TestLoadFromPathTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
provider = "anthropic"
system_prompt = "You are terse."

[anthropic]
api_key = "sk-test"
model = "claude-sonnet-4-5"

[ui]
theme = "light"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Anthropic.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q", cfg.UI.Theme)
	}
	// Unset fields fall back to defaults.
	if cfg.Ollama.URL == "" {
		t.Error("Expected default Ollama URL")
	}
	if cfg.Anthropic.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want default 4096", cfg.Anthropic.MaxTokens)
	}
}

func TestLoadFromPathJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{"provider": "openai", "openai": {"model": "gpt-4o-mini"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Provider != "openai" || cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("Got provider=%q model=%q", cfg.Provider, cfg.OpenAI.Model)
	}
}

func TestLoadFixesInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`provider = "ollama"`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Permissions = %o, want 0600", info.Mode().Perm())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.Provider = "llamacpp" }},
		{"timeout too short", func(c *Config) { c.Security.SessionTimeoutSecs = 10 }},
		{"timeout too long", func(c *Config) { c.Security.SessionTimeoutSecs = 90000 }},
		{"too few attempts", func(c *Config) { c.Security.MaxLoginAttempts = 1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad theme", func(c *Config) { c.UI.Theme = "sepia" }},
		{"negative wrap", func(c *Config) { c.UI.WordWrap = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PALAVER_PROVIDER", "anthropic")
	t.Setenv("PALAVER_MODEL", "claude-test")
	t.Setenv("PALAVER_ANTHROPIC_KEY", "sk-env")
	t.Setenv("PALAVER_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Anthropic.Model != "claude-test" {
		t.Errorf("Model = %q", cfg.Anthropic.Model)
	}
	if cfg.Anthropic.APIKey != "sk-env" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Provider = "openai"
	cfg.OpenAI.Model = "gpt-4o"
	cfg.UI.ShowTokens = false

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.Provider != "openai" || loaded.OpenAI.Model != "gpt-4o" {
		t.Errorf("Round trip lost provider settings")
	}
	if loaded.UI.ShowTokens {
		t.Error("Round trip lost ui.show_tokens = false")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Saved permissions = %o, want 0600", info.Mode().Perm())
	}
}

func TestGetSetDotNotation(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("ollama.model", "mistral"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := cfg.Get("ollama.model")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "mistral" {
		t.Errorf("Get = %v", got)
	}

	if err := cfg.Set("ui.show_tokens", "false"); err != nil {
		t.Fatalf("Set bool: %v", err)
	}
	if cfg.UI.ShowTokens {
		t.Error("show_tokens should be false")
	}

	if err := cfg.Set("anthropic.max_tokens", "1024"); err != nil {
		t.Fatalf("Set int: %v", err)
	}
	if cfg.Anthropic.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d", cfg.Anthropic.MaxTokens)
	}

	if _, err := cfg.Get("no.such.key"); err == nil {
		t.Error("Expected error for unknown key")
	}
}

func TestStringRedactsKeys(t *testing.T) {
	cfg := Default()
	cfg.Anthropic.APIKey = "sk-super-secret"
	cfg.OpenAI.APIKey = "sk-also-secret"

	s := cfg.String()
	if strings.Contains(s, "sk-super-secret") || strings.Contains(s, "sk-also-secret") {
		t.Error("String() leaked an API key")
	}
	if !strings.Contains(s, "[REDACTED]") {
		t.Error("String() should mark redacted fields")
	}
	// Original untouched.
	if cfg.Anthropic.APIKey != "sk-super-secret" {
		t.Error("String() mutated the config")
	}
}

func TestConcurrentGlobalAccess(t *testing.T) {
	ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()

		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}

	wg.Wait()
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`provider = "ollama"`), 0600); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte(`provider = "openai"`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Provider != "openai" {
			t.Errorf("Reloaded provider = %q", cfg.Provider)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`provider = "ollama"`), 0600); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Error("Sibling file change triggered a reload")
	case <-time.After(600 * time.Millisecond):
	}
}
