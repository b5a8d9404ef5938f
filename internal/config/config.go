// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// palaver.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.palaver/config.toml
//   - ~/.palaver/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/palaver/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete palaver configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`

	// Provider selects which AI backend answers chat turns:
	// "ollama", "anthropic", or "openai".
	Provider string `toml:"provider" json:"provider"`

	// SystemPrompt is prepended to every conversation sent to the provider.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`

	Ollama    OllamaConfig    `toml:"ollama" json:"ollama"`
	Anthropic AnthropicConfig `toml:"anthropic" json:"anthropic"`
	OpenAI    OpenAIConfig    `toml:"openai" json:"openai"`
	Security  SecurityConfig  `toml:"security" json:"security"`
	Dictation DictationConfig `toml:"dictation" json:"dictation"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
	UI        UIConfig        `toml:"ui" json:"ui"`
}

// OllamaConfig contains local Ollama server configuration.
type OllamaConfig struct {
	// URL is the base URL of the Ollama server.
	URL string `toml:"url" json:"url"`
	// Model is the model to chat with.
	Model string `toml:"model" json:"model"`
}

// AnthropicConfig contains Anthropic API configuration.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (also via PALAVER_ANTHROPIC_KEY).
	APIKey string `toml:"api_key" json:"api_key"`
	// Model is the model to chat with.
	Model string `toml:"model" json:"model"`
	// MaxTokens bounds each response.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
}

// OpenAIConfig contains OpenAI API configuration.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (also via PALAVER_OPENAI_KEY).
	APIKey string `toml:"api_key" json:"api_key"`
	// Model is the model to chat with.
	Model string `toml:"model" json:"model"`
	// MaxTokens bounds each response.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
}

// SecurityConfig contains sign-in and session configuration.
type SecurityConfig struct {
	// SessionTimeoutSecs is the idle duration in seconds before the account
	// is signed out. Valid range: 300-7200.
	SessionTimeoutSecs int `toml:"session_timeout_secs" json:"session_timeout_secs"`
	// MaxLoginAttempts is the number of failed sign-ins before lockout.
	MaxLoginAttempts int `toml:"max_login_attempts" json:"max_login_attempts"`
	// LockoutDurationMinutes is how long an account stays locked.
	LockoutDurationMinutes int `toml:"lockout_duration_minutes" json:"lockout_duration_minutes"`
}

// DictationConfig contains the optional speech-to-text configuration.
// When Command is empty the dictation feature is not offered.
type DictationConfig struct {
	// Command is the external transcriber executable. Its stdout becomes the
	// dictated text.
	Command string `toml:"command" json:"command"`
	// Args are passed to the command.
	Args []string `toml:"args" json:"args"`
	// TimeoutSecs bounds a single transcription run.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// LoggingConfig contains log output configuration. Logs go to a file, never
// to the terminal the chat runs in.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level"`
	// Path is the log file path (empty = ~/.palaver/palaver.log).
	Path string `toml:"path" json:"path"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// ShowTokens displays token counts in the status bar
	ShowTokens bool `toml:"show_tokens" json:"show_tokens"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
	// WordWrap is the markdown render width (0 = terminal width).
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		Provider:     "ollama",
		SystemPrompt: "",

		Ollama: OllamaConfig{
			URL:   "http://127.0.0.1:11434",
			Model: "llama3.2-vision",
		},

		Anthropic: AnthropicConfig{
			APIKey:    "",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		},

		OpenAI: OpenAIConfig{
			APIKey:    "",
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},

		Security: SecurityConfig{
			SessionTimeoutSecs:     1800,
			MaxLoginAttempts:       3,
			LockoutDurationMinutes: 15,
		},

		Dictation: DictationConfig{
			Command:     "",
			TimeoutSecs: 60,
		},

		Logging: LoggingConfig{
			Level: "info",
			Path:  "",
		},

		UI: UIConfig{
			Theme:       "dark",
			ShowTokens:  true,
			CompactMode: false,
			WordWrap:    0,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the palaver configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".palaver"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DatabasePath returns the path to the account/history database.
func DatabasePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "palaver.db"), nil
}

// LogPath returns the effective log file path.
func (c *Config) LogPath() (string, error) {
	if c.Logging.Path != "" {
		return c.Logging.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "palaver.log"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err // File doesn't exist or not accessible
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err = finishLoad(cfg)
	if err != nil {
		return nil, err
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// finishLoad applies env overrides, defaults, and validation.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finishLoad(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// SECURITY: Ensure permissions are correct even if file already existed
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# palaver configuration file")
	fmt.Fprintln(file, "# Generated by palaver - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Validate provider
	validProviders := map[string]bool{"ollama": true, "anthropic": true, "openai": true}
	if !validProviders[strings.ToLower(c.Provider)] {
		errs = append(errs, ValidationError{
			Field:   "provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: ollama, anthropic, openai", c.Provider),
		})
	}

	// Validate Ollama URL
	if c.Ollama.URL != "" {
		if _, err := url.Parse(c.Ollama.URL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "ollama.url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}

	// Validate response token bounds
	if c.Anthropic.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "anthropic.max_tokens",
			Message: "must be non-negative",
		})
	}
	if c.OpenAI.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "openai.max_tokens",
			Message: "must be non-negative",
		})
	}

	// Validate session timeout
	// SECURITY: Sessions must idle out within a sane window so unattended
	// terminals don't stay signed in indefinitely.
	if c.Security.SessionTimeoutSecs < 300 || c.Security.SessionTimeoutSecs > 7200 {
		errs = append(errs, ValidationError{
			Field:   "security.session_timeout_secs",
			Message: fmt.Sprintf("must be 300-7200 seconds, got %d", c.Security.SessionTimeoutSecs),
		})
	}

	// Validate lockout settings
	if c.Security.MaxLoginAttempts < 3 || c.Security.MaxLoginAttempts > 10 {
		errs = append(errs, ValidationError{
			Field:   "security.max_login_attempts",
			Message: fmt.Sprintf("max_login_attempts must be 3-10, got %d", c.Security.MaxLoginAttempts),
		})
	}
	if c.Security.LockoutDurationMinutes < 1 || c.Security.LockoutDurationMinutes > 60 {
		errs = append(errs, ValidationError{
			Field:   "security.lockout_duration_minutes",
			Message: fmt.Sprintf("lockout_duration_minutes must be 1-60, got %d", c.Security.LockoutDurationMinutes),
		})
	}

	// Validate dictation timeout
	if c.Dictation.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "dictation.timeout_secs",
			Message: "must be non-negative",
		})
	}

	// Validate log level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	// Validate UI theme
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{
			Field:   "ui.word_wrap",
			Message: "must be non-negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Provider == "" {
		c.Provider = defaults.Provider
	}

	if c.Ollama.URL == "" {
		c.Ollama.URL = defaults.Ollama.URL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = defaults.Ollama.Model
	}

	if c.Anthropic.Model == "" {
		c.Anthropic.Model = defaults.Anthropic.Model
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = defaults.Anthropic.MaxTokens
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaults.OpenAI.Model
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = defaults.OpenAI.MaxTokens
	}

	if c.Security.SessionTimeoutSecs == 0 {
		c.Security.SessionTimeoutSecs = defaults.Security.SessionTimeoutSecs
	}
	if c.Security.MaxLoginAttempts == 0 {
		c.Security.MaxLoginAttempts = defaults.Security.MaxLoginAttempts
	}
	if c.Security.LockoutDurationMinutes == 0 {
		c.Security.LockoutDurationMinutes = defaults.Security.LockoutDurationMinutes
	}

	if c.Dictation.TimeoutSecs == 0 {
		c.Dictation.TimeoutSecs = defaults.Dictation.TimeoutSecs
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - PALAVER_PROVIDER: overrides provider
//   - PALAVER_MODEL: overrides the active provider's model
//   - PALAVER_OLLAMA_URL: overrides ollama.url
//   - PALAVER_ANTHROPIC_KEY: overrides anthropic.api_key
//   - PALAVER_OPENAI_KEY: overrides openai.api_key
//   - PALAVER_SYSTEM_PROMPT: overrides system_prompt
//   - PALAVER_LOG_LEVEL: overrides logging.level
//   - PALAVER_DICTATION_CMD: overrides dictation.command
func (c *Config) ApplyEnvOverrides() {
	if provider := os.Getenv("PALAVER_PROVIDER"); provider != "" {
		c.Provider = provider
	}

	if model := os.Getenv("PALAVER_MODEL"); model != "" {
		switch strings.ToLower(c.Provider) {
		case "anthropic":
			c.Anthropic.Model = model
		case "openai":
			c.OpenAI.Model = model
		default:
			c.Ollama.Model = model
		}
	}

	if url := os.Getenv("PALAVER_OLLAMA_URL"); url != "" {
		c.Ollama.URL = url
	}

	if key := os.Getenv("PALAVER_ANTHROPIC_KEY"); key != "" {
		c.Anthropic.APIKey = key
	}
	if key := os.Getenv("PALAVER_OPENAI_KEY"); key != "" {
		c.OpenAI.APIKey = key
	}

	if prompt := os.Getenv("PALAVER_SYSTEM_PROMPT"); prompt != "" {
		c.SystemPrompt = prompt
	}

	if level := os.Getenv("PALAVER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if cmd := os.Getenv("PALAVER_DICTATION_CMD"); cmd != "" {
		c.Dictation.Command = cmd
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "ollama.model").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		// If this is the last part, return the value
		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "ollama.model").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		// If this is the last part, set the value
		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	// Struct names that don't follow simple capitalization
	switch strings.ToLower(name) {
	case "openai":
		return "OpenAI"
	case "api_key":
		return "APIKey"
	case "url":
		return "URL"
	case "ui":
		return "UI"
	}

	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	// Handle string input with type conversion
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	// Direct assignment for matching types
	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}

	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"provider",
		"system_prompt",
		"ollama.url",
		"ollama.model",
		"anthropic.api_key",
		"anthropic.model",
		"anthropic.max_tokens",
		"openai.api_key",
		"openai.model",
		"openai.max_tokens",
		"security.session_timeout_secs",
		"security.max_login_attempts",
		"security.lockout_duration_minutes",
		"dictation.command",
		"dictation.timeout_secs",
		"logging.level",
		"logging.path",
		"ui.theme",
		"ui.show_tokens",
		"ui.compact_mode",
		"ui.word_wrap",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Dictation.Args != nil {
		clone.Dictation.Args = make([]string, len(c.Dictation.Args))
		copy(clone.Dictation.Args, c.Dictation.Args)
	}
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts API keys to prevent accidental exposure in logs,
// error messages, or debug output.
func (c *Config) String() string {
	safe := c.Clone()

	if safe.Anthropic.APIKey != "" {
		safe.Anthropic.APIKey = "[REDACTED]"
	}
	if safe.OpenAI.APIKey != "" {
		safe.OpenAI.APIKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Log but don't fail - use defaults
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
