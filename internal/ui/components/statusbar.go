// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/palaver/internal/ui/styles"
)

// =============================================================================
// STATUS BAR COMPONENT - Bottom status bar
// =============================================================================

// Status represents the current application status.
type Status int

const (
	StatusReady Status = iota
	StatusStreaming
	StatusThinking
	StatusError
)

// String returns the display string for the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusStreaming:
		return "Streaming..."
	case StatusThinking:
		return "Thinking..."
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Icon returns a shape indicator for the status.
// ACCESSIBILITY: Uses distinct shapes alongside colors for colorblind users
func (s Status) Icon() string {
	switch s {
	case StatusReady:
		return "+"
	case StatusStreaming:
		return "~"
	case StatusThinking:
		return "o"
	case StatusError:
		return "x"
	default:
		return "?"
	}
}

// StatusBar is the bottom status bar: who is signed in, which model is
// answering, how many tokens the exchange used, and how long until the
// session locks.
type StatusBar struct {
	Username         string
	Provider         string
	ModelName        string
	Status           Status
	Dirty            bool          // unsaved conversation changes
	PromptTokens     int64         // from the last completed exchange
	CompletionTokens int64
	SessionRemaining time.Duration // time until the session expires
	Width            int
	ShowShortcuts    bool

	theme *styles.Theme
}

// NewStatusBar creates a new StatusBar component.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		Status:        StatusReady,
		Width:         80,
		ShowShortcuts: true,
		theme:         theme,
	}
}

// SetWidth updates the status bar width.
func (s *StatusBar) SetWidth(width int) {
	s.Width = width
}

// SetStatus updates the current status.
func (s *StatusBar) SetStatus(status Status) {
	s.Status = status
}

// SetTokenUsage records the usage from the last completed exchange.
func (s *StatusBar) SetTokenUsage(prompt, completion int64) {
	s.PromptTokens = prompt
	s.CompletionTokens = completion
}

// View renders the status bar.
func (s *StatusBar) View() string {
	if s.Width < 60 {
		return s.viewNarrow()
	}
	return s.viewWide()
}

// viewNarrow renders a compact status bar for narrow terminals.
// Format: user | model | status-icon
func (s *StatusBar) viewNarrow() string {
	separator := lipgloss.NewStyle().Foreground(styles.Overlay).Render(" | ")

	parts := []string{}
	if s.Username != "" {
		parts = append(parts, s.theme.ShortcutKey.Render(s.Username))
	}
	if s.ModelName != "" {
		parts = append(parts, s.theme.ShortcutDesc.Render(truncateLabel(s.ModelName, 15)))
	}
	status := s.statusStyle().Render(s.Status.Icon())
	if s.Dirty {
		status += s.theme.StatusDirty.Render("*")
	}
	parts = append(parts, status)

	return s.theme.StatusBar.
		Width(s.Width).
		Render(strings.Join(parts, separator))
}

// viewWide renders the full status bar.
// Format: user | provider:model | tokens | session | status    shortcuts
func (s *StatusBar) viewWide() string {
	separator := lipgloss.NewStyle().Foreground(styles.Overlay).Render(" | ")

	leftParts := []string{}
	if s.Username != "" {
		leftParts = append(leftParts, s.theme.ShortcutKey.Render(s.Username))
	}
	if s.ModelName != "" {
		label := s.ModelName
		if s.Provider != "" {
			label = s.Provider + ":" + label
		}
		leftParts = append(leftParts, s.theme.ShortcutDesc.Render(truncateLabel(label, 30)))
	}
	if s.PromptTokens > 0 || s.CompletionTokens > 0 {
		tok := fmt.Sprintf("%d+%d tok", s.PromptTokens, s.CompletionTokens)
		leftParts = append(leftParts, lipgloss.NewStyle().Foreground(styles.TextMuted).Render(tok))
	}
	if s.SessionRemaining > 0 {
		leftParts = append(leftParts, s.renderSessionRemaining())
	}

	status := s.statusStyle().Render(s.Status.Icon() + " " + s.Status.String())
	if s.Dirty {
		status += s.theme.StatusDirty.Render(" *unsaved")
	}
	leftParts = append(leftParts, status)

	leftSection := strings.Join(leftParts, separator)

	rightSection := ""
	if s.ShowShortcuts {
		rightSection = s.renderShortcuts()
	}

	spacing := s.Width - lipgloss.Width(leftSection) - lipgloss.Width(rightSection) - 2
	if spacing < 1 {
		spacing = 1
	}

	return s.theme.StatusBar.
		Width(s.Width).
		Render(leftSection + strings.Repeat(" ", spacing) + rightSection)
}

// renderSessionRemaining shows the time until the session locks.
// Turns amber under five minutes so the warning is visible at a glance.
func (s *StatusBar) renderSessionRemaining() string {
	remaining := s.SessionRemaining.Round(time.Second)
	label := fmt.Sprintf("session %s", formatRemaining(remaining))

	style := lipgloss.NewStyle().Foreground(styles.TextMuted)
	if remaining < 5*time.Minute {
		style = lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
	}
	return style.Render(label)
}

// renderShortcuts renders keyboard shortcut hints.
func (s *StatusBar) renderShortcuts() string {
	shortcuts := []string{
		s.theme.ShortcutKey.Render("^N") + s.theme.ShortcutDesc.Render("new"),
		s.theme.ShortcutKey.Render("^O") + s.theme.ShortcutDesc.Render("attach"),
		s.theme.ShortcutKey.Render("^C") + s.theme.ShortcutDesc.Render("quit"),
	}
	return strings.Join(shortcuts, " ")
}

func (s *StatusBar) statusStyle() lipgloss.Style {
	switch s.Status {
	case StatusReady:
		return s.theme.StatusReady
	case StatusStreaming, StatusThinking:
		return s.theme.StatusBusy
	case StatusError:
		return s.theme.StatusError
	default:
		return s.theme.ShortcutDesc
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// truncateLabel shortens a label to max runes with an ellipsis.
// UNICODE: Rune-based truncation, never splits a multi-byte character.
func truncateLabel(label string, max int) string {
	runes := []rune(label)
	if len(runes) <= max {
		return label
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// formatRemaining renders a duration as "12m" or "1h05m" or "45s".
func formatRemaining(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%02dm", hours, minutes)
}
