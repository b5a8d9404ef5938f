// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/palaver/internal/model"
	"github.com/jeranaias/palaver/internal/ui/components"
)

// newViewport creates the transcript viewport.
func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.MouseWheelEnabled = true
	return vp
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// renderTranscript rebuilds the viewport content from the snapshot plus the
// in-flight partial message, then follows the tail.
func (m *Model) renderTranscript() {
	if !m.ready {
		return
	}

	messages := m.transcript
	if m.streaming && m.partial != nil && m.partial.HasText() {
		messages = append(append([]*model.Message{}, m.transcript...), m.partial)
	}

	list := components.NewMessageList(m.theme)
	list.SetWidth(m.viewport.Width - 2)
	list.SetMessages(messages)

	m.viewport.SetContent(list.View())
	m.viewport.GotoBottom()
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the whole chat screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting palaver..."
	}

	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
	}

	if m.errTitle != "" {
		sections = append(sections, m.renderErrorBox())
	}
	if m.streaming || m.dictating {
		sections = append(sections, m.renderBusyLine())
	}

	sections = append(sections, m.renderInput(), m.statusBar.View())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("palaver")

	subtitle := ""
	if m.title != "" {
		subtitle = m.theme.HeaderSubtitle.Render("  " + m.title)
	}

	return m.theme.Header.Width(m.width).Render(title + subtitle)
}

func (m Model) renderErrorBox() string {
	var b strings.Builder
	b.WriteString(m.theme.ErrorTitle.Render(m.errTitle))
	if m.errMessage != "" {
		b.WriteString("\n")
		b.WriteString(m.errMessage)
	}
	return m.theme.ErrorBox.Render(b.String())
}

func (m Model) renderBusyLine() string {
	label := "Thinking"
	if m.dictating {
		label = "Listening"
	} else if m.partial != nil && m.partial.HasText() {
		label = "Streaming"
	}
	return m.spin.View() + " " + m.theme.ThinkingText.Render(label+"...")
}

func (m Model) renderInput() string {
	var b strings.Builder
	if m.pendingImageName != "" {
		b.WriteString(m.theme.ImageChip.Render("[image] " + m.pendingImageName))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	return m.theme.InputContainer.Width(m.width - 2).Render(b.String())
}
