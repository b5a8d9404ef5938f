// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file holds the tea.Cmd constructors that bridge the Bubble Tea loop
// to the conversation controller and the dictation transcriber. Each command
// runs on its own goroutine and reports back with a single message.
package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/palaver/internal/convo"
	"github.com/jeranaias/palaver/internal/dictation"
	"github.com/jeranaias/palaver/internal/llm"
)

// =============================================================================
// SUBMIT
// =============================================================================

// submitCmd hands one user turn to the controller. On acceptance the user
// message is already part of the conversation and the returned channel
// carries the response stream.
func submitCmd(c *convo.Controller, text, imageRef string) tea.Cmd {
	return func() tea.Msg {
		fragments, err := c.Submit(context.Background(), text, imageRef)
		if err != nil {
			return SubmitErrorMsg{Err: err}
		}
		return StreamStartMsg{Fragments: fragments, StartTime: time.Now()}
	}
}

// waitFragmentCmd reads the next fragment from an open stream. A closed
// channel means the controller has settled the conversation.
func waitFragmentCmd(fragments <-chan llm.Fragment) tea.Cmd {
	return func() tea.Msg {
		frag, ok := <-fragments
		if !ok {
			return StreamDoneMsg{}
		}
		return StreamFragmentMsg{Fragment: frag}
	}
}

// =============================================================================
// DICTATION
// =============================================================================

// dictateCmd runs the external transcriber and delivers its text.
func dictateCmd(t *dictation.Transcriber) tea.Cmd {
	return func() tea.Msg {
		text, err := t.Transcribe(context.Background())
		return DictationDoneMsg{Text: text, Err: err}
	}
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// attachCmd reads an image file and registers it with the controller as a
// session-local attachment for the next submit.
func attachCmd(c *convo.Controller, path string) tea.Cmd {
	return func() tea.Msg {
		mime, err := attachMIME(path)
		if err != nil {
			return AttachDoneMsg{Err: err}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return AttachDoneMsg{Err: fmt.Errorf("read image: %w", err)}
		}
		ref := c.Attach(mime, data)
		return AttachDoneMsg{Ref: ref, Name: filepath.Base(path)}
	}
}

// attachMIME maps an image file extension to its MIME type.
func attachMIME(path string) (string, error) {
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
		return "", fmt.Errorf("unsupported image type: %s", filepath.Ext(path))
	}
}
