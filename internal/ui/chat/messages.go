// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines all Bubble Tea message types used by the chat interface.
// Messages are organized into the following categories:
//   - Streaming: stream start, fragment delivery, completion, and ticks
//   - Input: submit failures and dictation results
//   - Errors: error display and dismissal
//
// All message types follow Bubble Tea conventions and are immutable.
package chat

import (
	"time"

	"github.com/jeranaias/palaver/internal/llm"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartMsg signals that a submit was accepted and a response stream is
// open. The user message has already been appended to the conversation by the
// time this message is delivered.
type StreamStartMsg struct {
	Fragments <-chan llm.Fragment
	StartTime time.Time
}

// StreamFragmentMsg delivers one fragment from the response stream.
type StreamFragmentMsg struct {
	Fragment llm.Fragment
}

// StreamDoneMsg signals that the response stream has closed and the
// conversation holds the settled model message.
type StreamDoneMsg struct{}

// StreamTickMsg is sent at 30fps during streaming to batch-render fragments.
// This prevents excessive rendering which causes flicker and high CPU.
type StreamTickMsg struct {
	Time time.Time
}

// =============================================================================
// INPUT MESSAGES
// =============================================================================

// SubmitErrorMsg signals that a submit was rejected before any stream opened,
// for example while a previous response is still in flight.
type SubmitErrorMsg struct {
	Err error
}

// DictationDoneMsg delivers the result of an external transcription run.
type DictationDoneMsg struct {
	Text string
	Err  error
}

// AttachDoneMsg confirms an image attachment and carries its session-local
// reference for the next submit.
type AttachDoneMsg struct {
	Ref  string
	Name string
	Err  error
}

// =============================================================================
// ERROR MESSAGES
// =============================================================================

// ErrorMsg displays an error to the user.
type ErrorMsg struct {
	Title   string
	Message string
}

// ErrorDismissMsg dismisses the current error.
type ErrorDismissMsg struct{}

// NewErrorMsg creates an error message.
func NewErrorMsg(title, message string) ErrorMsg {
	return ErrorMsg{Title: title, Message: message}
}
