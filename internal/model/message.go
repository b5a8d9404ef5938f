// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies the sender of a message. It is a closed set: every message
// is either from the user or from the model, which keeps rendering and
// context reconstruction exhaustively checkable.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Model"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// TransientImageScheme prefixes image references that only resolve within the
// current session (in-memory attachments). Such references are blanked before
// persistence; the image bytes themselves are never retained across sessions.
const TransientImageScheme = "attach://"

// Message is a single entry in a conversation. Invariant: at least one of
// Text or ImageURL is set.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content. Text may be empty for image-only messages.
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`

	// Streaming state (not persisted). While a model message streams in, the
	// accumulated text lives in streamText and Text stays empty; DisplayText
	// always returns the full accumulated value.
	IsStreaming bool            `json:"-"`
	streamText  strings.Builder `json:"-"`

	// Token statistics for model messages.
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, text string) *Message {
	return &Message{
		ID:        newMessageID(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a user message carrying text, an image reference,
// or both.
func NewUserMessage(text, imageURL string) *Message {
	m := NewMessage(RoleUser, text)
	m.ImageURL = imageURL
	return m
}

// NewModelMessage creates a model message that is still streaming in. The
// first fragment of text may be supplied immediately.
func NewModelMessage(firstFragment string) *Message {
	m := &Message{
		ID:          newMessageID(),
		Role:        RoleModel,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
	m.streamText.WriteString(firstFragment)
	return m
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendFragment appends one streamed fragment to a streaming message. The
// displayed text is always the concatenation of every fragment so far.
func (m *Message) AppendFragment(fragment string) {
	if m.IsStreaming {
		m.streamText.WriteString(fragment)
	}
}

// FinalizeStream completes streaming, merging the accumulated fragments into
// Text. Safe to call on an already-final message.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Text = m.streamText.String()
	m.streamText.Reset()
	m.IsStreaming = false
}

// DisplayText returns the text to display: the live accumulation while
// streaming, the final text otherwise.
func (m *Message) DisplayText() string {
	if m.IsStreaming {
		return m.streamText.String()
	}
	return m.Text
}

// HasText reports whether the message carries any text. Image-only messages
// return false and are excluded from reconstructed context.
func (m *Message) HasText() bool {
	return m.DisplayText() != ""
}

// HasImage reports whether the message carries an image reference.
func (m *Message) HasImage() bool {
	return m.ImageURL != ""
}

// HasTransientImage reports whether the image reference is session-local and
// must be blanked before persistence.
func (m *Message) HasTransientImage() bool {
	return strings.HasPrefix(m.ImageURL, TransientImageScheme)
}

// IsEmpty reports whether the message violates the content invariant.
func (m *Message) IsEmpty() bool {
	return !m.HasText() && !m.HasImage()
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	text := m.DisplayText()
	if text == "" && m.HasImage() {
		text = "[image]"
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// newMessageID creates a unique message ID.
func newMessageID() string {
	return "msg_" + uuid.NewString()
}
