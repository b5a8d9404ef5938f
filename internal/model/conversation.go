// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/palaver/internal/llm"
)

// MaxMessages is the maximum number of messages to keep in conversation
// history. When exceeded, the oldest messages are pruned to prevent unbounded
// memory growth.
const MaxMessages = 1000

// GreetingText is the single message a fresh conversation starts with.
const GreetingText = "Hi! I'm ready when you are. Ask me anything."

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds one account's chat: an append-only, oldest-first list of
// messages plus metadata. All mutation happens through its methods so the
// stability invariant holds: appending or updating the last message never
// touches earlier entries.
type Conversation struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	// SystemPrompt is handed to the model service at chat start; it is not a
	// Message and never appears in the displayed list.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// NewConversation creates an empty conversation for an account.
func NewConversation(accountID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		AccountID: accountID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// NewGreetedConversation creates a conversation holding only the greeting.
func NewGreetedConversation(accountID string) *Conversation {
	c := NewConversation(accountID)
	c.Messages = append(c.Messages, NewMessage(RoleModel, GreetingText))
	return c
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
	c.pruneOldMessages()
}

// AddUserMessage creates and appends a user message.
func (c *Conversation) AddUserMessage(text, imageURL string) *Message {
	msg := NewUserMessage(text, imageURL)
	c.AddMessage(msg)
	return msg
}

// BeginModelMessage appends a streaming model message seeded with the first
// fragment and returns it. Exactly one such message exists per exchange; the
// caller finishes it with FinalizeLast.
func (c *Conversation) BeginModelMessage(firstFragment string) *Message {
	msg := NewModelMessage(firstFragment)
	c.AddMessage(msg)
	return msg
}

// AppendToLast appends a fragment to the last message if it is streaming.
func (c *Conversation) AppendToLast(fragment string) {
	last := c.LastMessage()
	if last != nil && last.IsStreaming {
		last.AppendFragment(fragment)
		c.UpdatedAt = time.Now()
	}
}

// FinalizeLast completes the last streaming message, recording token counts
// when known.
func (c *Conversation) FinalizeLast(promptTokens, completionTokens int) {
	last := c.LastMessage()
	if last != nil && last.IsStreaming {
		last.FinalizeStream()
		last.PromptTokens = promptTokens
		last.CompletionTokens = completionTokens
		c.UpdatedAt = time.Now()
	}
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// ResetToGreeting clears history down to the single greeting message. Used
// when the user starts a new conversation.
func (c *Conversation) ResetToGreeting() {
	c.Messages = []*Message{NewMessage(RoleModel, GreetingText)}
	c.Title = ""
	c.UpdatedAt = time.Now()
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// CONTEXT RECONSTRUCTION
// =============================================================================

// BuildContext reconstructs the role/text context handed to the model service
// when starting or continuing a chat. Messages without text (image-only
// turns) are dropped: the service does not accept persisted image data back,
// so an image contributes nothing to remembered context after the turn in
// which it occurred. Relative order and role of the remaining messages are
// preserved. Total over any message list, including empty, and idempotent.
func (c *Conversation) BuildContext() []llm.Content {
	out := make([]llm.Content, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if !msg.HasText() {
			continue
		}
		out = append(out, llm.NewContent(msg.Role.String(), msg.DisplayText()))
	}
	return out
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a deep copy of the conversation. Streaming state is not
// carried over; cloned messages hold their display text as final text.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:           c.ID,
		AccountID:    c.AccountID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		SystemPrompt: c.SystemPrompt,
		Messages:     make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		copied := &Message{
			ID:               msg.ID,
			Role:             msg.Role,
			Timestamp:        msg.Timestamp,
			Text:             msg.DisplayText(),
			ImageURL:         msg.ImageURL,
			PromptTokens:     msg.PromptTokens,
			CompletionTokens: msg.CompletionTokens,
		}
		clone.Messages[i] = copied
	}
	return clone
}

// pruneOldMessages drops the oldest messages once the list exceeds
// MaxMessages.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}
	c.Messages = c.Messages[len(c.Messages)-MaxMessages:]
}
