// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the provider-neutral boundary to hosted language models.
//
// A Provider turns prior conversation context plus a system instruction into a
// Chat. A Chat accepts one turn at a time (text and/or an inline image) and
// streams the response back as Fragments. Everything above this package works
// exclusively with these types; the provider subpackages (ollama, anthropic,
// openai) translate them to their wire formats.
package llm

import (
	"context"
	"errors"
)

// =============================================================================
// CONTEXT TYPES
// =============================================================================

// Content is one prior turn of conversation context: a role plus text parts.
// Image turns never appear here; the reconstruction that produces Content
// drops messages without text (see the model package).
type Content struct {
	Role  string `json:"role"` // "user" or "model"
	Parts []Part `json:"parts"`
}

// Part is a single text fragment of a context entry.
type Part struct {
	Text string `json:"text"`
}

// NewContent builds a single-part context entry.
func NewContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// Text joins all parts of a context entry.
func (c Content) Text() string {
	switch len(c.Parts) {
	case 0:
		return ""
	case 1:
		return c.Parts[0].Text
	}
	out := ""
	for _, p := range c.Parts {
		out += p.Text
	}
	return out
}

// =============================================================================
// TURN AND FRAGMENT TYPES
// =============================================================================

// ImageData is inline image bytes with their MIME type, sent with a turn.
type ImageData struct {
	MIME string
	Data []byte
}

// Turn is the next user message to send: text, an image, or both.
type Turn struct {
	Text  string
	Image *ImageData
}

// IsEmpty reports whether the turn carries neither text nor image.
func (t Turn) IsEmpty() bool {
	return t.Text == "" && t.Image == nil
}

// Fragment is one unit of partial response text delivered while the model is
// still generating. A Fragment with Done set is the final one for its turn;
// Err is only ever set on a final Fragment.
type Fragment struct {
	Text string
	Done bool
	Err  error

	// Token counts, populated on the final fragment when the provider
	// reports them (zero otherwise).
	PromptTokens     int
	CompletionTokens int
}

// =============================================================================
// PROVIDER INTERFACE
// =============================================================================

// Provider creates chats against one model service.
type Provider interface {
	// Name identifies the provider ("ollama", "anthropic", "openai").
	Name() string

	// StartChat opens a conversation seeded with prior context and a system
	// instruction. It performs no I/O; errors surface on the first send.
	StartChat(history []Content, system string) Chat
}

// Chat is an open conversation. Implementations are not safe for concurrent
// sends; the caller serializes submits (see the convo package).
type Chat interface {
	// SendStream sends the next turn and returns the response fragment
	// sequence. The channel is closed after the final fragment (Done or Err
	// set). The turn and its response are appended to the chat's context so
	// the next send continues the conversation.
	SendStream(ctx context.Context, turn Turn) <-chan Fragment
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from a model service client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeUnavailable
	ErrTypeTimeout
	ErrTypeAuth
	ErrTypeModelNotFound
	ErrTypeInvalidResponse
	ErrTypeCanceled
)

// Sentinel errors for easy checking.
var (
	ErrUnavailable   = &ClientError{Type: ErrTypeUnavailable, Message: "model service is not reachable"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrAuth          = &ClientError{Type: ErrTypeAuth, Message: "model service rejected credentials"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// IsUnavailable checks if an error indicates the service cannot be reached.
func IsUnavailable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeUnavailable
	}
	return errors.Is(err, ErrUnavailable)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return errors.Is(err, ErrTimeout)
}

// IsAuth checks if an error indicates rejected credentials.
func IsAuth(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeAuth
	}
	return errors.Is(err, ErrAuth)
}
