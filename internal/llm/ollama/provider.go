// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/base64"

	"github.com/jeranaias/palaver/internal/llm"
)

// =============================================================================
// PROVIDER ADAPTER
// =============================================================================

// Provider adapts the Ollama client to the provider-neutral chat interface.
type Provider struct {
	client *Client
	model  string
}

// NewProvider creates a provider backed by the given client. An empty model
// falls back to the client's default.
func NewProvider(client *Client, model string) *Provider {
	if model == "" {
		model = client.GetDefaultModel()
	}
	return &Provider{client: client, model: model}
}

// Name identifies the provider.
func (p *Provider) Name() string { return "ollama" }

// StartChat opens a conversation seeded with prior context and a system
// instruction. No I/O happens until the first send.
func (p *Provider) StartChat(history []llm.Content, system string) llm.Chat {
	messages := make([]Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	for _, content := range history {
		messages = append(messages, Message{
			Role:    toWireRole(content.Role),
			Content: content.Text(),
		})
	}
	return &chatSession{provider: p, messages: messages}
}

// toWireRole maps the neutral role names onto Ollama's.
func toWireRole(role string) string {
	if role == "model" {
		return "assistant"
	}
	return role
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession is one open conversation. Not safe for concurrent sends.
type chatSession struct {
	provider *Provider
	messages []Message
}

// SendStream sends the next turn and streams the response back as fragments.
func (s *chatSession) SendStream(ctx context.Context, turn llm.Turn) <-chan llm.Fragment {
	msg := Message{Role: "user", Content: turn.Text}
	if turn.Image != nil {
		msg.Images = []string{base64.StdEncoding.EncodeToString(turn.Image.Data)}
	}
	s.messages = append(s.messages, msg)

	out := make(chan llm.Fragment)
	go func() {
		defer close(out)

		var reply string
		for chunk := range s.provider.client.ChatStreamChan(ctx, s.provider.model, s.messages) {
			if chunk.Error != nil {
				out <- llm.Fragment{Done: true, Err: chunk.Error}
				return
			}
			reply += chunk.Content
			frag := llm.Fragment{Text: chunk.Content, Done: chunk.Done}
			if chunk.Done {
				frag.PromptTokens = chunk.PromptTokens
				frag.CompletionTokens = chunk.CompletionTokens
			}
			out <- frag
			if chunk.Done {
				break
			}
		}

		// Carry the exchange forward so the next send continues the
		// conversation.
		s.messages = append(s.messages, Message{Role: "assistant", Content: reply})
	}()
	return out
}
