// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anthropic adapts the Anthropic Messages API to the provider-neutral
// chat interface.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jeranaias/palaver/internal/llm"
)

// DefaultModel is used when the configuration names none.
const DefaultModel = "claude-sonnet-4-5"

// DefaultMaxTokens bounds response length when the configuration names none.
const DefaultMaxTokens = 4096

// =============================================================================
// PROVIDER
// =============================================================================

// Config holds provider settings.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Provider creates chats against the Anthropic Messages API.
type Provider struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewProvider creates a provider from the given configuration.
func NewProvider(cfg Config) *Provider {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Provider{
		client:    sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name identifies the provider.
func (p *Provider) Name() string { return "anthropic" }

// StartChat opens a conversation seeded with prior context and a system
// instruction. No I/O happens until the first send.
func (p *Provider) StartChat(history []llm.Content, system string) llm.Chat {
	messages := make([]sdk.MessageParam, 0, len(history))
	for _, content := range history {
		block := sdk.NewTextBlock(content.Text())
		if content.Role == "model" {
			messages = append(messages, sdk.NewAssistantMessage(block))
		} else {
			messages = append(messages, sdk.NewUserMessage(block))
		}
	}
	return &chatSession{provider: p, system: system, messages: messages}
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession is one open conversation. Not safe for concurrent sends.
type chatSession struct {
	provider *Provider
	system   string
	messages []sdk.MessageParam
}

// SendStream sends the next turn and streams the response back as fragments.
func (s *chatSession) SendStream(ctx context.Context, turn llm.Turn) <-chan llm.Fragment {
	blocks := make([]sdk.ContentBlockParamUnion, 0, 2)
	if turn.Image != nil {
		blocks = append(blocks, sdk.NewImageBlockBase64(
			turn.Image.MIME, base64.StdEncoding.EncodeToString(turn.Image.Data)))
	}
	if turn.Text != "" {
		blocks = append(blocks, sdk.NewTextBlock(turn.Text))
	}
	s.messages = append(s.messages, sdk.NewUserMessage(blocks...))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(s.provider.model),
		MaxTokens: s.provider.maxTokens,
		Messages:  s.messages,
	}
	if s.system != "" {
		params.System = []sdk.TextBlockParam{{Text: s.system}}
	}

	out := make(chan llm.Fragment)
	go func() {
		defer close(out)

		stream := s.provider.client.Messages.NewStreaming(ctx, params)
		var acc sdk.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				out <- llm.Fragment{Done: true, Err: classify(err)}
				return
			}

			switch evt := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				switch delta := evt.Delta.AsAny().(type) {
				case sdk.TextDelta:
					if delta.Text != "" {
						out <- llm.Fragment{Text: delta.Text}
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- llm.Fragment{Done: true, Err: classify(err)}
			return
		}

		var reply string
		for _, block := range acc.Content {
			if text, ok := block.AsAny().(sdk.TextBlock); ok {
				reply += text.Text
			}
		}
		s.messages = append(s.messages, sdk.NewAssistantMessage(sdk.NewTextBlock(reply)))

		out <- llm.Fragment{
			Done:             true,
			PromptTokens:     int(acc.Usage.InputTokens),
			CompletionTokens: int(acc.Usage.OutputTokens),
		}
	}()
	return out
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// classify maps SDK errors onto the shared error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &llm.ClientError{Type: llm.ErrTypeCanceled, Message: "request canceled", Cause: err}
	}

	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &llm.ClientError{Type: llm.ErrTypeAuth, Message: "Anthropic rejected credentials", Cause: err}
		case http.StatusNotFound:
			return &llm.ClientError{Type: llm.ErrTypeModelNotFound, Message: "model not found", Cause: err}
		}
		return &llm.ClientError{Type: llm.ErrTypeInvalidResponse, Message: "Anthropic request failed", Cause: err}
	}
	return &llm.ClientError{Type: llm.ErrTypeUnavailable, Message: "Anthropic is not reachable", Cause: err}
}
