// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai adapts the OpenAI Responses API to the provider-neutral chat
// interface.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/jeranaias/palaver/internal/llm"
)

// DefaultModel is used when the configuration names none.
const DefaultModel = "gpt-4o"

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

// Provider creates chats against the OpenAI Responses API.
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
func (p *Provider) Name() string { return "openai" }

// StartChat opens a conversation seeded with prior context and a system
// instruction. No I/O happens until the first send.
func (p *Provider) StartChat(history []llm.Content, system string) llm.Chat {
	s := &chatSession{provider: p, system: system}
	for _, content := range history {
		if content.Role == "model" {
			s.appendModelText(content.Text())
		} else {
			s.items = append(s.items, userTextItem(content.Text()))
		}
	}
	return s
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession is one open conversation. Not safe for concurrent sends.
type chatSession struct {
	provider *Provider
	system   string

	items responses.ResponseInputParam

	// Output message IDs must start with "msg_"; a per-session sequence keeps
	// them unique.
	msgSeq int
}

// SendStream sends the next turn and streams the response back as fragments.
func (s *chatSession) SendStream(ctx context.Context, turn llm.Turn) <-chan llm.Fragment {
	content := make(responses.ResponseInputMessageContentListParam, 0, 2)
	if turn.Image != nil {
		uri := "data:" + turn.Image.MIME + ";base64," + base64.StdEncoding.EncodeToString(turn.Image.Data)
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputImage: &responses.ResponseInputImageParam{
				Detail:   responses.ResponseInputImageDetailAuto,
				ImageURL: sdk.String(uri),
			},
		})
	}
	if turn.Text != "" {
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputText: &responses.ResponseInputTextParam{Text: turn.Text},
		})
	}
	s.items = append(s.items, responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser))

	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(s.provider.model),
		MaxOutputTokens: sdk.Int(s.provider.maxTokens),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: s.items},
	}
	if s.system != "" {
		params.Instructions = sdk.String(s.system)
	}

	out := make(chan llm.Fragment)
	go func() {
		defer close(out)

		stream := s.provider.client.Responses.NewStreaming(ctx, params)
		var text strings.Builder
		var completed responses.Response
		gotCompleted := false

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "response.output_text.delta":
				delta := event.Delta.OfString
				if delta == "" {
					continue
				}
				text.WriteString(delta)
				out <- llm.Fragment{Text: delta}
			case "response.completed":
				completed = event.Response
				gotCompleted = true
			}
		}
		if err := stream.Err(); err != nil {
			out <- llm.Fragment{Done: true, Err: classify(err)}
			return
		}

		s.appendModelText(text.String())

		frag := llm.Fragment{Done: true}
		if gotCompleted {
			frag.PromptTokens = int(completed.Usage.InputTokens)
			frag.CompletionTokens = int(completed.Usage.OutputTokens)
		}
		out <- frag
	}()
	return out
}

// appendModelText adds a completed assistant output message to the input item
// list so later sends carry it as context.
func (s *chatSession) appendModelText(text string) {
	if text == "" {
		return
	}
	s.msgSeq++
	s.items = append(s.items, responses.ResponseInputItemParamOfOutputMessage(
		[]responses.ResponseOutputMessageContentUnionParam{{
			OfOutputText: &responses.ResponseOutputTextParam{
				Text:        text,
				Annotations: []responses.ResponseOutputTextAnnotationUnionParam{},
			},
		}},
		fmt.Sprintf("msg_hist%d", s.msgSeq),
		responses.ResponseOutputMessageStatusCompleted,
	))
}

// userTextItem builds a plain text user input item.
func userTextItem(text string) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemParamOfMessage(
		responses.ResponseInputMessageContentListParam{{
			OfInputText: &responses.ResponseInputTextParam{Text: text},
		}},
		responses.EasyInputMessageRoleUser,
	)
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
			return &llm.ClientError{Type: llm.ErrTypeAuth, Message: "OpenAI rejected credentials", Cause: err}
		case http.StatusNotFound:
			return &llm.ClientError{Type: llm.ErrTypeModelNotFound, Message: "model not found", Cause: err}
		}
		return &llm.ClientError{Type: llm.ErrTypeInvalidResponse, Message: "OpenAI request failed", Cause: err}
	}
	return &llm.ClientError{Type: llm.ErrTypeUnavailable, Message: "OpenAI is not reachable", Cause: err}
}
