// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package convo coordinates one account's live conversation: submitting turns,
// folding the streamed response into the message list, and persisting after
// every mutation.
package convo

import (
	"github.com/jeranaias/palaver/internal/llm"
	"github.com/jeranaias/palaver/internal/model"
)

// FallbackText is shown when the stream ends without producing any text.
const FallbackText = "I didn't get a response that time. Please try again."

// ApologyText is shown when the stream fails partway through or cannot start.
const ApologyText = "Sorry, something went wrong while answering. Please try again."

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// Accumulator folds one response stream into a conversation. Per invocation it
// appends exactly one model message: the first non-empty fragment creates it,
// later fragments grow it, and Finish settles the terminal cases (fallback
// text for an empty stream, apology text on error). Earlier messages are never
// touched.
//
// Not safe for concurrent use; the controller serializes access.
type Accumulator struct {
	conv *model.Conversation
	msg  *model.Message

	sawText bool
	err     error

	promptTokens     int
	completionTokens int
}

// NewAccumulator creates an accumulator targeting the given conversation.
func NewAccumulator(conv *model.Conversation) *Accumulator {
	return &Accumulator{conv: conv}
}

// Apply folds one fragment into the conversation.
func (a *Accumulator) Apply(frag llm.Fragment) {
	if frag.Err != nil {
		a.err = frag.Err
	}
	if frag.Text != "" {
		a.sawText = true
		if a.msg == nil {
			a.msg = a.conv.BeginModelMessage(frag.Text)
		} else {
			a.conv.AppendToLast(frag.Text)
		}
	}
	if frag.PromptTokens > 0 {
		a.promptTokens = frag.PromptTokens
	}
	if frag.CompletionTokens > 0 {
		a.completionTokens = frag.CompletionTokens
	}
}

// Finish completes the invocation after the stream closes and returns the
// stream error, if any. Exactly one model message exists afterwards:
//
//   - error: the message text becomes the apology (appended if no fragment
//     ever arrived).
//   - no text and no error: a fallback message is appended.
//   - otherwise: the accumulated message is finalized with token counts.
func (a *Accumulator) Finish() error {
	switch {
	case a.err != nil:
		if a.msg == nil {
			a.msg = a.conv.BeginModelMessage(ApologyText)
			a.conv.FinalizeLast(0, 0)
		} else {
			a.conv.FinalizeLast(0, 0)
			a.msg.Text = ApologyText
		}
		return a.err

	case !a.sawText:
		a.msg = a.conv.BeginModelMessage(FallbackText)
		a.conv.FinalizeLast(a.promptTokens, a.completionTokens)
		return nil

	default:
		a.conv.FinalizeLast(a.promptTokens, a.completionTokens)
		return nil
	}
}

// Message returns the model message for this invocation, nil before the first
// fragment arrives.
func (a *Accumulator) Message() *model.Message {
	return a.msg
}

// Usage returns the token counts reported by the stream, zeros when the
// provider did not report any.
func (a *Accumulator) Usage() (promptTokens, completionTokens int) {
	return a.promptTokens, a.completionTokens
}
