// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Conversation is an append-only, oldest-first list of Messages, each from
// either the user or the model. Two pieces of logic here carry the core
// semantics of the application:
//
//   - BuildContext reconstructs the role/text context sent to the model
//     service, dropping image-only turns whose bytes are not retained.
//   - BeginModelMessage / AppendToLast / FinalizeLast realize the streaming
//     accumulation discipline: one new message per exchange whose text grows
//     fragment by fragment while every earlier message stays untouched.
//
// The package has no I/O; persistence lives in internal/store and provider
// translation in internal/llm.
package model
