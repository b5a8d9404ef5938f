// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/palaver/internal/config"
	"github.com/jeranaias/palaver/internal/convo"
	"github.com/jeranaias/palaver/internal/llm"
	"github.com/jeranaias/palaver/internal/model"
	"github.com/jeranaias/palaver/internal/session"
)

// =============================================================================
// FAKES
// =============================================================================

// scriptedProvider replays a fixed fragment sequence for every send.
type scriptedProvider struct {
	script []llm.Fragment
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) StartChat(history []llm.Content, system string) llm.Chat {
	return &scriptedChat{script: p.script}
}

type scriptedChat struct {
	script []llm.Fragment
}

func (c *scriptedChat) SendStream(_ context.Context, _ llm.Turn) <-chan llm.Fragment {
	out := make(chan llm.Fragment)
	go func() {
		defer close(out)
		for _, frag := range c.script {
			out <- frag
		}
	}()
	return out
}

type nullStore struct{}

func (nullStore) SaveConversation(*model.Conversation) error { return nil }
func (nullStore) LoadConversation(string) (*model.Conversation, error) {
	return nil, nil
}
func (nullStore) AddUsage(string, int, int) error { return nil }

func newTestModel(t *testing.T, script []llm.Fragment) Model {
	t.Helper()

	controller := convo.NewController(
		&scriptedProvider{script: script}, nullStore{}, zap.NewNop(), convo.Options{})
	if err := controller.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}

	sess := session.NewManager("acct-1", "alice", session.Config{
		Timeout: 30 * time.Minute,
	})

	m := New(Options{
		Controller:   controller,
		Session:      sess,
		Config:       config.Default(),
		Log:          zap.NewNop(),
		Username:     "alice",
		ProviderName: "scripted",
	})

	// Size the view so the viewport exists.
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model)
}

// runStream drives a submitted turn through the full stream lifecycle.
func runStream(t *testing.T, m Model, start StreamStartMsg) Model {
	t.Helper()

	updated, _ := m.Update(start)
	m = updated.(Model)

	for frag := range start.Fragments {
		updated, _ = m.Update(StreamFragmentMsg{Fragment: frag})
		m = updated.(Model)
	}
	updated, _ = m.Update(StreamDoneMsg{})
	return updated.(Model)
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestSubmitStreamLifecycle(t *testing.T) {
	m := newTestModel(t, []llm.Fragment{
		{Text: "General "},
		{Text: "Kenobi"},
		{Done: true, PromptTokens: 12, CompletionTokens: 4},
	})

	m.input.SetValue("Hello there")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("Submit should produce a command")
	}

	// The user turn shows immediately, before the stream opens.
	if !transcriptContains(m, "Hello there") {
		t.Error("Optimistic user message missing from transcript")
	}

	msg := cmd()
	start, ok := msg.(StreamStartMsg)
	if !ok {
		t.Fatalf("Expected StreamStartMsg, got %T", msg)
	}

	m = runStream(t, m, start)

	if m.streaming {
		t.Error("Streaming flag should clear after the stream closes")
	}
	if !transcriptContains(m, "General Kenobi") {
		t.Error("Settled model message missing from transcript")
	}
	if m.statusBar.PromptTokens != 12 || m.statusBar.CompletionTokens != 4 {
		t.Errorf("Token usage = %d+%d", m.statusBar.PromptTokens, m.statusBar.CompletionTokens)
	}
}

func TestEmptyStreamYieldsFallback(t *testing.T) {
	m := newTestModel(t, []llm.Fragment{{Done: true}})

	m.input.SetValue("anyone home?")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	start := cmd().(StreamStartMsg)
	m = runStream(t, m, start)

	// The accumulator substitutes placeholder text for a silent stream.
	conv := m.opts.Controller.Conversation()
	last := conv.Messages[len(conv.Messages)-1]
	if last.Role != model.RoleModel || !last.HasText() {
		t.Errorf("Expected a non-empty model message, got %+v", last)
	}
}

func TestSubmitWhileStreamingIsRefused(t *testing.T) {
	m := newTestModel(t, nil)
	m.streaming = true

	m.input.SetValue("too eager")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("Expected an error command")
	}
	if _, ok := cmd().(ErrorMsg); !ok {
		t.Error("Submit while streaming should surface an ErrorMsg")
	}
}

func TestSubmitEmptyInputIsNoop(t *testing.T) {
	m := newTestModel(t, nil)

	m.input.SetValue("   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("Blank input should not submit")
	}
}

func TestStreamTickFlushesPartial(t *testing.T) {
	m := newTestModel(t, nil)
	m.streaming = true
	m.partial = model.NewModelMessage("")
	m.streamBuf = NewStreamingBufferWithConfig(1, 30)
	m.streamBuf.Write("partial text")

	updated, _ := m.Update(StreamTickMsg{Time: time.Now()})
	m = updated.(Model)

	if m.partial.DisplayText() != "partial text" {
		t.Errorf("Partial = %q", m.partial.DisplayText())
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSessionTickReArmsOnce(t *testing.T) {
	m := newTestModel(t, nil)

	_, cmd := m.Update(session.TickMsg{Time: time.Now()})
	if cmd == nil {
		t.Fatal("Expected a command continuing the tick loop")
	}
	// One tick in, exactly one tick out. Anything more compounds every
	// second until the event loop drowns.
	if got := countFutureTicks(cmd); got != 1 {
		t.Errorf("Scheduled session ticks = %d, want exactly 1", got)
	}
}

// countFutureTicks runs a command tree and counts the session ticks it
// delivers.
func countFutureTicks(cmd tea.Cmd) int {
	if cmd == nil {
		return 0
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		n := 0
		for _, c := range msg {
			n += countFutureTicks(c)
		}
		return n
	case session.TickMsg:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// SLASH COMMAND TESTS
// =============================================================================

func TestSlashNewResetsConversation(t *testing.T) {
	m := newTestModel(t, []llm.Fragment{{Text: "hi"}, {Done: true}})

	m.input.SetValue("question one")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	m = runStream(t, m, cmd().(StreamStartMsg))

	before := m.opts.Controller.Conversation().MessageCount()
	if before < 3 {
		t.Fatalf("Expected at least 3 messages before reset, got %d", before)
	}

	m.input.SetValue("/new")
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	after := m.opts.Controller.Conversation().MessageCount()
	if after >= before {
		t.Errorf("Reset did not shrink the conversation: %d -> %d", before, after)
	}
}

func TestSlashUnknownShowsError(t *testing.T) {
	m := newTestModel(t, nil)

	m.input.SetValue("/frobnicate")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("Expected an error command")
	}
	errMsg, ok := cmd().(ErrorMsg)
	if !ok {
		t.Fatalf("Expected ErrorMsg, got %T", cmd())
	}
	if !strings.Contains(errMsg.Message, "frobnicate") {
		t.Errorf("Error should name the command: %q", errMsg.Message)
	}
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{convo.ErrBusy, "still streaming"},
		{convo.ErrRateLimited, "too fast"},
		{convo.ErrEmptyTurn, "Nothing to send"},
		{convo.ErrSignedOut, "Not signed in"},
	}
	for _, tc := range tests {
		got := friendlyError(tc.err)
		if !strings.Contains(got, tc.want) {
			t.Errorf("friendlyError(%v) = %q, want substring %q", tc.err, got, tc.want)
		}
	}
}

func TestAttachMIME(t *testing.T) {
	if mime, err := attachMIME("photo.PNG"); err != nil || mime != "image/png" {
		t.Errorf("attachMIME(photo.PNG) = %q, %v", mime, err)
	}
	if _, err := attachMIME("doc.pdf"); err == nil {
		t.Error("attachMIME should reject non-image extensions")
	}
}

func TestKeyMapHelp(t *testing.T) {
	keys := DefaultKeyMap()
	if len(keys.ShortHelp()) == 0 {
		t.Error("ShortHelp is empty")
	}
	if len(keys.FullHelp()) == 0 {
		t.Error("FullHelp is empty")
	}
}

// transcriptContains reports whether any snapshot message carries the text.
func transcriptContains(m Model, text string) bool {
	for _, msg := range m.transcript {
		if strings.Contains(msg.DisplayText(), text) {
			return true
		}
	}
	return false
}
