// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convo

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/jeranaias/palaver/internal/llm"
	"github.com/jeranaias/palaver/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeProvider replays a scripted fragment sequence for every send.
type fakeProvider struct {
	script []llm.Fragment

	// Captured from the most recent StartChat / SendStream.
	gotHistory []llm.Content
	gotSystem  string
	gotTurn    llm.Turn
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) StartChat(history []llm.Content, system string) llm.Chat {
	p.gotHistory = history
	p.gotSystem = system
	return &fakeChat{provider: p}
}

type fakeChat struct {
	provider *fakeProvider
}

func (c *fakeChat) SendStream(_ context.Context, turn llm.Turn) <-chan llm.Fragment {
	c.provider.gotTurn = turn
	out := make(chan llm.Fragment)
	go func() {
		defer close(out)
		for _, frag := range c.provider.script {
			out <- frag
		}
	}()
	return out
}

// memStore keeps the last saved conversation per account.
type memStore struct {
	saved    map[string]*model.Conversation
	saveErr  error
	loadErr  error
	numSaves int

	usagePrompt     int
	usageCompletion int
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*model.Conversation)}
}

func (s *memStore) AddUsage(_ string, promptTokens, completionTokens int) error {
	s.usagePrompt += promptTokens
	s.usageCompletion += completionTokens
	return nil
}

func (s *memStore) SaveConversation(conv *model.Conversation) error {
	s.numSaves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[conv.AccountID] = conv.Clone()
	return nil
}

func (s *memStore) LoadConversation(accountID string) (*model.Conversation, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.saved[accountID], nil
}

func newTestController(p llm.Provider, s Store) *Controller {
	return NewController(p, s, zap.NewNop(), Options{})
}

func drain(ch <-chan llm.Fragment) {
	for range ch {
	}
}

// =============================================================================
// ACCUMULATOR TESTS
// =============================================================================

func TestAccumulatorHappyPath(t *testing.T) {
	conv := model.NewConversation("a")
	conv.AddUserMessage("q", "")
	acc := NewAccumulator(conv)

	partials := []string{}
	for _, text := range []string{"Hel", "lo", " there"} {
		acc.Apply(llm.Fragment{Text: text})
		partials = append(partials, acc.Message().DisplayText())
	}
	acc.Apply(llm.Fragment{Done: true, PromptTokens: 9, CompletionTokens: 3})

	if err := acc.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	wantPartials := []string{"Hel", "Hello", "Hello there"}
	for i := range wantPartials {
		if partials[i] != wantPartials[i] {
			t.Errorf("Partial %d = %q, want %q", i, partials[i], wantPartials[i])
		}
	}

	if conv.MessageCount() != 2 {
		t.Fatalf("Message count = %d, want 2 (one model message per invocation)", conv.MessageCount())
	}
	last := conv.LastMessage()
	if last.Text != "Hello there" {
		t.Errorf("Final text = %q", last.Text)
	}
	if last.IsStreaming {
		t.Error("Expected finalized message")
	}
	if last.PromptTokens != 9 || last.CompletionTokens != 3 {
		t.Errorf("Tokens = (%d, %d)", last.PromptTokens, last.CompletionTokens)
	}
}

func TestAccumulatorEmptyStream(t *testing.T) {
	conv := model.NewConversation("a")
	conv.AddUserMessage("q", "")
	acc := NewAccumulator(conv)

	acc.Apply(llm.Fragment{Done: true})
	if err := acc.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if conv.MessageCount() != 2 {
		t.Fatalf("Message count = %d, want 2", conv.MessageCount())
	}
	if got := conv.LastMessage().Text; got != FallbackText {
		t.Errorf("Empty stream text = %q, want fallback", got)
	}
}

func TestAccumulatorErrorBeforeText(t *testing.T) {
	conv := model.NewConversation("a")
	prior := conv.AddUserMessage("q", "")
	acc := NewAccumulator(conv)

	streamErr := errors.New("boom")
	acc.Apply(llm.Fragment{Done: true, Err: streamErr})

	if err := acc.Finish(); !errors.Is(err, streamErr) {
		t.Fatalf("Finish = %v, want stream error", err)
	}
	if conv.MessageCount() != 2 {
		t.Fatalf("Message count = %d, want 2", conv.MessageCount())
	}
	if got := conv.LastMessage().Text; got != ApologyText {
		t.Errorf("Error text = %q, want apology", got)
	}
	if prior.Text != "q" {
		t.Errorf("Prior message changed: %q", prior.Text)
	}
}

func TestAccumulatorErrorMidStream(t *testing.T) {
	conv := model.NewConversation("a")
	conv.AddUserMessage("q", "")
	acc := NewAccumulator(conv)

	acc.Apply(llm.Fragment{Text: "partial "})
	acc.Apply(llm.Fragment{Done: true, Err: errors.New("connection reset")})

	if err := acc.Finish(); err == nil {
		t.Fatal("Expected stream error from Finish")
	}

	// Still one model message; its text is the apology, not the partial.
	if conv.MessageCount() != 2 {
		t.Fatalf("Message count = %d, want 2", conv.MessageCount())
	}
	last := conv.LastMessage()
	if last.Text != ApologyText {
		t.Errorf("Text after mid-stream error = %q, want apology", last.Text)
	}
	if last.IsStreaming {
		t.Error("Expected finalized message")
	}
}

// =============================================================================
// CONTROLLER TESTS
// =============================================================================

func TestSubmitStreamsAndPersists(t *testing.T) {
	provider := &fakeProvider{script: []llm.Fragment{
		{Text: "Hi"},
		{Text: "!"},
		{Done: true, PromptTokens: 4, CompletionTokens: 2},
	}}
	store := newMemStore()
	ctrl := newTestController(provider, store)

	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatalf("LoadForAccount: %v", err)
	}

	ch, err := ctrl.Submit(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(ch)

	conv := ctrl.Conversation()
	// Greeting + user + model.
	if conv.MessageCount() != 3 {
		t.Fatalf("Message count = %d, want 3", conv.MessageCount())
	}
	if got := conv.LastMessage().Text; got != "Hi!" {
		t.Errorf("Model text = %q", got)
	}

	// Context handed to the provider excludes the turn being sent.
	if len(provider.gotHistory) != 1 || provider.gotHistory[0].Text() != model.GreetingText {
		t.Errorf("Provider history = %+v, want just the greeting", provider.gotHistory)
	}
	if provider.gotTurn.Text != "hello" {
		t.Errorf("Turn text = %q", provider.gotTurn.Text)
	}

	// Saved after the user message and after the stream settled.
	if store.numSaves < 2 {
		t.Errorf("Save count = %d, want >= 2", store.numSaves)
	}
	saved := store.saved["acct-1"]
	if saved == nil || saved.MessageCount() != 3 {
		t.Fatalf("Persisted conversation = %+v", saved)
	}

	// Reported token counts land on the account's usage tally.
	if store.usagePrompt != 4 || store.usageCompletion != 2 {
		t.Errorf("Usage = %d+%d, want 4+2", store.usagePrompt, store.usageCompletion)
	}
}

func TestSubmitBusy(t *testing.T) {
	release := make(chan struct{})
	provider := &blockingProvider{release: release}
	ctrl := newTestController(provider, newMemStore())
	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}

	ch, err := ctrl.Submit(context.Background(), "first", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := ctrl.Submit(context.Background(), "second", ""); err != ErrBusy {
		t.Errorf("Concurrent submit error = %v, want ErrBusy", err)
	}
	if !ctrl.Streaming() {
		t.Error("Expected Streaming true while in flight")
	}

	close(release)
	drain(ch)

	if ctrl.Streaming() {
		t.Error("Expected Streaming false after stream settled")
	}
	if _, err := ctrl.Submit(context.Background(), "third", ""); err != nil {
		t.Errorf("Submit after settle: %v", err)
	}
}

// blockingProvider holds its stream open until released.
type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) StartChat(_ []llm.Content, _ string) llm.Chat {
	return &blockingChat{release: p.release}
}

type blockingChat struct{ release chan struct{} }

func (c *blockingChat) SendStream(_ context.Context, _ llm.Turn) <-chan llm.Fragment {
	out := make(chan llm.Fragment)
	go func() {
		defer close(out)
		<-c.release
		out <- llm.Fragment{Text: "done", Done: true}
	}()
	return out
}

func TestSignOutDuringStream(t *testing.T) {
	release := make(chan struct{})
	provider := &blockingProvider{release: release}
	store := newMemStore()
	ctrl := newTestController(provider, store)
	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}

	ch, err := ctrl.Submit(context.Background(), "one last thing", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Idle timeout fires while the response streams.
	ctrl.SignOut()

	if _, err := ctrl.Submit(context.Background(), "after sign-out", ""); err != ErrSignedOut {
		t.Errorf("Submit after sign-out error = %v, want ErrSignedOut", err)
	}

	// The stream settles against the detached conversation without touching
	// the (now nil) live one.
	close(release)
	drain(ch)

	if ctrl.Streaming() {
		t.Error("Expected Streaming false after stream settled")
	}
	saved := store.saved["acct-1"]
	if saved == nil {
		t.Fatal("Settled conversation was not persisted")
	}
	if got := saved.LastMessage().Text; got != "done" {
		t.Errorf("Persisted model text = %q, want %q", got, "done")
	}
}

func TestSubmitEmptyTurn(t *testing.T) {
	ctrl := newTestController(&fakeProvider{}, newMemStore())
	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Submit(context.Background(), "", ""); err != ErrEmptyTurn {
		t.Errorf("Empty submit error = %v, want ErrEmptyTurn", err)
	}
}

func TestSubmitSignedOut(t *testing.T) {
	ctrl := newTestController(&fakeProvider{}, newMemStore())
	if _, err := ctrl.Submit(context.Background(), "hi", ""); err != ErrSignedOut {
		t.Errorf("Submit without account error = %v, want ErrSignedOut", err)
	}
}

func TestSubmitImageTurn(t *testing.T) {
	provider := &fakeProvider{script: []llm.Fragment{
		{Text: "nice photo"},
		{Done: true},
	}}
	ctrl := newTestController(provider, newMemStore())
	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}

	ref := ctrl.Attach("image/png", []byte{0x89, 0x50})
	ch, err := ctrl.Submit(context.Background(), "", ref)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(ch)

	if provider.gotTurn.Image == nil {
		t.Fatal("Image bytes did not reach the provider")
	}
	if provider.gotTurn.Image.MIME != "image/png" {
		t.Errorf("Image MIME = %q", provider.gotTurn.Image.MIME)
	}

	// The image-only user turn stays visible but drops out of the context
	// handed to the provider on the next submit.
	ch, err = ctrl.Submit(context.Background(), "follow up", "")
	if err != nil {
		t.Fatalf("Second submit: %v", err)
	}
	drain(ch)

	for _, content := range provider.gotHistory {
		if content.Text() == "" {
			t.Error("Image-only turn leaked into provider history")
		}
	}
}

func TestSaveFailureDoesNotBreakSession(t *testing.T) {
	provider := &fakeProvider{script: []llm.Fragment{{Text: "ok"}, {Done: true}}}
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	ctrl := newTestController(provider, store)
	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}

	ch, err := ctrl.Submit(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(ch)

	if got := ctrl.Conversation().LastMessage().Text; got != "ok" {
		t.Errorf("Conversation did not advance past save failure: %q", got)
	}
}

func TestLoadFailureFallsBackToGreeting(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("corrupt payload")
	ctrl := newTestController(&fakeProvider{}, store)

	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatalf("LoadForAccount: %v", err)
	}
	conv := ctrl.Conversation()
	if conv.MessageCount() != 1 || conv.Messages[0].Text != model.GreetingText {
		t.Errorf("Expected fresh greeted conversation, got %d messages", conv.MessageCount())
	}
}

func TestResetToGreeting(t *testing.T) {
	provider := &fakeProvider{script: []llm.Fragment{{Text: "hi"}, {Done: true}}}
	store := newMemStore()
	ctrl := newTestController(provider, store)
	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}

	ch, _ := ctrl.Submit(context.Background(), "hello", "")
	drain(ch)

	if err := ctrl.ResetToGreeting(); err != nil {
		t.Fatalf("ResetToGreeting: %v", err)
	}
	if got := ctrl.Conversation().MessageCount(); got != 1 {
		t.Errorf("Message count after reset = %d, want 1", got)
	}
	if saved := store.saved["acct-1"]; saved == nil || saved.MessageCount() != 1 {
		t.Error("Reset was not persisted")
	}
}

func TestRateLimit(t *testing.T) {
	provider := &fakeProvider{script: []llm.Fragment{{Text: "ok"}, {Done: true}}}
	ctrl := NewController(provider, newMemStore(), zap.NewNop(),
		Options{SubmitsPerSecond: 0.001, SubmitBurst: 1})
	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}

	ch, err := ctrl.Submit(context.Background(), "first", "")
	if err != nil {
		t.Fatalf("First submit: %v", err)
	}
	drain(ch)

	if _, err := ctrl.Submit(context.Background(), "second", ""); err != ErrRateLimited {
		t.Errorf("Rapid submit error = %v, want ErrRateLimited", err)
	}
}

func TestSignOut(t *testing.T) {
	provider := &fakeProvider{script: []llm.Fragment{{Text: "hi"}, {Done: true}}}
	store := newMemStore()
	ctrl := newTestController(provider, store)
	if err := ctrl.LoadForAccount("acct-1"); err != nil {
		t.Fatal(err)
	}
	ch, _ := ctrl.Submit(context.Background(), "hello", "")
	drain(ch)

	ctrl.SignOut()

	if ctrl.Conversation() != nil {
		t.Error("Conversation should detach on sign-out")
	}
	if _, err := ctrl.Submit(context.Background(), "hi", ""); err != ErrSignedOut {
		t.Errorf("Submit after sign-out = %v, want ErrSignedOut", err)
	}
	if saved := store.saved["acct-1"]; saved == nil || saved.MessageCount() != 3 {
		t.Error("Sign-out did not persist the conversation")
	}
}
