// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convo

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/palaver/internal/llm"
	"github.com/jeranaias/palaver/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrBusy is returned by Submit while a previous response is still streaming.
var ErrBusy = &llm.ClientError{Type: ErrTypeBusy, Message: "a response is still streaming"}

// ErrRateLimited is returned by Submit when turns are sent faster than the
// configured rate.
var ErrRateLimited = &llm.ClientError{Type: ErrTypeRateLimited, Message: "sending too fast, slow down"}

// ErrEmptyTurn is returned by Submit for a turn with neither text nor image.
var ErrEmptyTurn = &llm.ClientError{Type: ErrTypeEmptyTurn, Message: "nothing to send"}

// ErrSignedOut is returned when no account conversation is loaded.
var ErrSignedOut = &llm.ClientError{Type: ErrTypeSignedOut, Message: "no active account"}

// Controller-level error types, continuing the llm numbering.
const (
	ErrTypeBusy llm.ErrorType = iota + 100
	ErrTypeRateLimited
	ErrTypeEmptyTurn
	ErrTypeSignedOut
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists conversations and usage counters. Implementations blank
// session-local image references on save and return a fresh conversation when
// the stored payload is missing or unreadable.
type Store interface {
	SaveConversation(conv *model.Conversation) error
	LoadConversation(accountID string) (*model.Conversation, error)
	AddUsage(accountID string, promptTokens, completionTokens int) error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns one account's live conversation. It serializes submits,
// reconstructs provider context from the message list, runs the stream
// accumulator, and saves after every mutation. Persistence is best effort: a
// failed save is logged and the session continues.
type Controller struct {
	mu sync.Mutex

	provider llm.Provider
	store    Store
	log      *zap.Logger
	limiter  *rate.Limiter

	conv     *model.Conversation
	inFlight bool

	// Session-local image attachments, keyed by their attach:// reference.
	// Never persisted.
	attachments map[string]llm.ImageData
}

// Options configures a Controller.
type Options struct {
	// SubmitsPerSecond caps the sustained turn rate. Zero disables limiting.
	SubmitsPerSecond float64
	// SubmitBurst is the burst allowance when limiting is enabled.
	SubmitBurst int
}

// NewController creates a controller. Call LoadForAccount before submitting.
func NewController(provider llm.Provider, store Store, log *zap.Logger, opts Options) *Controller {
	var limiter *rate.Limiter
	if opts.SubmitsPerSecond > 0 {
		burst := opts.SubmitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.SubmitsPerSecond), burst)
	}
	return &Controller{
		provider:    provider,
		store:       store,
		log:         log,
		limiter:     limiter,
		attachments: make(map[string]llm.ImageData),
	}
}

// LoadForAccount loads the account's persisted conversation, falling back to
// a fresh greeted conversation when nothing usable is stored.
func (c *Controller) LoadForAccount(accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, err := c.store.LoadConversation(accountID)
	if err != nil {
		c.log.Warn("load failed, starting fresh",
			zap.String("account", accountID), zap.Error(err))
		conv = nil
	}
	if conv == nil || conv.IsEmpty() {
		conv = model.NewGreetedConversation(accountID)
	}
	c.conv = conv
	c.attachments = make(map[string]llm.ImageData)
	return nil
}

// Conversation returns the live conversation. The TUI reads it directly; all
// mutation goes through the controller.
func (c *Controller) Conversation() *model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// Streaming reports whether a response is currently in flight.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// Attach registers in-memory image bytes for the next turn and returns their
// session-local reference. The bytes live only as long as the session.
func (c *Controller) Attach(mime string, data []byte) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref := model.TransientImageScheme + uuid.NewString()
	c.attachments[ref] = llm.ImageData{MIME: mime, Data: data}
	return ref
}

// resolveImage returns the image bytes for a reference, nil when the
// reference is unknown or not session-local.
func (c *Controller) resolveImage(ref string) *llm.ImageData {
	if !strings.HasPrefix(ref, model.TransientImageScheme) {
		return nil
	}
	img, ok := c.attachments[ref]
	if !ok {
		return nil
	}
	return &img
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit sends one user turn and streams the response into the conversation.
// The returned channel delivers each fragment after it has been folded in, so
// a consumer can re-render on every receive; it is closed after the terminal
// fragment. Submit fails fast with ErrBusy while a response is in flight and
// ErrRateLimited when turns arrive too quickly.
func (c *Controller) Submit(ctx context.Context, text, imageRef string) (<-chan llm.Fragment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conv == nil {
		return nil, ErrSignedOut
	}
	if c.inFlight {
		return nil, ErrBusy
	}
	if text == "" && imageRef == "" {
		return nil, ErrEmptyTurn
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, ErrRateLimited
	}

	// Context is reconstructed from the messages before this turn; the turn
	// itself travels separately so its image bytes can ride along.
	history := c.conv.BuildContext()
	turn := llm.Turn{Text: text, Image: c.resolveImage(imageRef)}

	c.conv.AddUserMessage(text, imageRef)
	c.saveLocked()

	chat := c.provider.StartChat(history, c.conv.SystemPrompt)
	c.inFlight = true

	// The goroutine works on the conversation captured here, not on c.conv:
	// a sign-out mid-stream detaches c.conv, and the stream must settle on
	// the conversation it was submitted against.
	out := make(chan llm.Fragment)
	go c.consume(ctx, chat, turn, c.conv, out)
	return out, nil
}

// consume runs on its own goroutine: it drains the provider stream through
// the accumulator, forwards fragments to the consumer, and settles the
// conversation when the stream ends.
func (c *Controller) consume(ctx context.Context, chat llm.Chat, turn llm.Turn, conv *model.Conversation, out chan<- llm.Fragment) {
	defer close(out)

	acc := NewAccumulator(conv)
	for frag := range chat.SendStream(ctx, turn) {
		c.mu.Lock()
		acc.Apply(frag)
		c.mu.Unlock()
		out <- frag
	}

	c.mu.Lock()
	err := acc.Finish()
	c.persistLocked(conv)
	c.recordUsageLocked(conv.AccountID, acc)
	c.inFlight = false
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("stream failed", zap.String("provider", c.provider.Name()), zap.Error(err))
	}
}

// recordUsageLocked accumulates reported token counts for the account. Best
// effort, like every other write to the store. Callers hold c.mu.
func (c *Controller) recordUsageLocked(accountID string, acc *Accumulator) {
	prompt, completion := acc.Usage()
	if prompt == 0 && completion == 0 {
		return
	}
	if err := c.store.AddUsage(accountID, prompt, completion); err != nil {
		c.log.Warn("usage record failed", zap.String("account", accountID), zap.Error(err))
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// ResetToGreeting starts a new conversation, keeping the account binding.
// Refused while a response is streaming.
func (c *Controller) ResetToGreeting() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv == nil {
		return ErrSignedOut
	}
	if c.inFlight {
		return ErrBusy
	}
	c.conv.ResetToGreeting()
	c.attachments = make(map[string]llm.ImageData)
	c.saveLocked()
	return nil
}

// SetSystemPrompt updates the instruction handed to the model service on the
// next submit.
func (c *Controller) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv == nil {
		return
	}
	c.conv.SystemPrompt = prompt
	c.saveLocked()
}

// Save persists the conversation immediately. Best effort.
func (c *Controller) Save() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveLocked()
}

// SignOut saves and detaches the conversation. Submits fail until the next
// LoadForAccount. An in-flight stream keeps settling against the detached
// conversation, so an idle timeout never interrupts a response mid-write.
func (c *Controller) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveLocked()
	c.conv = nil
	c.attachments = make(map[string]llm.ImageData)
}

// saveLocked persists the current conversation, logging failures instead of
// propagating them. Callers hold c.mu.
func (c *Controller) saveLocked() {
	c.persistLocked(c.conv)
}

// persistLocked persists a specific conversation, which may already be
// detached from the controller. Callers hold c.mu.
func (c *Controller) persistLocked(conv *model.Conversation) {
	if conv == nil {
		return
	}
	if err := c.store.SaveConversation(conv); err != nil {
		c.log.Warn("save failed", zap.String("account", conv.AccountID), zap.Error(err))
	}
}
