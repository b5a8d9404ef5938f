// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// The view is a Bubble Tea program: a scrollable transcript viewport, a
// textarea for composing the next turn, and a status bar. The design avoids
// data races by snapshotting the transcript when a stream starts and
// rendering the partial model message from locally accumulated fragments;
// the live conversation is only re-read once the fragment channel closes.
package chat

import (
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/palaver/internal/config"
	"github.com/jeranaias/palaver/internal/convo"
	"github.com/jeranaias/palaver/internal/dictation"
	"github.com/jeranaias/palaver/internal/llm"
	"github.com/jeranaias/palaver/internal/model"
	"github.com/jeranaias/palaver/internal/session"
	"github.com/jeranaias/palaver/internal/ui/components"
	"github.com/jeranaias/palaver/internal/ui/styles"
)

// ErrSessionExpired is returned by Run when the idle timeout signed the
// account out. The caller should clear the local sign-in state.
var ErrSessionExpired = errors.New("session expired")

// =============================================================================
// OPTIONS
// =============================================================================

// Options carries everything the chat view needs to operate.
type Options struct {
	Controller   *convo.Controller
	Session      *session.Manager
	Config       *config.Config
	Dictation    *dictation.Transcriber
	Log          *zap.Logger
	Username     string
	ProviderName string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	opts  Options
	theme *styles.Theme
	keys  KeyMap

	viewport  viewport.Model
	input     textarea.Model
	spin      spinner.Model
	statusBar *components.StatusBar

	// Transcript snapshot, refreshed whenever the conversation is quiescent.
	// While streaming, the settled messages render from this slice and the
	// in-flight model message renders from partial.
	transcript []*model.Message
	partial    *model.Message
	title      string

	streaming bool
	fragments <-chan llm.Fragment
	streamBuf *StreamingBuffer

	// Attachment staged for the next submit.
	pendingImageRef  string
	pendingImageName string

	// Last submitted turn, kept until the stream opens so a rejected
	// submit can be rolled back into the composer.
	lastSubmitText     string
	lastSubmitImageRef string

	dictating bool

	errTitle   string
	errMessage string

	width  int
	height int
	ready  bool

	signedOut bool
	quitting  bool
}

// New creates the chat model.
func New(opts Options) Model {
	theme := styles.NewTheme(opts.Config.UI.Theme)

	input := textarea.New()
	input.Placeholder = "Say something..."
	input.Prompt = "> "
	input.CharLimit = 0
	input.SetHeight(3)
	input.ShowLineNumbers = false
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	bar := components.NewStatusBar(theme)
	bar.Username = opts.Username
	bar.Provider = opts.ProviderName
	bar.ModelName = modelNameFor(opts.Config)

	m := Model{
		opts:      opts,
		theme:     theme,
		keys:      DefaultKeyMap(),
		input:     input,
		spin:      spin,
		statusBar: bar,
		streamBuf: NewStreamingBuffer(),
	}
	m.snapshotTranscript()
	return m
}

// modelNameFor returns the configured model for the active provider.
func modelNameFor(cfg *config.Config) string {
	switch cfg.Provider {
	case "anthropic":
		return cfg.Anthropic.Model
	case "openai":
		return cfg.OpenAI.Model
	default:
		return cfg.Ollama.Model
	}
}

// Init starts the cursor blink and the session clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, session.TickCmd())
}

// snapshotTranscript re-reads the settled conversation. Only call while no
// response is in flight: the clone detaches the view from controller state.
func (m *Model) snapshotTranscript() {
	conv := m.opts.Controller.Conversation()
	if conv == nil {
		m.transcript = nil
		m.title = ""
		return
	}
	clone := conv.Clone()
	m.transcript = clone.Messages
	m.title = clone.GetTitle()
}

// busy reports whether the view should refuse a new submit.
func (m *Model) busy() bool {
	return m.streaming || m.dictating
}

// =============================================================================
// PROGRAM ENTRY
// =============================================================================

// Run starts the chat TUI and blocks until it exits. Returns
// ErrSessionExpired when the idle timeout ended the session.
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(Model); ok && m.signedOut {
		return ErrSessionExpired
	}
	return nil
}
