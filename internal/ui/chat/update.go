// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/palaver/internal/convo"
	"github.com/jeranaias/palaver/internal/dictation"
	"github.com/jeranaias/palaver/internal/model"
	"github.com/jeranaias/palaver/internal/session"
	"github.com/jeranaias/palaver/internal/ui/components"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update routes Bubble Tea messages to the appropriate handler.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamStartMsg:
		return m.handleStreamStart(msg)
	case StreamFragmentMsg:
		return m.handleStreamFragment(msg)
	case StreamTickMsg:
		return m.handleStreamTick()
	case StreamDoneMsg:
		return m.handleStreamDone()
	case SubmitErrorMsg:
		return m.handleSubmitError(msg)

	case DictationDoneMsg:
		return m.handleDictationDone(msg)
	case AttachDoneMsg:
		return m.handleAttachDone(msg)

	case session.TickMsg:
		return m.handleSessionTick()
	case session.SignOutWarningMsg:
		m.errTitle = "Session expiring"
		m.errMessage = "Signing out in " + session.FormatDuration(msg.Remaining) + ". Press any key to stay signed in."
		return m, nil
	case session.SignedOutMsg:
		m.opts.Controller.SignOut()
		m.signedOut = true
		m.quitting = true
		return m, tea.Quit
	case session.AutoSaveMsg:
		m.opts.Controller.Save()
		m.opts.Session.MarkClean()
		return m, nil

	case ErrorMsg:
		m.errTitle = msg.Title
		m.errMessage = msg.Message
		return m, nil
	case ErrorDismissMsg:
		m.errTitle = ""
		m.errMessage = ""
		return m, nil

	case spinner.TickMsg:
		if !m.streaming && !m.dictating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m.updateChildren(msg)
}

// updateChildren forwards a message to the textarea and viewport.
func (m Model) updateChildren(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	headerHeight := 2
	inputHeight := m.input.Height() + 2
	statusHeight := 1
	viewportHeight := msg.Height - headerHeight - inputHeight - statusHeight
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	if !m.ready {
		m.viewport = newViewport(msg.Width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	m.input.SetWidth(msg.Width - 4)
	m.statusBar.SetWidth(msg.Width)

	m.renderTranscript()
	return m, nil
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any keystroke counts as activity for the idle timeout.
	m.opts.Session.RecordActivity()

	// A pending warning clears on interaction.
	if m.errTitle == "Session expiring" {
		m.errTitle = ""
		m.errMessage = ""
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.opts.Controller.Save()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Dismiss):
		m.errTitle = ""
		m.errMessage = ""
		return m, nil

	case key.Matches(msg, m.keys.New):
		return m.handleNewConversation()

	case key.Matches(msg, m.keys.Save):
		m.opts.Controller.Save()
		m.opts.Session.MarkClean()
		m.statusBar.Dirty = false
		return m, nil

	case key.Matches(msg, m.keys.Dictate):
		return m.handleDictate()

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Submit):
		return m.handleSubmit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleNewConversation() (tea.Model, tea.Cmd) {
	if err := m.opts.Controller.ResetToGreeting(); err != nil {
		return m, func() tea.Msg { return NewErrorMsg("Cannot reset", friendlyError(err)) }
	}
	m.pendingImageRef = ""
	m.pendingImageName = ""
	m.snapshotTranscript()
	m.renderTranscript()
	return m, nil
}

func (m Model) handleDictate() (tea.Model, tea.Cmd) {
	if m.opts.Dictation == nil || !m.opts.Dictation.Available() {
		// No transcriber configured: the binding stays inert.
		return m, nil
	}
	if m.busy() {
		return m, nil
	}
	m.dictating = true
	return m, tea.Batch(dictateCmd(m.opts.Dictation), m.spin.Tick)
}

// =============================================================================
// SUBMIT
// =============================================================================

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())

	if strings.HasPrefix(text, "/") {
		return m.handleSlashCommand(text)
	}

	if text == "" && m.pendingImageRef == "" {
		return m, nil
	}
	if m.busy() {
		return m, func() tea.Msg {
			return NewErrorMsg("Hold on", "A response is still streaming.")
		}
	}

	imageRef := m.pendingImageRef
	m.lastSubmitText = text
	m.lastSubmitImageRef = imageRef
	m.pendingImageRef = ""
	m.pendingImageName = ""
	m.input.Reset()
	m.opts.Session.MarkDirty()
	m.statusBar.Dirty = true

	// Show the user turn immediately. The controller appends the same
	// message before Submit returns; the display copy keeps the view off
	// the live conversation while the stream mutates it.
	m.transcript = append(m.transcript, model.NewUserMessage(text, imageRef))
	m.renderTranscript()
	m.statusBar.SetStatus(components.StatusThinking)

	return m, submitCmd(m.opts.Controller, text, imageRef)
}

// handleSlashCommand processes the small set of in-chat commands.
func (m Model) handleSlashCommand(content string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(content)
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	m.input.Reset()

	switch name {
	case "quit", "q", "exit":
		m.opts.Controller.Save()
		m.quitting = true
		return m, tea.Quit

	case "new", "n":
		return m.handleNewConversation()

	case "attach", "a":
		if len(args) != 1 {
			return m, func() tea.Msg { return NewErrorMsg("Usage", "/attach <image-file>") }
		}
		return m, attachCmd(m.opts.Controller, args[0])

	case "save", "s":
		m.opts.Controller.Save()
		m.opts.Session.MarkClean()
		m.statusBar.Dirty = false
		return m, nil

	case "help", "h", "?":
		return m, func() tea.Msg {
			return NewErrorMsg("Commands", "/new  /attach <file>  /save  /quit\nEnter sends, Ctrl+N resets, Ctrl+G dictates, Ctrl+C quits.")
		}

	default:
		return m, func() tea.Msg {
			return NewErrorMsg("Unknown command", "/"+name+" is not a command. Try /help.")
		}
	}
}

// =============================================================================
// STREAMING
// =============================================================================

func (m Model) handleStreamStart(msg StreamStartMsg) (tea.Model, tea.Cmd) {
	m.streaming = true
	m.fragments = msg.Fragments
	m.streamBuf.Reset()
	m.partial = model.NewModelMessage("")
	m.lastSubmitText = ""
	m.lastSubmitImageRef = ""

	return m, tea.Batch(
		waitFragmentCmd(m.fragments),
		streamTickCmd(),
		m.spin.Tick,
	)
}

func (m Model) handleStreamFragment(msg StreamFragmentMsg) (tea.Model, tea.Cmd) {
	frag := msg.Fragment
	if frag.Text != "" {
		m.streamBuf.Write(frag.Text)
		m.statusBar.SetStatus(components.StatusStreaming)
	}
	if frag.Done {
		m.statusBar.SetTokenUsage(int64(frag.PromptTokens), int64(frag.CompletionTokens))
	}
	return m, waitFragmentCmd(m.fragments)
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if !m.streaming {
		return m, nil
	}
	if content, ok := m.streamBuf.Flush(); ok {
		m.partial.AppendFragment(content)
		m.renderTranscript()
	}
	return m, streamTickCmd()
}

func (m Model) handleStreamDone() (tea.Model, tea.Cmd) {
	m.streaming = false
	m.fragments = nil
	m.partial = nil
	m.streamBuf.Reset()

	// The channel closed after the controller settled and saved the
	// conversation, so re-reading it is race free.
	m.snapshotTranscript()
	m.renderTranscript()

	m.statusBar.SetStatus(components.StatusReady)
	m.statusBar.Dirty = false
	m.opts.Session.MarkClean()
	return m, nil
}

func (m Model) handleSubmitError(msg SubmitErrorMsg) (tea.Model, tea.Cmd) {
	m.opts.Log.Warn("submit rejected", zap.Error(msg.Err))
	m.statusBar.SetStatus(components.StatusError)
	m.errTitle = "Could not send"
	m.errMessage = friendlyError(msg.Err)

	// Roll back the optimistic user message and put the turn back in the
	// composer so nothing typed is lost.
	m.snapshotTranscript()
	m.renderTranscript()
	if m.lastSubmitText != "" {
		m.input.SetValue(m.lastSubmitText)
		m.input.CursorEnd()
	}
	m.pendingImageRef = m.lastSubmitImageRef
	m.lastSubmitText = ""
	m.lastSubmitImageRef = ""
	return m, nil
}

// friendlyError maps controller sentinels to short human messages.
func friendlyError(err error) string {
	switch {
	case errors.Is(err, convo.ErrBusy):
		return "A response is still streaming."
	case errors.Is(err, convo.ErrRateLimited):
		return "Sending too fast, give it a second."
	case errors.Is(err, convo.ErrEmptyTurn):
		return "Nothing to send."
	case errors.Is(err, convo.ErrSignedOut):
		return "Not signed in."
	default:
		return err.Error()
	}
}

// =============================================================================
// DICTATION / ATTACHMENTS
// =============================================================================

func (m Model) handleDictationDone(msg DictationDoneMsg) (tea.Model, tea.Cmd) {
	m.dictating = false
	m.statusBar.SetStatus(components.StatusReady)

	if msg.Err != nil {
		if errors.Is(msg.Err, dictation.ErrUnavailable) {
			return m, nil
		}
		m.opts.Log.Warn("dictation failed", zap.Error(msg.Err))
		m.errTitle = "Dictation failed"
		m.errMessage = msg.Err.Error()
		return m, nil
	}
	if msg.Text == "" {
		return m, nil
	}

	// Append to whatever is already typed.
	existing := m.input.Value()
	if existing != "" && !strings.HasSuffix(existing, " ") {
		existing += " "
	}
	m.input.SetValue(existing + msg.Text)
	m.input.CursorEnd()
	return m, nil
}

func (m Model) handleAttachDone(msg AttachDoneMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.errTitle = "Attach failed"
		m.errMessage = msg.Err.Error()
		return m, nil
	}
	m.pendingImageRef = msg.Ref
	m.pendingImageName = msg.Name
	return m, nil
}

// =============================================================================
// SESSION
// =============================================================================

func (m Model) handleSessionTick() (tea.Model, tea.Cmd) {
	m.statusBar.SessionRemaining = m.opts.Session.RemainingTime()
	m.statusBar.Dirty = m.opts.Session.IsDirty()

	// HandleTick re-arms the next tick itself; scheduling another one here
	// would double the pending ticks every second.
	return m, m.opts.Session.HandleTick()
}
