// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dictation runs an external speech-to-text command and returns its
// output as text for the input box. The capability is optional: when no
// command is configured (or the binary is missing) the feature is simply not
// offered.
package dictation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/palaver/internal/config"
	"github.com/jeranaias/palaver/internal/util"
)

// ErrUnavailable is returned when no transcriber command is configured or
// the configured binary cannot be found.
var ErrUnavailable = errors.New("dictation: no transcriber available")

// DefaultTimeout bounds a single transcription run when the config does not
// specify one.
const DefaultTimeout = 60 * time.Second

// =============================================================================
// TRANSCRIBER
// =============================================================================

// Transcriber invokes the configured external command. The command is
// expected to capture audio itself and print the transcript to stdout.
type Transcriber struct {
	command string
	args    []string
	timeout time.Duration
	log     *zap.Logger

	// resolved is the absolute path found on PATH, empty if unavailable.
	resolved string
}

// New builds a Transcriber from config. Always returns a usable value;
// check Available before offering the feature.
func New(cfg config.DictationConfig, log *zap.Logger) *Transcriber {
	if log == nil {
		log = zap.NewNop()
	}

	timeout := DefaultTimeout
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}

	t := &Transcriber{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: timeout,
		log:     log,
	}

	if cfg.Command != "" {
		path, err := exec.LookPath(cfg.Command)
		if err != nil {
			log.Warn("dictation command not found",
				zap.String("command", cfg.Command),
				zap.Error(err))
		} else {
			t.resolved = path
		}
	}

	return t
}

// Available reports whether dictation can be offered to the user.
func (t *Transcriber) Available() bool {
	return t.resolved != ""
}

// Transcribe runs the transcriber to completion and returns the normalized
// transcript. Blocks for up to the configured timeout.
func (t *Transcriber) Transcribe(ctx context.Context) (string, error) {
	if !t.Available() {
		return "", ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.resolved, t.args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("dictation: transcriber timed out after %s", t.timeout)
		}
		t.log.Warn("transcriber failed",
			zap.String("command", t.command),
			zap.String("stderr", util.TruncateRunes(stderr.String(), 200)),
			zap.Error(err))
		return "", fmt.Errorf("dictation: transcriber failed: %w", err)
	}

	transcript := util.NormalizeInput(stdout.String())
	t.log.Debug("transcription complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", util.RuneLen(transcript)))

	return transcript, nil
}
