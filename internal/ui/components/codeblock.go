// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides UI components for the palaver TUI.
package components

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/palaver/internal/ui/styles"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// CodeBlock renders one fenced block from a model message: highlighted
// source, a line-number gutter, and a language badge.
type CodeBlock struct {
	Language string
	Code     string
	MaxWidth int
}

// NewCodeBlock creates a new code block.
func NewCodeBlock(language, code string) CodeBlock {
	return CodeBlock{
		Language: language,
		Code:     code,
		MaxWidth: 80,
	}
}

// SetMaxWidth sets the maximum width for the code block.
func (c *CodeBlock) SetMaxWidth(width int) {
	c.MaxWidth = width
}

// Render renders the code block with styling.
// USABILITY: Syntax highlighting for better code readability
func (c CodeBlock) Render() string {
	code := strings.TrimSpace(c.Code)

	language := c.Language
	if language == "" {
		language = sniffLanguage(code)
	}

	// highlight returns the original text if highlighting fails
	lines := strings.Split(highlight(code, language), "\n")

	// The gutter grows with the line count so a 3-digit block stays aligned.
	gutterWidth := len(fmt.Sprintf("%d", len(lines)))
	if gutterWidth < 2 {
		gutterWidth = 2
	}
	gutter := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Width(gutterWidth).
		Align(lipgloss.Right).
		MarginRight(1)

	var body strings.Builder
	for i, line := range lines {
		if i > 0 {
			body.WriteByte('\n')
		}
		// The line itself already carries chroma's ANSI styling.
		body.WriteString(gutter.Render(fmt.Sprintf("%d", i+1)))
		body.WriteString(line)
	}

	content := body.String()
	if c.Language != "" {
		badge := lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Background(styles.OverlayDim).
			Padding(0, 1).
			Bold(true).
			Render(c.Language)
		content = badge + "\n" + content
	}

	frameWidth := c.MaxWidth - 4
	if frameWidth < 20 {
		frameWidth = 20
	}

	return lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(1, 2).
		MaxWidth(frameWidth).
		Render(content)
}

// =============================================================================
// MARKDOWN CODE BLOCK PARSER
// =============================================================================

// ParseCodeBlocks extracts fenced code blocks from markdown text and
// returns the text with each block replaced by its rendered version.
func ParseCodeBlocks(text string, maxWidth int) string {
	var out []string
	var fence []string
	var language string
	inFence := false

	flush := func() {
		cb := NewCodeBlock(language, strings.Join(fence, "\n"))
		cb.SetMaxWidth(maxWidth)
		out = append(out, cb.Render())
		fence = nil
		language = ""
	}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "```"):
			if inFence {
				flush()
			} else {
				language = strings.TrimSpace(strings.TrimPrefix(line, "```"))
			}
			inFence = !inFence
		case inFence:
			fence = append(fence, line)
		default:
			out = append(out, line)
		}
	}

	// Unclosed fence: common mid-stream, render what we have
	if inFence && len(fence) > 0 {
		flush()
	}

	return strings.Join(out, "\n")
}

// =============================================================================
// INLINE CODE RENDERER
// =============================================================================

// RenderInlineCode renders inline code with a subtle background.
func RenderInlineCode(code string) string {
	return lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		Foreground(styles.Cyan).
		Padding(0, 1).
		Render(code)
}

// ParseInlineCode replaces `code` spans with styled inline code.
func ParseInlineCode(text string) string {
	var result strings.Builder
	var span strings.Builder
	inSpan := false

	for _, r := range text {
		switch {
		case r == '`':
			if inSpan {
				result.WriteString(RenderInlineCode(span.String()))
				span.Reset()
			}
			inSpan = !inSpan
		case inSpan:
			span.WriteRune(r)
		default:
			result.WriteRune(r)
		}
	}

	// Unclosed backtick: emit it literally
	if inSpan {
		result.WriteString("`")
		result.WriteString(span.String())
	}

	return result.String()
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlight applies ANSI syntax highlighting via chroma, picking the chroma
// style that matches the active background.
func highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	styleName := "monokai"
	if !lipgloss.HasDarkBackground() {
		styleName = "github"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}

	return buf.String()
}

// sniffLanguage guesses the language of an unlabeled block.
func sniffLanguage(code string) string {
	if lexer := lexers.Analyse(code); lexer != nil {
		return lexer.Config().Name
	}
	return ""
}
