// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "testing"

func TestNewTheme(t *testing.T) {
	for _, name := range []string{"dark", "light", "auto", ""} {
		theme := NewTheme(name)
		if theme == nil {
			t.Fatalf("NewTheme(%q) returned nil", name)
		}
	}

	if !NewTheme("dark").IsDark {
		t.Error("dark theme should report IsDark")
	}
	if NewTheme("light").IsDark {
		t.Error("light theme should not report IsDark")
	}
}

func TestSetSize(t *testing.T) {
	theme := NewTheme("dark")
	theme.SetSize(120, 40)

	if theme.Width != 120 || theme.Height != 40 {
		t.Errorf("Size = %dx%d", theme.Width, theme.Height)
	}
	if theme.CompactMode() {
		t.Error("120 columns should not be compact")
	}

	theme.SetSize(60, 20)
	if !theme.CompactMode() {
		t.Error("60 columns should be compact")
	}
}
