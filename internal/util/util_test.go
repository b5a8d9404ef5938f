// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"ab", 1, "a"},
		{"anything", 0, ""},
	}
	for _, tc := range tests {
		if got := TruncateRunes(tc.in, tc.max); got != tc.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestTruncateWidthCJK(t *testing.T) {
	// Each CJK character occupies two columns.
	s := "日本語テスト"
	if w := StringWidth(s); w != 12 {
		t.Errorf("StringWidth = %d, want 12", w)
	}
	got := TruncateWidth(s, 7)
	if StringWidth(got) > 7 {
		t.Errorf("Truncated width = %d, want <= 7 (%q)", StringWidth(got), got)
	}
}

func TestNormalizeInput(t *testing.T) {
	// "é" as e + combining acute must normalize to the precomposed form.
	decomposed := "café  "
	if got := NormalizeInput(decomposed); got != "café" {
		t.Errorf("NormalizeInput = %q", got)
	}
	if got := NormalizeInput("  plain  "); got != "plain" {
		t.Errorf("NormalizeInput trim = %q", got)
	}
}

func TestConversions(t *testing.T) {
	if got := IntToString(42); got != "42" {
		t.Errorf("IntToString = %q", got)
	}
	if got := Int64ToString(-7); got != "-7" {
		t.Errorf("Int64ToString = %q", got)
	}
	if got := FloatToString(3.14159); got != "3.14" {
		t.Errorf("FloatToString = %q", got)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	if err := AtomicWriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile overwrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("Content = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Leftover files: %d entries", len(entries))
	}
}
