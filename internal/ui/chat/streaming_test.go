// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"
)

// =============================================================================
// STREAMING BUFFER TESTS
// =============================================================================

func TestNewStreamingBuffer(t *testing.T) {
	sb := NewStreamingBuffer()
	if sb == nil {
		t.Fatal("NewStreamingBuffer returned nil")
	}
	if pending := sb.Pending(); pending != 0 {
		t.Errorf("Fresh buffer has %d pending fragments", pending)
	}
}

func TestStreamingBufferWrite(t *testing.T) {
	sb := NewStreamingBuffer()

	sb.Write("Hello")
	sb.Write(" ")
	sb.Write("World")

	if pending := sb.Pending(); pending != 3 {
		t.Errorf("Expected 3 pending fragments, got %d", pending)
	}
}

func TestStreamingBufferFlushBySize(t *testing.T) {
	sb := NewStreamingBufferWithConfig(3, 30)

	sb.Write("A")
	sb.Write("B")

	if _, hasContent := sb.Flush(); hasContent {
		t.Error("Should not flush before reaching batch size")
	}

	sb.Write("C")

	content, hasContent := sb.Flush()
	if !hasContent {
		t.Error("Should flush after reaching batch size")
	}
	if content != "ABC" {
		t.Errorf("Expected flushed content 'ABC', got '%s'", content)
	}

	if pending := sb.Pending(); pending != 0 {
		t.Errorf("Expected 0 pending after flush, got %d", pending)
	}
}

func TestStreamingBufferFlushByTime(t *testing.T) {
	sb := NewStreamingBufferWithConfig(100, 30)

	sb.Write("A")

	if _, hasContent := sb.Flush(); hasContent {
		t.Error("Should not flush immediately")
	}

	time.Sleep(35 * time.Millisecond)

	content, hasContent := sb.Flush()
	if !hasContent {
		t.Error("Should flush after time threshold")
	}
	if content != "A" {
		t.Errorf("Expected flushed content 'A', got '%s'", content)
	}
}

func TestStreamingBufferForceFlush(t *testing.T) {
	sb := NewStreamingBuffer()

	sb.Write("Test")

	content, hasContent := sb.ForceFlush()
	if !hasContent {
		t.Error("ForceFlush should return content")
	}
	if content != "Test" {
		t.Errorf("Expected 'Test', got '%s'", content)
	}

	if pending := sb.Pending(); pending != 0 {
		t.Errorf("Expected 0 pending after force flush, got %d", pending)
	}
}

func TestStreamingBufferForceFlushEmpty(t *testing.T) {
	sb := NewStreamingBuffer()
	if _, hasContent := sb.ForceFlush(); hasContent {
		t.Error("Empty buffer should have nothing to force flush")
	}
}

func TestStreamingBufferReset(t *testing.T) {
	sb := NewStreamingBuffer()

	sb.Write("A")
	sb.Write("B")
	sb.Reset()

	if pending := sb.Pending(); pending != 0 {
		t.Errorf("Expected 0 pending after reset, got %d", pending)
	}
	if _, hasContent := sb.ForceFlush(); hasContent {
		t.Error("Should have no content after reset")
	}
}

func TestStreamingBufferConcurrency(t *testing.T) {
	sb := NewStreamingBuffer()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			sb.Write("x")
			time.Sleep(time.Millisecond)
		}
		done <- true
	}()

	flushCount := 0
	go func() {
		for i := 0; i < 100; i++ {
			if _, hasContent := sb.Flush(); hasContent {
				flushCount++
			}
			time.Sleep(time.Millisecond)
		}
		done <- true
	}()

	<-done
	<-done

	// No data races expected when run with -race.
	t.Logf("Completed with %d flushes", flushCount)
}

func TestStreamingBufferUnicode(t *testing.T) {
	sb := NewStreamingBuffer()

	sb.Write("Hello")
	sb.Write(" ")
	sb.Write("世界")
	sb.Write("!")

	content, hasContent := sb.ForceFlush()
	if !hasContent {
		t.Fatal("Should have content")
	}
	if content != "Hello 世界!" {
		t.Errorf("Expected 'Hello 世界!', got '%s'", content)
	}
}

func TestStreamingBufferIntegration(t *testing.T) {
	sb := NewStreamingBufferWithConfig(10, 30)

	fragments := []string{"The", " quick", " brown", " fox", " jumps", " over", " the", " lazy", " dog", "."}
	for _, frag := range fragments {
		sb.Write(frag)
	}

	if !sb.ShouldFlush() {
		t.Error("Should be ready to flush after 10 fragments")
	}

	content, hasContent := sb.ForceFlush()
	if !hasContent {
		t.Fatal("Should have content")
	}
	if content != "The quick brown fox jumps over the lazy dog." {
		t.Errorf("Unexpected content: '%s'", content)
	}
}

// =============================================================================
// BENCHMARK TESTS
// =============================================================================

func BenchmarkStreamingBufferWrite(b *testing.B) {
	sb := NewStreamingBuffer()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sb.Write("token")
	}
}

func BenchmarkStreamingBufferFlush(b *testing.B) {
	sb := NewStreamingBuffer()
	for i := 0; i < 100; i++ {
		sb.Write("token")
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sb.Flush()
	}
}
