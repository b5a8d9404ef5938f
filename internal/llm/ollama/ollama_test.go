// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jeranaias/palaver/internal/llm"
)

func decodeJSONBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Fatalf("decode request: %v", err)
	}
}

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReaderProcess(t *testing.T) {
	body := strings.Join([]string{
		`{"model":"llama3.2-vision","message":{"role":"assistant","content":"Hel"},"done":false}`,
		`{"model":"llama3.2-vision","message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"model":"llama3.2-vision","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":5,"eval_count":2}`,
	}, "\n") + "\n"

	reader := NewStreamReader(strings.NewReader(body))
	var chunks []StreamChunk
	err := reader.Process(context.Background(), func(chunk StreamChunk) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("Chunk count = %d, want 3", len(chunks))
	}
	if reader.GetAccumulated() != "Hello" {
		t.Errorf("Accumulated = %q", reader.GetAccumulated())
	}
	final := chunks[len(chunks)-1]
	if !final.Done {
		t.Error("Expected final chunk Done")
	}
	if final.PromptTokens != 5 || final.CompletionTokens != 2 {
		t.Errorf("Tokens = (%d, %d)", final.PromptTokens, final.CompletionTokens)
	}
}

func TestStreamReaderSkipsMalformedLines(t *testing.T) {
	body := "not json\n" +
		`{"message":{"content":"ok"},"done":true}` + "\n"

	reader := NewStreamReader(strings.NewReader(body))
	var got []StreamChunk
	if err := reader.Process(context.Background(), func(c StreamChunk) { got = append(got, c) }); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(got) != 1 || got[0].Content != "ok" {
		t.Errorf("Chunks = %+v", got)
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestChatStreamAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"message":{"content":"Hi"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"content":"!"},"done":true,"prompt_eval_count":3,"eval_count":1}` + "\n"))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	var text strings.Builder
	err := client.ChatStream(context.Background(), "m", []Message{{Role: "user", Content: "hey"}},
		func(chunk StreamChunk) { text.WriteString(chunk.Content) })
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if text.String() != "Hi!" {
		t.Errorf("Streamed text = %q", text.String())
	}
}

func TestChatStreamModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	err := client.ChatStream(context.Background(), "missing", nil, func(StreamChunk) {})
	if err != llm.ErrModelNotFound {
		t.Errorf("Error = %v, want ErrModelNotFound", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[
			{"name":"llama3.2-vision","size":4920000000},
			{"name":"qwen2.5-coder","size":3100000000}]}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Model count = %d, want 2", len(models))
	}
	if models[0].Name != "llama3.2-vision" || models[0].Size != 4920000000 {
		t.Errorf("First model = %+v", models[0])
	}
}

func TestListModelsUnavailable(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.ListModels(context.Background()); !llm.IsUnavailable(err) {
		t.Errorf("Error = %v, want unavailable", err)
	}
}

func TestCheckRunningDown(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{BaseURL: "http://127.0.0.1:1"})
	if err := client.CheckRunning(context.Background()); !llm.IsUnavailable(err) {
		t.Errorf("Error = %v, want unavailable", err)
	}
}

// =============================================================================
// PROVIDER TESTS
// =============================================================================

func TestProviderRoundTrip(t *testing.T) {
	var gotReq ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeJSONBody(t, r, &gotReq)
		w.Write([]byte(`{"message":{"content":"sure"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL, DefaultModel: "m"})
	provider := NewProvider(client, "")

	chat := provider.StartChat([]llm.Content{
		llm.NewContent("user", "earlier question"),
		llm.NewContent("model", "earlier answer"),
	}, "be brief")

	var text strings.Builder
	for frag := range chat.SendStream(context.Background(), llm.Turn{Text: "next"}) {
		if frag.Err != nil {
			t.Fatalf("Fragment error: %v", frag.Err)
		}
		text.WriteString(frag.Text)
	}
	if text.String() != "sure" {
		t.Errorf("Response = %q", text.String())
	}

	// Wire roles: system first, then user/assistant pairs, then the new turn.
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(gotReq.Messages) != len(wantRoles) {
		t.Fatalf("Message count = %d, want %d", len(gotReq.Messages), len(wantRoles))
	}
	for i, want := range wantRoles {
		if gotReq.Messages[i].Role != want {
			t.Errorf("Message %d role = %q, want %q", i, gotReq.Messages[i].Role, want)
		}
	}
}

func TestProviderSendsImageAsBase64(t *testing.T) {
	var gotReq ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeJSONBody(t, r, &gotReq)
		w.Write([]byte(`{"message":{"content":"a cat"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	provider := NewProvider(NewClientWithConfig(&ClientConfig{BaseURL: srv.URL}), "m")
	chat := provider.StartChat(nil, "")

	turn := llm.Turn{Text: "what is this?", Image: &llm.ImageData{MIME: "image/png", Data: []byte{1, 2, 3}}}
	for range chat.SendStream(context.Background(), turn) {
	}

	last := gotReq.Messages[len(gotReq.Messages)-1]
	if len(last.Images) != 1 || last.Images[0] != "AQID" {
		t.Errorf("Images = %v, want single base64 payload", last.Images)
	}
}
