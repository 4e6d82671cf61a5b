package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkwell-labs/muse-engine/internal/ai"
)

// newTestServer returns an OpenAI-compatible stub. Buffered requests get a
// single completion; streaming requests get the chunks as SSE deltas.
func newTestServer(t *testing.T, completion string, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.MaxTokens == 1 && !req.Stream {
			// Let the connect probe succeed instantly.
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{
					"message": map[string]string{"role": "assistant", "content": "ok"},
				}},
			})
			return
		}

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, c := range chunks {
				data, _ := json.Marshal(map[string]any{
					"choices": []map[string]any{{"delta": map[string]string{"content": c}}},
				})
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": completion},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 10, "total_tokens": 15},
		})
	}))
}

func connectedClient(t *testing.T, srv *httptest.Server) *openaiClient {
	t.Helper()
	cfg := DefaultConfig(KindOpenAI)
	cfg.BaseURL = srv.URL
	cfg.APIKey = "sk-test"
	c := newOpenAIClient(KindOpenAI, cfg, testLogger())
	if !c.Connect(context.Background()) {
		t.Fatalf("Connect failed: %v", c.LastError())
	}
	return c
}

func TestClient_ConnectFailureRecordsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := DefaultConfig(KindOpenAI)
	cfg.BaseURL = srv.URL
	c := newOpenAIClient(KindOpenAI, cfg, testLogger())

	if c.Connect(context.Background()) {
		t.Fatal("Connect should report failure on 401")
	}
	if c.Connected() {
		t.Error("client must not be marked connected")
	}
	if c.LastError() == nil {
		t.Error("LastError should hold the failure reason")
	}
}

func TestClient_GenerateText(t *testing.T) {
	srv := newTestServer(t, "Once upon a time.", nil)
	defer srv.Close()
	c := connectedClient(t, srv)

	req, err := ai.NewRequest("Write an opening line.", "A tale of dragons.")
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.GenerateText(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "Once upon a time." {
		t.Errorf("unexpected completion: %q", got)
	}

	stats := c.Stats()
	// One request from Connect's probe does not count; counters track only
	// generation calls.
	if stats.Requests != 1 || stats.Successes != 1 || stats.Failures != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestClient_GenerateTextRequiresConnection(t *testing.T) {
	cfg := DefaultConfig(KindOpenAI)
	c := newOpenAIClient(KindOpenAI, cfg, testLogger())

	req, _ := ai.NewRequest("hello", "")
	if _, err := c.GenerateText(context.Background(), req); err == nil {
		t.Fatal("expected ErrNotConnected")
	}
}

func TestClient_GenerateTextStream(t *testing.T) {
	srv := newTestServer(t, "", []string{"the dragon", " appeared."})
	defer srv.Close()
	c := connectedClient(t, srv)

	req, err := ai.NewRequest("Continue the scene.", "", ai.WithStreaming())
	if err != nil {
		t.Fatal(err)
	}
	seq, err := c.GenerateTextStream(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateTextStream: %v", err)
	}

	var got []string
	for chunk, err := range seq {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		got = append(got, chunk)
	}
	if len(got) != 2 || got[0] != "the dragon" || got[1] != " appeared." {
		t.Errorf("unexpected chunks: %v", got)
	}
}

func TestClient_ProcessStreaming(t *testing.T) {
	srv := newTestServer(t, "", []string{"the dragon", " appeared."})
	defer srv.Close()
	c := connectedClient(t, srv)

	req, _ := ai.NewRequest("Continue the scene.", "",
		ai.WithType(ai.TypeStoryWriting), ai.WithStreaming())
	resp := c.Process(context.Background(), req, true)

	if !resp.Succeeded() {
		t.Fatalf("expected success, got status %s (err %q)", resp.Status, resp.Err)
	}
	if resp.Content != "the dragon appeared." {
		t.Errorf("buffered content should equal chunk concatenation: %q", resp.Content)
	}
	if len(resp.Chunks()) != 2 {
		t.Errorf("expected 2 chunks, got %d", len(resp.Chunks()))
	}
	if resp.Provider != "openai" {
		t.Errorf("provider not recorded: %s", resp.Provider)
	}
}

func TestClient_ProcessTimeoutBecomesTimeoutStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens == 1 {
			// Let the connect probe succeed instantly.
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{
					"message": map[string]string{"role": "assistant", "content": "ok"},
				}},
			})
			return
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := connectedClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req, _ := ai.NewRequest("slow prompt", "")
	resp := c.Process(ctx, req, false)

	if resp.Status != ai.StatusTimeout {
		t.Fatalf("expected timeout status, got %s (err %q)", resp.Status, resp.Err)
	}
	if resp.Succeeded() {
		t.Error("timed-out response must not read as succeeded")
	}
}

func TestClient_ProcessCancelledBecomesCancelledStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{
					"message": map[string]string{"role": "assistant", "content": "ok"},
				}},
			})
			return
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := connectedClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	req, _ := ai.NewRequest("slow prompt", "")
	resp := c.Process(ctx, req, false)

	if resp.Status != ai.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s (err %q)", resp.Status, resp.Err)
	}
}

func TestClient_ParameterOverrides(t *testing.T) {
	var seen chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&seen)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]string{"role": "assistant", "content": "ok"},
			}},
		})
	}))
	defer srv.Close()
	c := connectedClient(t, srv)

	req, _ := ai.NewRequest("hello", "",
		ai.WithParameter("model", "gpt-4"),
		ai.WithParameter("max_tokens", 512),
		ai.WithParameter("temperature", 0.2))
	if _, err := c.GenerateText(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if seen.Model != "gpt-4" {
		t.Errorf("model override not applied: %s", seen.Model)
	}
	if seen.MaxTokens != 512 {
		t.Errorf("max_tokens override not applied: %d", seen.MaxTokens)
	}
	if seen.Temperature != 0.2 {
		t.Errorf("temperature override not applied: %v", seen.Temperature)
	}
}

func TestClient_ContextBecomesSystemMessage(t *testing.T) {
	var seen chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&seen)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]string{"role": "assistant", "content": "ok"},
			}},
		})
	}))
	defer srv.Close()
	c := connectedClient(t, srv)

	req, _ := ai.NewRequest("Describe the castle.", "Chapter 3: the siege begins.")
	if _, err := c.GenerateText(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if len(seen.Messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(seen.Messages))
	}
	if seen.Messages[0].Role != "system" ||
		seen.Messages[0].Content != "Background context:\nChapter 3: the siege begins." {
		t.Errorf("unexpected system message: %+v", seen.Messages[0])
	}
	if seen.Messages[1].Role != "user" || seen.Messages[1].Content != "Describe the castle." {
		t.Errorf("unexpected user message: %+v", seen.Messages[1])
	}
}
